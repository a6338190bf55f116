package socket

import (
	"context"
	"duo-chat/contract"
	"duo-chat/domain"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type Presence interface {
	Connect(identity domain.Identity, conn contract.Connection)
	Disconnect(identity domain.Identity, conn contract.Connection) bool
}

type Authenticator interface {
	Authenticate(r *http.Request) (domain.Identity, error)
}

// Handler upgrades authenticated requests and registers the resulting
// connection for its identity until the socket dies.
type Handler struct {
	ctx        context.Context
	presence   Presence
	auth       Authenticator
	upgrader   websocket.Upgrader
	bufferSize int
	log        *slog.Logger
}

// NewHandler builds the /ws handler. Connections are closed when ctx is done.
// An empty allowedOrigins list accepts every origin.
func NewHandler(ctx context.Context, presence Presence, auth Authenticator,
	bufferSize int, allowedOrigins []string, log *slog.Logger) *Handler {
	return &Handler{
		ctx:        ctx,
		presence:   presence,
		auth:       auth,
		bufferSize: bufferSize,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(allowed, u.Scheme+"://"+u.Host)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, err := h.auth.Authenticate(r)
	if err != nil {
		h.log.Debug("Websocket connection rejected", "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade websocket", "identity", identity, "error", err)
		return
	}

	client := NewClient(identity, conn, h.bufferSize, h.log)
	go client.WritePump(h.ctx)
	h.presence.Connect(identity, client)

	go func() {
		client.ReadPump()
		h.presence.Disconnect(identity, client)
	}()
}
