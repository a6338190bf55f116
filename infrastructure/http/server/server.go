package server

import (
	"duo-chat/auth"
	"duo-chat/domain"
	"duo-chat/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/julienschmidt/httprouter"
)

// multipartOverhead is the room left for boundaries and part headers on top
// of the file size cap.
const multipartOverhead = 1 * domain.MB

// maxJSONBody caps text message requests.
const maxJSONBody = 256 * domain.KB

type FileOpener interface {
	Open(storedName string) (*os.File, os.FileInfo, error)
	MaxSize() int64
}

type Authenticator interface {
	Authenticate(r *http.Request) (domain.Identity, error)
}

// Server is the HTTP surface of the chat: message endpoints, file retrieval
// and the websocket upgrade.
type Server struct {
	router  *httprouter.Router
	service services.IChatService
	files   FileOpener
	auth    Authenticator
	log     *slog.Logger
}

func NewServer(service services.IChatService, files FileOpener, authenticator Authenticator,
	socket httprouter.Handle, log *slog.Logger) *Server {
	s := &Server{
		router:  httprouter.New(),
		service: service,
		files:   files,
		auth:    authenticator,
		log:     log,
	}
	s.setupRoutes(socket)
	return s
}

func (s *Server) setupRoutes(socket httprouter.Handle) {
	s.router.POST("/api/v1/message/send/:receiverId", s.authenticated(s.handleSendText))
	s.router.POST("/api/v1/message/send-file/:receiverId", s.authenticated(s.handleSendFile))
	s.router.GET("/api/v1/message/get-messages/:otherParticipantId", s.authenticated(s.handleGetMessages))
	s.router.GET("/api/v1/message/search/:otherParticipantId", s.authenticated(s.handleSearch))
	s.router.GET("/api/v1/user/online", s.authenticated(s.handleOnlineUsers))
	s.router.GET("/files/:storedName", s.handleFile)
	s.router.HEAD("/files/:storedName", s.handleFile)
	if socket != nil {
		s.router.GET("/ws", socket)
	}
	s.router.GET("/health", s.handleHealth)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// authenticated resolves the caller from its token and stores the identity
// in the request context.
func (s *Server) authenticated(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		identity, err := s.auth.Authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), identity)), ps)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type response struct {
	Success      bool   `json:"success"`
	ResponseData any    `json:"responseData,omitempty"`
	ErrMessage   string `json:"errMessage,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}

// writeData always emits responseData, null included.
func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := struct {
		Success      bool `json:"success"`
		ResponseData any  `json:"responseData"`
	}{Success: true, ResponseData: data}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}
