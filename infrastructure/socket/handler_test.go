package socket

import (
	"context"
	"duo-chat/auth"
	"duo-chat/domain"
	"duo-chat/domain/event"
	"duo-chat/errors"
	"duo-chat/runtime"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *runtime.Registry, *auth.TokenVerifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	log := slog.Default()
	verifier := auth.NewTokenVerifier("socket-secret")
	registry := runtime.NewRegistry(log)

	router := httprouter.New()
	router.GET("/ws", NewHandler(ctx, registry, verifier, 16, nil, log).ServeHTTP)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return server, registry, verifier
}

func dial(t *testing.T, server *httptest.Server, verifier *auth.TokenVerifier, identity domain.Identity) *websocket.Conn {
	t.Helper()
	token, err := verifier.Generate(identity, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// nextOnline reads frames until an online-users snapshot equal to expected arrives.
func nextOnline(t *testing.T, conn *websocket.Conn, expected ...domain.Identity) {
	t.Helper()
	req := require.New(t)
	deadline := time.Now().Add(5 * time.Second)
	for {
		req.NoError(conn.SetReadDeadline(deadline))
		var f frame
		req.NoError(conn.ReadJSON(&f))
		if f.Event != event.OnlineUsersEvent {
			continue
		}
		var users []domain.Identity
		req.NoError(json.Unmarshal(f.Data, &users))
		if slices.Equal(users, expected) {
			return
		}
	}
}

func TestHandler_Rejects_Unauthenticated(t *testing.T) {
	req := require.New(t)
	server, registry, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=forged"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Zero(registry.Count())
}

func TestHandler_Presence_Is_Broadcast(t *testing.T) {
	req := require.New(t)
	server, registry, verifier := newTestServer(t)

	// Given alice is connected
	alice := dial(t, server, verifier, "alice")
	nextOnline(t, alice, "alice")

	// When bob connects, alice sees him
	bob := dial(t, server, verifier, "bob")
	nextOnline(t, alice, "alice", "bob")
	nextOnline(t, bob, "alice", "bob")

	// When bob's socket goes away, alice sees him leave
	req.NoError(bob.Close())
	nextOnline(t, alice, "alice")
	req.Eventually(func() bool { return registry.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestHandler_Reconnect_Keeps_Participant_Online(t *testing.T) {
	req := require.New(t)
	server, registry, verifier := newTestServer(t)

	first := dial(t, server, verifier, "alice")
	nextOnline(t, first, "alice")
	firstConn, ok := registry.Lookup("alice")
	req.True(ok)

	// alice reconnects, then the old socket dies
	second := dial(t, server, verifier, "alice")
	nextOnline(t, second, "alice")
	req.Eventually(func() bool {
		conn, ok := registry.Lookup("alice")
		return ok && conn.ID() != firstConn.ID()
	}, 5*time.Second, 10*time.Millisecond)
	req.NoError(first.Close())

	// the stale disconnect must not remove her
	req.Never(func() bool {
		_, ok := registry.Lookup("alice")
		return !ok
	}, 300*time.Millisecond, 10*time.Millisecond)
}

func TestHandler_Delivers_New_Message(t *testing.T) {
	req := require.New(t)
	server, registry, verifier := newTestServer(t)

	bob := dial(t, server, verifier, "bob")
	nextOnline(t, bob, "bob")

	conn, ok := registry.Lookup("bob")
	req.True(ok)
	message := domain.NewTextMessage("alice", "bob", "hello bob", time.Now().UTC())
	req.NoError(conn.Consume(context.Background(), event.NewMessage{Message: message}))

	req.NoError(bob.SetReadDeadline(time.Now().Add(5 * time.Second)))
	var f frame
	req.NoError(bob.ReadJSON(&f))
	req.Equal(event.NewMessageEvent, f.Event)
	var got domain.Message
	req.NoError(json.Unmarshal(f.Data, &got))
	req.Equal(message.ID, got.ID)
	req.Equal("hello bob", got.Text)
	req.Equal(domain.KindText, got.Kind)
}

func TestClient_Consume_Never_Blocks(t *testing.T) {
	req := require.New(t)
	client := &Client{
		id:   "c-1",
		send: make(chan []byte, 1),
		done: make(chan struct{}),
		log:  slog.Default(),
	}
	evt := event.OnlineUsers{Users: []domain.Identity{"alice"}}

	// The buffer accepts one frame, the next one is refused
	req.NoError(client.Consume(context.Background(), evt))
	req.ErrorIs(client.Consume(context.Background(), evt), errors.ErrConnectionBackpressure)

	// Once closed every event is refused
	close(client.done)
	req.ErrorIs(client.Consume(context.Background(), evt), errors.ErrConnectionClosed)
}
