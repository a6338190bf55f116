package runtime

import (
	"context"
	"duo-chat/contract"
	"duo-chat/domain"
	"duo-chat/domain/event"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Registry is the authoritative in-memory map of online participants.
// It starts empty and is never persisted: a restart is equivalent to every
// participant disconnecting, the transport is expected to reconnect clients.
type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sessions map[domain.Identity]contract.Connection // map participant -> live connection
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[domain.Identity]contract.Connection),
	}
}

// Connect maps identity to conn, replacing any previous connection.
// The superseded connection is not closed here; the transport detects it
// through its own liveness checks.
// The full online snapshot is broadcast to every live connection.
func (r *Registry) Connect(identity domain.Identity, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.sessions[identity]; ok && previous.ID() != conn.ID() {
		r.log.Debug("Connection superseded",
			"identity", identity, "previous", previous.ID(), "current", conn.ID())
	}
	r.sessions[identity] = conn
	r.broadcastLocked()
}

// Disconnect removes the mapping only while it still points at conn.
// A disconnect coming from a connection that was already replaced by a
// reconnect is ignored and reported as false.
func (r *Registry) Disconnect(identity domain.Identity, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[identity]
	if !ok || current.ID() != conn.ID() {
		r.log.Debug("Stale disconnect ignored", "identity", identity, "connection", conn.ID())
		return false
	}
	delete(r.sessions, identity)
	r.broadcastLocked()
	return true
}

func (r *Registry) Lookup(identity domain.Identity) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.sessions[identity]
	return conn, ok
}

// ListOnline returns the online identities sorted.
func (r *Registry) ListOnline() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshotLocked() []domain.Identity {
	users := lo.Keys(r.sessions)
	slices.Sort(users)
	return users
}

// broadcastLocked runs under the write lock so that connections observe
// snapshots in mutation order. Consume is non-blocking by contract.
func (r *Registry) broadcastLocked() {
	evt := event.OnlineUsers{Users: r.snapshotLocked()}
	for identity, conn := range r.sessions {
		if err := conn.Consume(context.Background(), evt); err != nil {
			r.log.Warn("Failed to push online users",
				"identity", identity, "connection", conn.ID(), "error", err)
		}
	}
}
