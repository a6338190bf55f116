package runtime

import (
	"context"
	"duo-chat/contract"
	"duo-chat/domain"
	"duo-chat/domain/event"
	"log/slog"
)

// Router pushes freshly persisted messages to the receiver's live connection.
// Delivery is fire-and-forget: no acknowledgement, no retry. An offline
// receiver sees the message on its next history fetch.
type Router struct {
	registry contract.IPresenceRegistry
	log      *slog.Logger
}

func NewRouter(registry contract.IPresenceRegistry, log *slog.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Deliver must only be called once the message is durably stored.
func (r *Router) Deliver(ctx context.Context, message domain.Message) contract.DeliveryOutcome {
	conn, ok := r.registry.Lookup(message.ReceiverID)
	if !ok {
		r.log.Debug("Receiver offline, message kept in store",
			"message_id", message.ID, "receiver", message.ReceiverID)
		return contract.Queued
	}

	if err := conn.Consume(ctx, event.NewMessage{Message: message}); err != nil {
		r.log.Warn("Failed to push message to receiver",
			"message_id", message.ID,
			"receiver", message.ReceiverID,
			"connection", conn.ID(),
			"error", err)
		return contract.Queued
	}
	return contract.Delivered
}
