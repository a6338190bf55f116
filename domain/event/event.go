package event

import (
	"duo-chat/domain"
)

const (
	OnlineUsersEvent = "online-users"
	NewMessageEvent  = "new-message"
)

// DomainEvent is anything pushed to a live connection.
type DomainEvent interface {
	Name() string
	Payload() any
}

// OnlineUsers always carries the full snapshot, never a delta.
type OnlineUsers struct {
	Users []domain.Identity
}

func (o OnlineUsers) Name() string { return OnlineUsersEvent }

func (o OnlineUsers) Payload() any { return o.Users }

type NewMessage struct {
	Message domain.Message
}

func (n NewMessage) Name() string { return NewMessageEvent }

func (n NewMessage) Payload() any { return n.Message }

// Envelope is the wire shape of an event on the socket.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func ToEnvelope(e DomainEvent) Envelope {
	return Envelope{Event: e.Name(), Data: e.Payload()}
}
