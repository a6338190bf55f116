//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"duo-chat/domain"
	"duo-chat/domain/event"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is a live channel owned by the transport layer.
// Consume must never block: it enqueues or fails fast.
type Connection interface {
	ID() domain.ConnectionID
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IPresenceRegistry interface {
	Connect(identity domain.Identity, conn Connection)
	Disconnect(identity domain.Identity, conn Connection) bool
	Lookup(identity domain.Identity) (Connection, bool)
	ListOnline() []domain.Identity
	Count() int
}

type DeliveryOutcome string

const (
	Delivered DeliveryOutcome = "delivered"
	Queued    DeliveryOutcome = "queued"
)

type IDeliveryRouter interface {
	Deliver(ctx context.Context, message domain.Message) DeliveryOutcome
}

type IMessageRepository interface {
	FindOrCreateConversation(ctx context.Context, a, b domain.Identity) (domain.Conversation, error)
	AppendMessage(ctx context.Context, conversation domain.Conversation, message domain.Message) (domain.Message, error)
	GetConversation(ctx context.Context, a, b domain.Identity) (domain.Conversation, []domain.Message, error)
}

type IFileStore interface {
	Ingest(ctx context.Context, upload domain.Upload) (domain.FileAttachment, error)
	Remove(storedName string) error
	PurgePartials(olderThan time.Duration) (int, error)
}

type IMessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, conversation domain.Conversation, terms string, limit int) ([]string, error)
}
