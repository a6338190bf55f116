package services

import (
	"context"
	"duo-chat/contract"
	"duo-chat/domain"
	"duo-chat/domain/event"
	"duo-chat/errors"
	"duo-chat/mocks"
	"duo-chat/repositories"
	"duo-chat/runtime"
	"duo-chat/storage"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	repository *mocks.MockIMessageRepository
	files      *mocks.MockIFileStore
	index      *mocks.MockIMessageIndex
	registry   *mocks.MockIPresenceRegistry
	router     *mocks.MockIDeliveryRouter
	service    *ChatService
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	f := fixture{
		repository: mocks.NewMockIMessageRepository(ctrl),
		files:      mocks.NewMockIFileStore(ctrl),
		index:      mocks.NewMockIMessageIndex(ctrl),
		registry:   mocks.NewMockIPresenceRegistry(ctrl),
		router:     mocks.NewMockIDeliveryRouter(ctrl),
	}
	f.service = NewChatService(f.repository, f.files, f.index, f.registry, f.router, slog.Default())
	return f
}

func TestChatService_SendText_Persists_Then_Delivers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	conversation := domain.NewConversation("alice", "bob", time.Now())

	gomock.InOrder(
		f.repository.EXPECT().FindOrCreateConversation(ctx, domain.Identity("alice"), domain.Identity("bob")).
			Return(conversation, nil),
		f.repository.EXPECT().AppendMessage(ctx, conversation, gomock.Any()).
			DoAndReturn(func(_ context.Context, c domain.Conversation, m domain.Message) (domain.Message, error) {
				m.ConversationID = c.ID
				return m, nil
			}),
		f.index.EXPECT().Index(gomock.Any()).Return(nil),
		f.router.EXPECT().Deliver(ctx, gomock.Any()).Return(contract.Delivered),
	)

	message, err := f.service.SendText(ctx, domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob", Text: "hello"})

	req.NoError(err)
	req.Equal(domain.KindText, message.Kind)
	req.Equal("hello", message.Text)
	req.Equal(conversation.ID, message.ConversationID)
	req.Nil(message.Attachment)
}

func TestChatService_SendText_Offline_Receiver_Is_Not_An_Error(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := domain.NewConversation("alice", "bob", time.Now())

	f.repository.EXPECT().FindOrCreateConversation(gomock.Any(), gomock.Any(), gomock.Any()).Return(conversation, nil)
	f.repository.EXPECT().AppendMessage(gomock.Any(), conversation, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Conversation, m domain.Message) (domain.Message, error) {
			return m, nil
		})
	f.index.EXPECT().Index(gomock.Any()).Return(nil)
	f.router.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(contract.Queued)

	_, err := f.service.SendText(context.Background(), domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob", Text: "are you there?"})
	req.NoError(err)
}

func TestChatService_SendText_Store_Failure_Is_Not_Delivered(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := domain.NewConversation("alice", "bob", time.Now())

	f.repository.EXPECT().FindOrCreateConversation(gomock.Any(), gomock.Any(), gomock.Any()).Return(conversation, nil)
	f.repository.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Message{}, fmt.Errorf("disk full"))
	f.index.EXPECT().Index(gomock.Any()).Times(0)
	f.router.EXPECT().Deliver(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.SendText(context.Background(), domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob", Text: "hello"})
	req.Error(err)
}

func TestChatService_SendText_Index_Failure_Still_Delivers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := domain.NewConversation("alice", "bob", time.Now())

	f.repository.EXPECT().FindOrCreateConversation(gomock.Any(), gomock.Any(), gomock.Any()).Return(conversation, nil)
	f.repository.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Conversation, m domain.Message) (domain.Message, error) {
			return m, nil
		})
	f.index.EXPECT().Index(gomock.Any()).Return(fmt.Errorf("index closed"))
	f.router.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(contract.Delivered)

	_, err := f.service.SendText(context.Background(), domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob", Text: "hello"})
	req.NoError(err)
}

func TestChatService_SendText_Rejects_Invalid_Commands(t *testing.T) {
	tests := []struct {
		name string
		cmd  domain.SendTextCommand
	}{
		{"Missing text", domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob"}},
		{"Missing receiver", domain.SendTextCommand{SenderID: "alice", Text: "hello"}},
		{"Missing sender", domain.SendTextCommand{ReceiverID: "bob", Text: "hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			f.repository.EXPECT().FindOrCreateConversation(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			_, err := f.service.SendText(context.Background(), tt.cmd)
			req.Equal(errors.KindValidation, errors.KindOf(err))
		})
	}
}

func TestChatService_SendFile_Ingests_Before_Persisting(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := domain.NewConversation("alice", "bob", time.Now())
	upload := domain.Upload{Reader: strings.NewReader("hi"), DeclaredType: "text/plain", DeclaredName: "hi.txt", Size: 2}
	attachment := domain.FileAttachment{StoredName: "hi-1700000000000-1.txt", OriginalName: "hi.txt", Size: 2, MediaType: "text/plain"}

	gomock.InOrder(
		f.files.EXPECT().Ingest(gomock.Any(), upload).Return(attachment, nil),
		f.repository.EXPECT().FindOrCreateConversation(gomock.Any(), gomock.Any(), gomock.Any()).Return(conversation, nil),
		f.repository.EXPECT().AppendMessage(gomock.Any(), conversation, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ domain.Conversation, m domain.Message) (domain.Message, error) {
				return m, nil
			}),
		f.router.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(contract.Delivered),
	)

	message, err := f.service.SendFile(context.Background(), domain.SendFileCommand{SenderID: "alice", ReceiverID: "bob", Upload: upload})

	req.NoError(err)
	req.Equal(domain.KindFile, message.Kind)
	req.Empty(message.Text)
	req.Equal(&attachment, message.Attachment)
}

func TestChatService_SendFile_Rejected_Upload_Creates_Nothing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.files.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(domain.FileAttachment{}, errors.ErrInvalidPDF)
	f.repository.EXPECT().FindOrCreateConversation(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	f.router.EXPECT().Deliver(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.SendFile(context.Background(), domain.SendFileCommand{
		SenderID: "alice", ReceiverID: "bob",
		Upload: domain.Upload{Reader: strings.NewReader("nope"), DeclaredType: "application/pdf", DeclaredName: "x.pdf", Size: -1},
	})
	req.ErrorIs(err, errors.ErrInvalidPDF)
}

func TestChatService_SendFile_Store_Failure_Removes_File(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := domain.NewConversation("alice", "bob", time.Now())
	attachment := domain.FileAttachment{StoredName: "hi-1700000000000-1.txt"}

	f.files.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(attachment, nil)
	f.repository.EXPECT().FindOrCreateConversation(gomock.Any(), gomock.Any(), gomock.Any()).Return(conversation, nil)
	f.repository.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Message{}, fmt.Errorf("disk full"))
	f.files.EXPECT().Remove(attachment.StoredName).Return(nil).Times(1)
	f.router.EXPECT().Deliver(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.service.SendFile(context.Background(), domain.SendFileCommand{
		SenderID: "alice", ReceiverID: "bob",
		Upload: domain.Upload{Reader: strings.NewReader("hi"), DeclaredType: "text/plain", DeclaredName: "hi.txt", Size: -1},
	})
	req.Error(err)
}

func TestChatService_GetConversation_Unknown_Pair(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.repository.EXPECT().GetConversation(gomock.Any(), domain.Identity("alice"), domain.Identity("bob")).
		Return(domain.Conversation{}, nil, errors.ErrConversationNotFound)

	history, err := f.service.GetConversation(context.Background(), domain.GetConversationCommand{RequesterID: "alice", OtherID: "bob"})
	req.NoError(err)
	req.Nil(history)
}

func TestChatService_Presence_Delegates_To_Registry(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conn := mocks.NewMockConnection(gomock.NewController(t))
	conn.EXPECT().ID().Return(domain.ConnectionID("c-1")).AnyTimes()

	f.registry.EXPECT().Connect(domain.Identity("alice"), conn)
	f.registry.EXPECT().ListOnline().Return([]domain.Identity{"alice"})
	f.registry.EXPECT().Disconnect(domain.Identity("alice"), conn).Return(true)

	f.service.Connect("alice", conn)
	req.Equal([]domain.Identity{"alice"}, f.service.OnlineUsers())
	req.True(f.service.Disconnect("alice", conn))
}

// newIntegrationService wires the real registry, router, Badger store, bluge
// index and file store.
func newIntegrationService(t *testing.T) (*ChatService, *runtime.Registry) {
	t.Helper()
	req := require.New(t)
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	repository, err := repositories.NewMessageRepository(db, log)
	req.NoError(err)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() {
		_ = writer.Close()
		_ = repository.Close()
		_ = db.Close()
	})

	files, err := storage.NewFileStore(t.TempDir(), domain.MB, log)
	req.NoError(err)
	registry := runtime.NewRegistry(log)
	router := runtime.NewRouter(registry, log)
	index := repositories.NewMessageIndex(writer, log)
	return NewChatService(repository, files, index, registry, router, log), registry
}

func TestChatService_Each_Send_Adds_Exactly_One_Entry(t *testing.T) {
	req := require.New(t)
	service, _ := newIntegrationService(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := service.SendText(ctx, domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob", Text: fmt.Sprintf("message %d", i)})
		req.NoError(err)

		history, err := service.GetConversation(ctx, domain.GetConversationCommand{RequesterID: "alice", OtherID: "bob"})
		req.NoError(err)
		req.Len(history.Messages, i)
	}
}

func TestChatService_Round_Trip_Keeps_Order(t *testing.T) {
	req := require.New(t)
	service, _ := newIntegrationService(t)
	ctx := context.Background()

	// Given A sends to B then B replies, nobody being online
	first, err := service.SendText(ctx, domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob", Text: "ping"})
	req.NoError(err)
	reply, err := service.SendText(ctx, domain.SendTextCommand{SenderID: "bob", ReceiverID: "alice", Text: "pong"})
	req.NoError(err)

	// When B later fetches the history
	history, err := service.GetConversation(ctx, domain.GetConversationCommand{RequesterID: "bob", OtherID: "alice"})

	// Then both are there, in send order
	req.NoError(err)
	req.Equal([]domain.Message{first, reply}, history.Messages)
}

func TestChatService_Live_Delivery_And_Search(t *testing.T) {
	req := require.New(t)
	service, registry := newIntegrationService(t)
	ctx := context.Background()
	bob := &inbox{id: "bob-1"}
	registry.Connect("bob", bob)

	sent, err := service.SendText(ctx, domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob", Text: "the release is tagged"})
	req.NoError(err)
	_, err = service.SendText(ctx, domain.SendTextCommand{SenderID: "alice", ReceiverID: "bob", Text: "see you tomorrow"})
	req.NoError(err)

	req.Len(bob.received(), 2)
	req.Equal(sent, bob.received()[0])

	found, err := service.Search(ctx, domain.SearchCommand{RequesterID: "bob", OtherID: "alice", Terms: "release"})
	req.NoError(err)
	req.Equal([]domain.Message{sent}, found)
}

func TestChatService_SendFile_Integration(t *testing.T) {
	req := require.New(t)
	service, _ := newIntegrationService(t)
	ctx := context.Background()

	message, err := service.SendFile(ctx, domain.SendFileCommand{
		SenderID: "alice", ReceiverID: "bob",
		Upload: domain.Upload{Reader: strings.NewReader("%PDF-1.4 minutes"), DeclaredType: "application/pdf", DeclaredName: "minutes.pdf", Size: -1},
	})
	req.NoError(err)
	req.True(strings.HasPrefix(message.Attachment.StoredName, "minutes-"))

	// A rejected upload does not add a message
	_, err = service.SendFile(ctx, domain.SendFileCommand{
		SenderID: "alice", ReceiverID: "bob",
		Upload: domain.Upload{Reader: strings.NewReader("not a pdf"), DeclaredType: "application/pdf", DeclaredName: "fake.pdf", Size: -1},
	})
	req.ErrorIs(err, errors.ErrInvalidPDF)

	history, err := service.GetConversation(ctx, domain.GetConversationCommand{RequesterID: "bob", OtherID: "alice"})
	req.NoError(err)
	req.Equal([]domain.Message{message}, history.Messages)
}

type inbox struct {
	id       domain.ConnectionID
	mu       sync.Mutex
	messages []domain.Message
}

func (i *inbox) ID() domain.ConnectionID { return i.id }

func (i *inbox) Consume(_ context.Context, e event.DomainEvent) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if m, ok := e.(event.NewMessage); ok {
		i.messages = append(i.messages, m.Message)
	}
	return nil
}

func (i *inbox) received() []domain.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.messages)
}
