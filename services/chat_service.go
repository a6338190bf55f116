package services

import (
	"context"
	"duo-chat/contract"
	"duo-chat/domain"
	"duo-chat/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

type IChatService interface {
	SendText(ctx context.Context, cmd domain.SendTextCommand) (domain.Message, error)
	SendFile(ctx context.Context, cmd domain.SendFileCommand) (domain.Message, error)
	GetConversation(ctx context.Context, cmd domain.GetConversationCommand) (*History, error)
	Search(ctx context.Context, cmd domain.SearchCommand) ([]domain.Message, error)
	Connect(identity domain.Identity, conn contract.Connection)
	Disconnect(identity domain.Identity, conn contract.Connection) bool
	OnlineUsers() []domain.Identity
}

// History is a conversation with its messages in append order.
type History struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
}

type ChatService struct {
	repository contract.IMessageRepository
	files      contract.IFileStore
	index      contract.IMessageIndex
	registry   contract.IPresenceRegistry
	router     contract.IDeliveryRouter
	validate   *validator.Validate
	log        *slog.Logger
	now        func() time.Time
}

func NewChatService(
	repository contract.IMessageRepository,
	files contract.IFileStore,
	index contract.IMessageIndex,
	registry contract.IPresenceRegistry,
	router contract.IDeliveryRouter,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		repository: repository,
		files:      files,
		index:      index,
		registry:   registry,
		router:     router,
		validate:   validator.New(),
		log:        log,
		now:        time.Now,
	}
}

func (s *ChatService) SendText(ctx context.Context, cmd domain.SendTextCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, errors.Wrap(errors.KindValidation, errors.ErrMissingField.Message, err)
	}
	message := domain.NewTextMessage(cmd.SenderID, cmd.ReceiverID, cmd.Text, s.now().UTC())

	stored, err := s.persist(ctx, message)
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.index.Index(stored); err != nil {
		s.log.Warn("Failed to index message", "message_id", stored.ID, "error", err)
	}
	s.deliver(ctx, stored)
	return stored, nil
}

// SendFile ingests the upload before anything is persisted. A file whose
// message cannot be stored is removed again so no orphan is left.
func (s *ChatService) SendFile(ctx context.Context, cmd domain.SendFileCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, errors.Wrap(errors.KindValidation, errors.ErrMissingField.Message, err)
	}

	attachment, err := s.files.Ingest(ctx, cmd.Upload)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.NewFileMessage(cmd.SenderID, cmd.ReceiverID, attachment, s.now().UTC())

	stored, err := s.persist(ctx, message)
	if err != nil {
		if rmErr := s.files.Remove(attachment.StoredName); rmErr != nil {
			s.log.Error("Failed to remove orphan upload",
				"stored_name", attachment.StoredName, "error", rmErr)
		}
		return domain.Message{}, err
	}
	s.deliver(ctx, stored)
	return stored, nil
}

func (s *ChatService) persist(ctx context.Context, message domain.Message) (domain.Message, error) {
	conversation, err := s.repository.FindOrCreateConversation(ctx, message.SenderID, message.ReceiverID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to resolve conversation: %w", err)
	}
	stored, err := s.repository.AppendMessage(ctx, conversation, message)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	return stored, nil
}

// deliver runs strictly after persistence. Its outcome never fails the send.
func (s *ChatService) deliver(ctx context.Context, message domain.Message) {
	outcome := s.router.Deliver(ctx, message)
	s.log.Debug("Message routed",
		"message_id", message.ID, "kind", message.Kind, "outcome", outcome)
}

// GetConversation returns nil when the two participants never exchanged a message.
func (s *ChatService) GetConversation(ctx context.Context, cmd domain.GetConversationCommand) (*History, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrMissingField.Message, err)
	}
	conversation, messages, err := s.repository.GetConversation(ctx, cmd.RequesterID, cmd.OtherID)
	if stderrors.Is(err, errors.ErrConversationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return &History{Conversation: conversation, Messages: messages}, nil
}

// Search returns the text messages of the conversation matching terms, best match first.
func (s *ChatService) Search(ctx context.Context, cmd domain.SearchCommand) ([]domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, errors.Wrap(errors.KindValidation, "search terms are required", err)
	}
	conversation, messages, err := s.repository.GetConversation(ctx, cmd.RequesterID, cmd.OtherID)
	if stderrors.Is(err, errors.ErrConversationNotFound) {
		return []domain.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	ids, err := s.index.Search(ctx, conversation, cmd.Terms, cmd.Limit)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(messages, func(m domain.Message) string { return m.ID.String() })
	return lo.FilterMap(ids, func(id string, _ int) (domain.Message, bool) {
		m, ok := byID[id]
		return m, ok
	}), nil
}

func (s *ChatService) Connect(identity domain.Identity, conn contract.Connection) {
	s.registry.Connect(identity, conn)
	s.log.Info("Participant connected", "identity", identity, "connection", conn.ID())
}

func (s *ChatService) Disconnect(identity domain.Identity, conn contract.Connection) bool {
	removed := s.registry.Disconnect(identity, conn)
	s.log.Info("Participant disconnected",
		"identity", identity, "connection", conn.ID(), "stale", !removed)
	return removed
}

func (s *ChatService) OnlineUsers() []domain.Identity {
	return s.registry.ListOnline()
}
