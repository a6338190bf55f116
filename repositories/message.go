package repositories

import (
	"context"
	"duo-chat/domain"
	"duo-chat/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	conversationPrefix = "conv:"
	messagePrefix      = "msg:"
	messageSequenceKey = "seq:msg"
	sequenceBandwidth  = 1000
	maxTxnAttempts     = 5
)

type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	sequence *badger.Sequence
	now      func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	sequence, err := db.GetSequence([]byte(messageSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire message sequence: %w", err)
	}
	return &MessageRepository{db: db, log: log, sequence: sequence, now: time.Now}, nil
}

// Close returns the unused leases of the sequence. It must run before the DB is closed.
func (m *MessageRepository) Close() error {
	return m.sequence.Release()
}

// conversationKey is order independent: (a, b) and (b, a) share a key.
// The length prefix keeps identities containing ':' from colliding.
func conversationKey(a, b domain.Identity) []byte {
	pair := domain.Pair(a, b)
	return fmt.Appendf(nil, "%s%d:%s:%s", conversationPrefix, len(pair[0]), pair[0], pair[1])
}

// messageKey sorts in append order thanks to the zero padded sequence.
func messageKey(conversation domain.Conversation, seq uint64) []byte {
	return fmt.Appendf(nil, "%s%s:%020d", messagePrefix, conversation.ID, seq)
}

func messagesPrefix(conversation domain.Conversation) []byte {
	return fmt.Appendf(nil, "%s%s:", messagePrefix, conversation.ID)
}

// FindOrCreateConversation returns the single conversation of the pair,
// creating it on first use. Two racing creations conflict in Badger and the
// loser retries, reading the winner's record.
func (m *MessageRepository) FindOrCreateConversation(ctx context.Context, a, b domain.Identity) (domain.Conversation, error) {
	if a == "" || b == "" {
		return domain.Conversation{}, errors.ErrMissingField
	}
	key := conversationKey(a, b)

	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Conversation{}, err
		}
		var conversation domain.Conversation
		err := m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case err == nil:
				return item.Value(func(val []byte) error {
					conversation, err = unmarshalConversation(val)
					return err
				})
			case stderrors.Is(err, badger.ErrKeyNotFound):
				conversation = domain.NewConversation(a, b, m.now().UTC())
				return txn.Set(key, marshalConversation(conversation))
			default:
				return err
			}
		})
		if stderrors.Is(err, badger.ErrConflict) {
			m.log.Debug("Conversation creation conflicted, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.Conversation{}, fmt.Errorf("failed to find or create conversation: %w", err)
		}
		return conversation, nil
	}
	return domain.Conversation{}, fmt.Errorf("failed to find or create conversation: %w", badger.ErrConflict)
}

// AppendMessage stores message at the end of the conversation.
func (m *MessageRepository) AppendMessage(ctx context.Context, conversation domain.Conversation, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	if !conversation.Has(message.SenderID) || !conversation.Has(message.ReceiverID) {
		return domain.Message{}, errors.New(errors.KindValidation, "message participants do not match the conversation")
	}
	message.ConversationID = conversation.ID
	if err := message.Validate(); err != nil {
		return domain.Message{}, err
	}

	seq, err := m.sequence.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to allocate message sequence: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(conversation, seq), marshalMessage(message))
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to append message: %w", err)
	}
	return message, nil
}

// GetConversation returns the conversation between a and b with its
// messages in append order.
func (m *MessageRepository) GetConversation(ctx context.Context, a, b domain.Identity) (domain.Conversation, []domain.Message, error) {
	var conversation domain.Conversation
	var messages []domain.Message

	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(a, b))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrConversationNotFound
		}
		if err != nil {
			return err
		}
		if err = item.Value(func(val []byte) error {
			conversation, err = unmarshalConversation(val)
			return err
		}); err != nil {
			return err
		}

		prefix := messagesPrefix(conversation)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				message, err := unmarshalMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	return conversation, messages, nil
}
