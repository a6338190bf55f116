package repositories

import (
	"context"
	"duo-chat/domain"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	idField           = "_id"
	bodyField         = "body"
	conversationField = "conversation"
	defaultSearchSize = 20
)

// MessageIndex is a full text index over text messages, scoped per conversation.
// Only message IDs are stored; the history itself stays in Badger.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index adds a text message. File messages have no body and are skipped.
func (i *MessageIndex) Index(message domain.Message) error {
	if message.Kind != domain.KindText || strings.TrimSpace(message.Text) == "" {
		return nil
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField(bodyField, message.Text)).
		AddField(bluge.NewKeywordField(conversationField, message.ConversationID.String()))

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("failed to index message %s: %w", message.ID, err)
	}
	return nil
}

// Search returns the IDs of the best matching messages of conversation.
func (i *MessageIndex) Search(ctx context.Context, conversation domain.Conversation, terms string, limit int) ([]string, error) {
	if strings.TrimSpace(terms) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchSize
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField(bodyField)).
		AddMust(bluge.NewTermQuery(conversation.ID.String()).SetField(conversationField))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var ids []string
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == idField {
				ids = append(ids, string(value))
				return false
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}
	return ids, nil
}
