// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"duo-chat/errors"
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindText MessageKind = "text"
	KindFile MessageKind = "file"
)

// Message represents an immutable chat record between two participants.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversationId"`
	SenderID       Identity        `json:"senderId"`
	ReceiverID     Identity        `json:"receiverId"`
	Kind           MessageKind     `json:"messageType"`
	Text           string          `json:"message,omitempty"`
	Attachment     *FileAttachment `json:"fileAttachment,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// FileAttachment describes a stored upload. StoredName is synthesized by the
// ingestion pipeline, OriginalName is the untrusted client name kept for display.
type FileAttachment struct {
	StoredName   string `json:"fileName"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"fileSize"`
	MediaType    string `json:"mimeType"`
	Location     string `json:"-"`
	URL          string `json:"fileUrl"`
	Checksum     string `json:"checksum,omitempty"`
	DetectedType string `json:"detectedType,omitempty"`
}

// NewTextMessage builds a text message. The conversation is assigned on append.
func NewTextMessage(sender, receiver Identity, text string, at time.Time) Message {
	return Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       KindText,
		Text:       text,
		CreatedAt:  at,
	}
}

func NewFileMessage(sender, receiver Identity, attachment FileAttachment, at time.Time) Message {
	return Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       KindFile,
		Attachment: &attachment,
		CreatedAt:  at,
	}
}

// Validate enforces that exactly one of text body or attachment is present,
// as dictated by the kind.
func (m Message) Validate() error {
	if m.SenderID == "" || m.ReceiverID == "" {
		return errors.ErrMissingField
	}
	switch m.Kind {
	case KindText:
		if m.Text == "" || m.Attachment != nil {
			return errors.ErrInvalidMessage
		}
	case KindFile:
		if m.Text != "" || m.Attachment == nil || m.Attachment.StoredName == "" {
			return errors.ErrInvalidMessage
		}
	default:
		return errors.ErrInvalidMessage
	}
	return nil
}
