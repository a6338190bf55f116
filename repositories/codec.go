package repositories

import (
	"duo-chat/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored with the protobuf wire format so that fields can be
// added later without rewriting existing values. Unknown fields are skipped.

const (
	conversationID           protowire.Number = 1
	conversationParticipantA protowire.Number = 2
	conversationParticipantB protowire.Number = 3
	conversationCreatedAt    protowire.Number = 4
)

const (
	messageID             protowire.Number = 1
	messageConversationID protowire.Number = 2
	messageSender         protowire.Number = 3
	messageReceiver       protowire.Number = 4
	messageKind           protowire.Number = 5
	messageText           protowire.Number = 6
	messageAttachment     protowire.Number = 7
	messageCreatedAt      protowire.Number = 8
)

const (
	attachmentStoredName   protowire.Number = 1
	attachmentOriginalName protowire.Number = 2
	attachmentSize         protowire.Number = 3
	attachmentMediaType    protowire.Number = 4
	attachmentLocation     protowire.Number = 5
	attachmentURL          protowire.Number = 6
	attachmentChecksum     protowire.Number = 7
	attachmentDetectedType protowire.Number = 8
)

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func marshalConversation(c domain.Conversation) []byte {
	var b []byte
	b = appendString(b, conversationID, c.ID.String())
	b = appendString(b, conversationParticipantA, c.Participants[0].String())
	b = appendString(b, conversationParticipantB, c.Participants[1].String())
	b = appendVarint(b, conversationCreatedAt, c.CreatedAt.UnixNano())
	return b
}

func unmarshalConversation(b []byte) (domain.Conversation, error) {
	var c domain.Conversation
	err := decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == conversationID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return n, nil
			}
			id, err := uuid.Parse(v)
			if err != nil {
				return 0, fmt.Errorf("invalid conversation id: %w", err)
			}
			c.ID = id
			return n, nil
		case num == conversationParticipantA && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			c.Participants[0] = domain.Identity(v)
			return n, nil
		case num == conversationParticipantB && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			c.Participants[1] = domain.Identity(v)
			return n, nil
		case num == conversationCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.CreatedAt = time.Unix(0, int64(v)).UTC()
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return c, err
}

func marshalMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, messageID, m.ID.String())
	b = appendString(b, messageConversationID, m.ConversationID.String())
	b = appendString(b, messageSender, m.SenderID.String())
	b = appendString(b, messageReceiver, m.ReceiverID.String())
	b = appendString(b, messageKind, string(m.Kind))
	b = appendString(b, messageText, m.Text)
	if m.Attachment != nil {
		b = protowire.AppendTag(b, messageAttachment, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalAttachment(*m.Attachment))
	}
	b = appendVarint(b, messageCreatedAt, m.CreatedAt.UnixNano())
	return b
}

func unmarshalMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType {
			switch num {
			case messageID, messageConversationID:
				v, n := protowire.ConsumeString(b)
				if n < 0 {
					return n, nil
				}
				id, err := uuid.Parse(v)
				if err != nil {
					return 0, fmt.Errorf("invalid message uuid: %w", err)
				}
				if num == messageID {
					m.ID = id
				} else {
					m.ConversationID = id
				}
				return n, nil
			case messageSender:
				v, n := protowire.ConsumeString(b)
				m.SenderID = domain.Identity(v)
				return n, nil
			case messageReceiver:
				v, n := protowire.ConsumeString(b)
				m.ReceiverID = domain.Identity(v)
				return n, nil
			case messageKind:
				v, n := protowire.ConsumeString(b)
				m.Kind = domain.MessageKind(v)
				return n, nil
			case messageText:
				v, n := protowire.ConsumeString(b)
				m.Text = v
				return n, nil
			case messageAttachment:
				v, n := protowire.ConsumeBytes(b)
				if n < 0 {
					return n, nil
				}
				attachment, err := unmarshalAttachment(v)
				if err != nil {
					return 0, err
				}
				m.Attachment = &attachment
				return n, nil
			}
		}
		if num == messageCreatedAt && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.CreatedAt = time.Unix(0, int64(v)).UTC()
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return m, err
}

func marshalAttachment(a domain.FileAttachment) []byte {
	var b []byte
	b = appendString(b, attachmentStoredName, a.StoredName)
	b = appendString(b, attachmentOriginalName, a.OriginalName)
	b = appendVarint(b, attachmentSize, a.Size)
	b = appendString(b, attachmentMediaType, a.MediaType)
	b = appendString(b, attachmentLocation, a.Location)
	b = appendString(b, attachmentURL, a.URL)
	b = appendString(b, attachmentChecksum, a.Checksum)
	b = appendString(b, attachmentDetectedType, a.DetectedType)
	return b
}

func unmarshalAttachment(b []byte) (domain.FileAttachment, error) {
	var a domain.FileAttachment
	fields := map[protowire.Number]*string{
		attachmentStoredName:   &a.StoredName,
		attachmentOriginalName: &a.OriginalName,
		attachmentMediaType:    &a.MediaType,
		attachmentLocation:     &a.Location,
		attachmentURL:          &a.URL,
		attachmentChecksum:     &a.Checksum,
		attachmentDetectedType: &a.DetectedType,
	}
	err := decode(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if dst, ok := fields[num]; ok && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			*dst = v
			return n, nil
		}
		if num == attachmentSize && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			a.Size = int64(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return a, err
}

// decode walks every field of b. field returns the number of bytes it
// consumed, negative on a malformed value.
func decode(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
