package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	RecordConversation = "CONVERSATION"
	RecordText         = "TEXT"
	RecordFile         = "FILE"
	RecordSequence     = "SEQUENCE"
	RecordUnknown      = "UNKNOWN"
)

// Record is a human readable view of a raw Badger entry.
type Record struct {
	Key    string
	Type   string
	At     time.Time
	Entity string
	Detail string
}

// DescribeRecord decodes a stored entry whatever its prefix. It never fails:
// undecodable values are reported in Detail.
func DescribeRecord(key string, val []byte) Record {
	record := Record{Key: key, Type: RecordUnknown}

	switch {
	case strings.HasPrefix(key, conversationPrefix):
		conversation, err := unmarshalConversation(val)
		if err != nil {
			record.Detail = fmt.Sprintf("Error: %v", err)
			return record
		}
		record.Type = RecordConversation
		record.At = conversation.CreatedAt
		record.Entity = conversation.ID.String()
		record.Detail = fmt.Sprintf("%s <-> %s", conversation.Participants[0], conversation.Participants[1])
	case strings.HasPrefix(key, messagePrefix):
		message, err := unmarshalMessage(val)
		if err != nil {
			record.Detail = fmt.Sprintf("Error: %v", err)
			return record
		}
		record.At = message.CreatedAt
		record.Entity = message.ID.String()
		if message.Attachment != nil {
			record.Type = RecordFile
			record.Detail = fmt.Sprintf("%s -> %s: %s (%s, %d bytes)", message.SenderID, message.ReceiverID,
				message.Attachment.OriginalName, message.Attachment.MediaType, message.Attachment.Size)
		} else {
			record.Type = RecordText
			record.Detail = fmt.Sprintf("%s -> %s: %s", message.SenderID, message.ReceiverID, message.Text)
		}
	case key == messageSequenceKey:
		record.Type = RecordSequence
	}
	return record
}

// Attachments maps the stored name of every file message to its recorded
// checksum. It only reads, so it works on a read-only database.
func Attachments(db *badger.DB) (map[string]string, error) {
	attachments := make(map[string]string)
	err := db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(messagePrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				message, err := unmarshalMessage(val)
				if err != nil {
					return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
				}
				if message.Attachment != nil {
					attachments[message.Attachment.StoredName] = message.Attachment.Checksum
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return attachments, err
}
