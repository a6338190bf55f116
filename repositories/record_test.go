package repositories

import (
	"context"
	"duo-chat/domain"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestDescribeRecord(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := openRepository(t)

	// Given a conversation with one text and one file message
	conversation, err := repository.FindOrCreateConversation(ctx, "alice", "bob")
	req.NoError(err)
	_, err = repository.AppendMessage(ctx, conversation, domain.NewTextMessage("alice", "bob", "hi", time.Now().UTC()))
	req.NoError(err)
	attachment := domain.FileAttachment{StoredName: "a-1-1.pdf", OriginalName: "a.pdf", Size: 12, MediaType: "application/pdf"}
	_, err = repository.AppendMessage(ctx, conversation, domain.NewFileMessage("bob", "alice", attachment, time.Now().UTC()))
	req.NoError(err)

	// When every entry is described
	records := map[string][]Record{}
	req.NoError(repository.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			record := DescribeRecord(key, val)
			records[record.Type] = append(records[record.Type], record)
		}
		return nil
	}))

	// Then each kind is recognized
	req.Len(records[RecordConversation], 1)
	req.Equal("alice <-> bob", records[RecordConversation][0].Detail)
	req.Equal(conversation.ID.String(), records[RecordConversation][0].Entity)
	req.Len(records[RecordText], 1)
	req.Equal("alice -> bob: hi", records[RecordText][0].Detail)
	req.Len(records[RecordFile], 1)
	req.Contains(records[RecordFile][0].Detail, "a.pdf")
}

func TestDescribeRecord_Garbage(t *testing.T) {
	req := require.New(t)

	record := DescribeRecord("msg:broken", []byte{0xff, 0xff, 0xff})

	req.Equal(RecordUnknown, record.Type)
	req.Contains(record.Detail, "Error")
}

func TestAttachments(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := openRepository(t)

	// Given a conversation holding a text and two file messages
	conversation, err := repository.FindOrCreateConversation(ctx, "alice", "bob")
	req.NoError(err)
	_, err = repository.AppendMessage(ctx, conversation, domain.NewTextMessage("alice", "bob", "hi", time.Now().UTC()))
	req.NoError(err)
	for _, attachment := range []domain.FileAttachment{
		{StoredName: "a-1-1.pdf", OriginalName: "a.pdf", Size: 12, MediaType: "application/pdf", Checksum: "aaaa"},
		{StoredName: "b-1-2.png", OriginalName: "b.png", Size: 7, MediaType: "image/png", Checksum: "bbbb"},
	} {
		_, err = repository.AppendMessage(ctx, conversation, domain.NewFileMessage("bob", "alice", attachment, time.Now().UTC()))
		req.NoError(err)
	}

	// When the referenced files are listed
	attachments, err := Attachments(repository.db)

	// Then only file messages appear, with their checksums
	req.NoError(err)
	req.Equal(map[string]string{"a-1-1.pdf": "aaaa", "b-1-2.png": "bbbb"}, attachments)
}
