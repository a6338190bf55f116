package domain

import (
	"io"
)

type SendTextCommand struct {
	SenderID   Identity `validate:"required,max=256"`
	ReceiverID Identity `validate:"required,max=256"`
	Text       string   `validate:"required"`
}

type SendFileCommand struct {
	SenderID   Identity `validate:"required,max=256"`
	ReceiverID Identity `validate:"required,max=256"`
	Upload     Upload   `validate:"-"`
}

// Upload is a client payload on its way into the ingestion pipeline.
// Size is the announced length, -1 when unknown.
// Its fields are checked by the pipeline itself, which reports precise errors.
type Upload struct {
	Reader       io.Reader
	DeclaredType string
	DeclaredName string
	Size         int64
}

type GetConversationCommand struct {
	RequesterID Identity `validate:"required,max=256"`
	OtherID     Identity `validate:"required,max=256"`
}

type SearchCommand struct {
	RequesterID Identity `validate:"required,max=256"`
	OtherID     Identity `validate:"required,max=256"`
	Terms       string   `validate:"required,max=512"`
	Limit       int      `validate:"gte=0,lte=100"`
}

const KB = 1024
const MB = KB * KB
