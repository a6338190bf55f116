package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindIntegrity       Kind = "INTEGRITY"
	KindNotFound        Kind = "NOT_FOUND"
	KindTransport       Kind = "TRANSPORT"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindInternal        Kind = "INTERNAL"
)

// AppError carries a Kind so transport layers can map failures without
// knowing every sentinel.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first AppError found in the chain,
// KindInternal otherwise.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrMissingField         = New(KindValidation, "all fields are required")
	ErrNoFileUploaded       = New(KindValidation, "no file uploaded")
	ErrUnsupportedMediaType = New(KindValidation, "invalid file type, please upload a supported file format")
	ErrFileTooLarge         = New(KindValidation, "file exceeds the upload size limit")
	ErrPDFExtension         = New(KindValidation, "PDF file must have .pdf extension")
	ErrInvalidMessage       = New(KindValidation, "message must carry exactly one of text or file attachment")

	ErrEmptyFile  = New(KindIntegrity, "uploaded file is empty")
	ErrInvalidPDF = New(KindIntegrity, "invalid PDF file - corrupted or incorrect format")

	ErrFileNotFound         = New(KindNotFound, "file not found")
	ErrConversationNotFound = New(KindNotFound, "conversation not found")

	ErrConnectionClosed       = New(KindTransport, "connection closed")
	ErrConnectionBackpressure = New(KindTransport, "connection send buffer full")

	ErrMissingToken = New(KindUnauthenticated, "no token provided")
	ErrInvalidToken = New(KindUnauthenticated, "invalid token")
)
