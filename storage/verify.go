package storage

import (
	"duo-chat/domain/mimetypes"
	"duo-chat/errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// verify re-opens the written bytes and checks them independently of what
// the client declared. It returns the sniffed media type.
func (s *FileStore) verify(path string, declared mimetypes.MIME) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("uploaded file not found: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", errors.ErrEmptyFile
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read uploaded file: %w", err)
	}
	head = head[:n]

	if declared == mimetypes.ApplicationPDF {
		if len(head) < len(pdfSignature) || string(head[:len(pdfSignature)]) != pdfSignature {
			return "", errors.ErrInvalidPDF
		}
	}

	detected := mimetype.Detect(head).String()
	if _, ok := mimetypes.Matches(detected, declared); !ok {
		s.log.Debug("Declared media type differs from content",
			"declared", declared, "detected", detected)
	}
	return detected, nil
}
