package storage

import (
	"context"
	"duo-chat/domain"
	"duo-chat/domain/mimetypes"
	"duo-chat/errors"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	partialDir     = ".partial"
	partialSuffix  = ".part"
	sniffLen       = 3072
	pdfSignature   = "%PDF"
	publicPrefix   = "/files/"
	commitAttempts = 3
)

// FileStore is the ingestion pipeline: it validates, streams, verifies and
// names uploads under root. Bytes first land in root/.partial and are only
// renamed to their final name once verified, so a failed upload never leaves
// a file behind.
type FileStore struct {
	root     string
	partials string
	maxSize  int64
	log      *slog.Logger
	now      func() time.Time
	random   func() int64
}

func NewFileStore(root string, maxSize int64, log *slog.Logger) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid upload directory %q: %w", root, err)
	}
	partials := filepath.Join(abs, partialDir)
	if err := os.MkdirAll(partials, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FileStore{
		root:     abs,
		partials: partials,
		maxSize:  maxSize,
		log:      log,
		now:      time.Now,
		random:   func() int64 { return rand.Int64N(1_000_000_000) },
	}, nil
}

func (s *FileStore) MaxSize() int64 {
	return s.maxSize
}

func (s *FileStore) Root() string {
	return s.root
}

// Ingest streams the upload to disk and returns its attachment descriptor.
// Validation errors happen before anything is written; any later failure,
// including a canceled context, removes the partial file.
func (s *FileStore) Ingest(ctx context.Context, upload domain.Upload) (domain.FileAttachment, error) {
	mediaType, err := s.validate(upload)
	if err != nil {
		return domain.FileAttachment{}, err
	}

	partialPath := filepath.Join(s.partials, uuid.NewString()+partialSuffix)
	partial, err := os.OpenFile(partialPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return domain.FileAttachment{}, fmt.Errorf("failed to create partial file: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = partial.Close()
		if err := os.Remove(partialPath); err != nil && !os.IsNotExist(err) {
			s.log.Error("Failed to remove partial upload", "path", partialPath, "error", err)
		}
	}()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return domain.FileAttachment{}, err
	}

	size, err := s.copy(ctx, partial, hasher, upload.Reader)
	if err != nil {
		return domain.FileAttachment{}, err
	}
	if err := partial.Sync(); err != nil {
		return domain.FileAttachment{}, fmt.Errorf("failed to flush upload: %w", err)
	}
	if err := partial.Close(); err != nil {
		return domain.FileAttachment{}, fmt.Errorf("failed to close upload: %w", err)
	}

	detected, err := s.verify(partialPath, mediaType)
	if err != nil {
		s.log.Warn("Upload rejected after write",
			"declared_name", upload.DeclaredName, "declared_type", mediaType, "error", err)
		return domain.FileAttachment{}, err
	}

	storedName, finalPath, err := s.commit(partialPath, upload.DeclaredName)
	if err != nil {
		return domain.FileAttachment{}, err
	}
	committed = true

	s.log.Debug("Upload stored", "stored_name", storedName, "size", size, "media_type", mediaType)
	return domain.FileAttachment{
		StoredName:   storedName,
		OriginalName: upload.DeclaredName,
		Size:         size,
		MediaType:    mediaType.String(),
		Location:     finalPath,
		URL:          publicPrefix + storedName,
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
		DetectedType: detected,
	}, nil
}

func (s *FileStore) validate(upload domain.Upload) (mimetypes.MIME, error) {
	if upload.Reader == nil {
		return mimetypes.Unknown, errors.ErrNoFileUploaded
	}
	if upload.DeclaredName == "" || upload.DeclaredType == "" {
		return mimetypes.Unknown, errors.ErrMissingField
	}
	mediaType := mimetypes.Normalize(upload.DeclaredType)
	if !mimetypes.IsAllowed(mediaType) {
		return mimetypes.Unknown, fmt.Errorf("%w: %s", errors.ErrUnsupportedMediaType, upload.DeclaredType)
	}
	if mediaType == mimetypes.ApplicationPDF &&
		strings.ToLower(filepath.Ext(upload.DeclaredName)) != ".pdf" {
		return mimetypes.Unknown, errors.ErrPDFExtension
	}
	if upload.Size > s.maxSize {
		return mimetypes.Unknown, fmt.Errorf("%w: %d bytes (limit is %d)", errors.ErrFileTooLarge, upload.Size, s.maxSize)
	}
	return mediaType, nil
}

// copy streams at most maxSize+1 bytes so an oversize payload is detected
// without reading it entirely.
func (s *FileStore) copy(ctx context.Context, dst io.Writer, hasher hash.Hash, src io.Reader) (int64, error) {
	limited := io.LimitReader(contextReader{ctx: ctx, r: src}, s.maxSize+1)
	written, err := io.Copy(io.MultiWriter(dst, hasher), limited)
	if err != nil {
		if ctx.Err() != nil {
			return written, fmt.Errorf("upload aborted: %w", ctx.Err())
		}
		return written, errors.Wrap(errors.KindValidation, "upload interrupted", err)
	}
	if written > s.maxSize {
		return written, fmt.Errorf("%w: limit is %d bytes", errors.ErrFileTooLarge, s.maxSize)
	}
	return written, nil
}

// commit renames the verified partial into its final, synthesized name.
func (s *FileStore) commit(partialPath, declaredName string) (string, string, error) {
	for range commitAttempts {
		storedName := GenerateStoredName(declaredName, s.now(), s.random())
		finalPath := filepath.Join(s.root, storedName)
		if _, err := os.Lstat(finalPath); err == nil {
			continue
		}
		if err := os.Rename(partialPath, finalPath); err != nil {
			return "", "", fmt.Errorf("failed to commit upload: %w", err)
		}
		return storedName, finalPath, nil
	}
	return "", "", fmt.Errorf("failed to commit upload: no free name after %d attempts", commitAttempts)
}

// Open returns the stored file for retrieval. Only names the pipeline can
// generate are accepted.
func (s *FileStore) Open(storedName string) (*os.File, os.FileInfo, error) {
	if !isStoredName(storedName) {
		return nil, nil, errors.ErrFileNotFound
	}
	f, err := os.Open(filepath.Join(s.root, storedName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.ErrFileNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, errors.ErrFileNotFound
	}
	return f, info, nil
}

// Remove deletes a committed file, used when the message referencing it
// could not be persisted.
func (s *FileStore) Remove(storedName string) error {
	if !isStoredName(storedName) {
		return errors.ErrFileNotFound
	}
	if err := os.Remove(filepath.Join(s.root, storedName)); err != nil {
		if os.IsNotExist(err) {
			return errors.ErrFileNotFound
		}
		return err
	}
	return nil
}

// PurgePartials removes partial uploads older than olderThan, left behind
// by a crash in the middle of an ingestion.
func (s *FileStore) PurgePartials(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.partials)
	if err != nil {
		return 0, err
	}
	deadline := s.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partialSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(deadline) {
			continue
		}
		if err := os.Remove(filepath.Join(s.partials, entry.Name())); err != nil && !os.IsNotExist(err) {
			s.log.Warn("Failed to purge partial upload", "name", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
