package storage

import (
	"bytes"
	"cmp"
	"context"
	"duo-chat/domain/mimetypes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/crypto/blake2b"
)

type AuditIssue string

const (
	IssueEmpty            AuditIssue = "EMPTY"
	IssueChecksumMismatch AuditIssue = "CHECKSUM_MISMATCH"
	IssueOrphan           AuditIssue = "ORPHAN"
	IssueMissing          AuditIssue = "MISSING"
	IssuePDFHeader        AuditIssue = "PDF_NO_HEADER"
	IssuePDFTrailer       AuditIssue = "PDF_NO_TRAILER"
)

const (
	pdfHeader   = "%PDF-"
	pdfTrailer  = "%%EOF"
	trailerScan = 1024
)

// AuditEntry is the state of one stored file. Expected is the checksum
// recorded by the message referencing it, empty for an orphan.
type AuditEntry struct {
	Name     string
	Size     int64
	Checksum string
	Expected string
	Issues   []AuditIssue
}

func (e AuditEntry) OK() bool {
	return len(e.Issues) == 0
}

// Audit checks every committed file of the store against references,
// a map of stored name to recorded checksum.
func (s *FileStore) Audit(ctx context.Context, references map[string]string) ([]AuditEntry, error) {
	return Audit(ctx, s.root, references)
}

// Audit re-hashes every committed file under root and reports files whose
// content no longer matches the recorded checksum, PDFs without header or
// trailer, files no message references and references without a file.
// Partial uploads are skipped.
func Audit(ctx context.Context, root string, references map[string]string) ([]AuditEntry, error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}

	var entries []AuditEntry
	seen := make(map[string]struct{}, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !dirEntry.Type().IsRegular() || !isStoredName(dirEntry.Name()) {
			continue
		}
		name := dirEntry.Name()
		seen[name] = struct{}{}

		entry, err := auditFile(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		entry.Name = name
		expected, referenced := references[name]
		entry.Expected = expected
		switch {
		case !referenced:
			entry.Issues = append(entry.Issues, IssueOrphan)
		case expected != "" && expected != entry.Checksum:
			entry.Issues = append(entry.Issues, IssueChecksumMismatch)
		}
		entries = append(entries, entry)
	}

	for name, expected := range references {
		if _, ok := seen[name]; !ok {
			entries = append(entries, AuditEntry{Name: name, Expected: expected, Issues: []AuditIssue{IssueMissing}})
		}
	}
	slices.SortFunc(entries, func(a, b AuditEntry) int { return cmp.Compare(a.Name, b.Name) })
	return entries, nil
}

func auditFile(path string) (AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return AuditEntry{}, err
	}
	size, err := io.Copy(hasher, f)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	entry := AuditEntry{Size: size, Checksum: hex.EncodeToString(hasher.Sum(nil))}
	if size == 0 {
		entry.Issues = append(entry.Issues, IssueEmpty)
		return entry, nil
	}

	if mimetypes.ContentTypeForName(path) == mimetypes.ApplicationPDF {
		issues, err := auditPDF(f, size)
		if err != nil {
			return AuditEntry{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		entry.Issues = append(entry.Issues, issues...)
	}
	return entry, nil
}

func auditPDF(f *os.File, size int64) ([]AuditIssue, error) {
	var issues []AuditIssue

	head := make([]byte, len(pdfHeader))
	n, err := f.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if string(head[:n]) != pdfHeader {
		issues = append(issues, IssuePDFHeader)
	}

	tailLen := min(size, trailerScan)
	tail := make([]byte, tailLen)
	if _, err := f.ReadAt(tail, size-tailLen); err != nil && err != io.EOF {
		return nil, err
	}
	if !bytes.Contains(tail, []byte(pdfTrailer)) {
		issues = append(issues, IssuePDFTrailer)
	}
	return issues, nil
}
