package main

import (
	"context"
	"duo-chat/repositories"
	"duo-chat/storage"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"data/badger"`
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"uploads"`
	// INSPECT_COLOURS colours the record types
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	dbPath := flag.String("db", cfg.BadgerFilepath, "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan (conv: or msg:<conversation id>:)")
	audit := flag.Bool("audit", false, "Verify stored uploads against the recorded checksums")
	uploadDir := flag.String("uploads", cfg.UploadDir, "Upload directory audited with -audit")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error while opening Badger: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *audit {
		entries, err := auditUploads(context.Background(), db, *uploadDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error while auditing uploads: %v\n", err)
			os.Exit(1)
		}
		failures := renderAudit(os.Stdout, entries, cfg.Colours)
		_ = db.Close()
		if failures > 0 {
			os.Exit(1)
		}
		return
	}

	records, err := collect(db, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error while scanning: %v\n", err)
		os.Exit(1)
	}
	render(os.Stdout, records, cfg.Colours)
}

func collect(db *badger.DB, prefix string) ([]repositories.Record, error) {
	var records []repositories.Record
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(v []byte) error {
				records = append(records, repositories.DescribeRecord(key, v))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}

func render(w io.Writer, records []repositories.Record, colours bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, record := range records {
		at := ""
		if !record.At.IsZero() {
			at = record.At.Format("2006-01-02 15:04:05")
		}
		// First 8 characters are enough to tell entities apart
		entity := record.Entity
		if len(entity) > 8 {
			entity = entity[:8]
		}
		table.Append([]string{record.Key, typeLabel(record.Type, colours), at, entity, record.Detail})
	}
	table.Render()
}

func auditUploads(ctx context.Context, db *badger.DB, uploadDir string) ([]storage.AuditEntry, error) {
	references, err := repositories.Attachments(db)
	if err != nil {
		return nil, err
	}
	return storage.Audit(ctx, uploadDir, references)
}

// renderAudit prints one row per file and returns the number of files with issues.
func renderAudit(w io.Writer, entries []storage.AuditEntry, colours bool) int {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"File", "Size", "Checksum", "Status"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	failures := 0
	for _, entry := range entries {
		checksum := entry.Checksum
		if len(checksum) > 16 {
			checksum = checksum[:16]
		}
		size := ""
		if !slices.Contains(entry.Issues, storage.IssueMissing) {
			size = fmt.Sprintf("%d", entry.Size)
		}
		table.Append([]string{entry.Name, size, checksum, statusLabel(entry, colours)})
		if !entry.OK() {
			failures++
		}
	}
	table.Render()
	fmt.Fprintf(w, "%d files audited, %d with issues\n", len(entries), failures)
	return failures
}

func statusLabel(entry storage.AuditEntry, colours bool) string {
	if entry.OK() {
		if colours {
			return color.New(color.FgGreen).Render("OK")
		}
		return "OK"
	}
	issues := make([]string, len(entry.Issues))
	for i, issue := range entry.Issues {
		issues[i] = string(issue)
	}
	label := strings.Join(issues, ",")
	if colours {
		return color.New(color.FgRed, color.OpBold).Render(label)
	}
	return label
}

func typeLabel(recordType string, colours bool) string {
	if !colours {
		return recordType
	}
	switch recordType {
	case repositories.RecordConversation:
		return color.New(color.FgCyan, color.OpBold).Render(recordType)
	case repositories.RecordText:
		return color.New(color.FgGreen).Render(recordType)
	case repositories.RecordFile:
		return color.New(color.FgYellow).Render(recordType)
	case repositories.RecordUnknown:
		return color.New(color.FgRed).Render(recordType)
	default:
		return recordType
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Log truncate required") {
			return nil, fmt.Errorf("%w: start the server once to repair the value log", err)
		}
		return nil, err
	}
	return db, nil
}
