package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Already safe", "report-2024.pdf", "report-2024.pdf"},
		{"Spaces", "my report.pdf", "my_report.pdf"},
		{"Path traversal", "../../etc/passwd", ".._.._etc_passwd"},
		{"Windows separators", `..\..\boot.ini`, ".._.._boot.ini"},
		{"Control characters", "a\x00b\nc.txt", "a_b_c.txt"},
		{"Unicode", "résumé.pdf", "r_sum_.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

func TestGenerateStoredName(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	tests := []struct {
		name     string
		declared string
		expected string
	}{
		{"Keeps extension", "my report.pdf", "my_report-1700000000000-42.pdf"},
		{"No extension", "README", "README-1700000000000-42"},
		{"Dot file has no extension", ".bashrc", "bashrc-1700000000000-42"},
		{"Traversal is flattened", "../../x.pdf", "_.._x-1700000000000-42.pdf"},
		{"Only extension", ".pdf", "pdf-1700000000000-42"},
		{"Empty base", "..pdf", "file-1700000000000-42.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got := GenerateStoredName(tt.declared, now, 42)
			req.Equal(tt.expected, got)
			req.True(isStoredName(got))
			req.False(strings.ContainsAny(got, `/\`))
		})
	}
}

func TestIsStoredName(t *testing.T) {
	req := require.New(t)
	req.True(isStoredName("photo-1700000000000-1.png"))

	req.False(isStoredName(""))
	req.False(isStoredName("."))
	req.False(isStoredName(".."))
	req.False(isStoredName(".partial"))
	req.False(isStoredName("../secret.txt"))
	req.False(isStoredName("a/b.txt"))
	req.False(isStoredName("a b.txt"))
}
