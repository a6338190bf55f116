package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// storedNamePattern is what GenerateStoredName can produce, used to refuse
// anything else on retrieval.
var storedNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Sanitize replaces every character outside [A-Za-z0-9.-] with '_'.
func Sanitize(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// splitExt behaves like a browser-facing basename/extname split: a name made
// of a single leading dot segment (".bashrc") has no extension.
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		return name, ""
	}
	return base, ext
}

// GenerateStoredName builds sanitize(base) + "-" + millis + "-" + random + ext.
// The untrusted name only contributes sanitized characters, never separators,
// and leading dots are dropped so a stored file is never hidden.
func GenerateStoredName(declaredName string, now time.Time, random int64) string {
	base, ext := splitExt(Sanitize(declaredName))
	base = strings.TrimLeft(base, ".")
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%s-%d-%d%s", base, now.UnixMilli(), random, ext)
}

// isStoredName reports whether name is a single safe path element.
func isStoredName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	return storedNamePattern.MatchString(name) && filepath.Base(name) == name
}
