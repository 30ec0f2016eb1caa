// Package fingerprint computes the deterministic Fingerprint identity (§3)
// shared by the Failure Extractor (C4), the Response Cache (C13) key, and
// the Learning Engine's (C12) unknown-failure grouping. Grounded on
// greplogs's canonicalMessage (other_examples/.../logparse-failure.go.go),
// which strips digits from messages before grouping identical test
// failures; generalized here to also strip absolute paths and timestamps.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strings"

	"github.com/wardenci/warden/internal/model"
)

var (
	digitsRe    = regexp.MustCompile(`\d+`)
	absPathRe   = regexp.MustCompile(`(?:/[A-Za-z0-9_.\-]+){2,}`)
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+\-]\d{2}:?\d{2})?`)
)

// Normalize strips digits, absolute paths, and timestamps from a message so
// that two occurrences of the "same" failure with different line numbers,
// PIDs, or timestamps collapse to one normalized form.
func Normalize(message string) string {
	m := timestampRe.ReplaceAllString(message, "<ts>")
	m = absPathRe.ReplaceAllString(m, "<path>")
	m = digitsRe.ReplaceAllString(m, "#")
	return strings.TrimSpace(m)
}

// pathSuffix returns the last two path segments, the grouping granularity
// Fingerprint uses for FilePath.
func pathSuffix(p string) string {
	if p == "" {
		return ""
	}
	dir, file := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || dir == "." {
		return file
	}
	_, parent := path.Split(dir)
	return parent + "/" + file
}

// Compute returns the deterministic Fingerprint for a Failure: a hash of
// its normalized message, kind, file-path suffix, and whether a line number
// is present (not its value).
func Compute(f model.Failure) string {
	hasLine := "0"
	if f.Line > 0 {
		hasLine = "1"
	}
	parts := strings.Join([]string{
		Normalize(f.Message),
		string(f.Kind),
		pathSuffix(f.FilePath),
		hasLine,
	}, "|")
	sum := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(sum[:])[:16]
}
