// Package policy centralizes the command allow-list and path-containment
// rules shared by the Fix Template Store (C7), the Fix Generator (C8), and
// the Auto Fixer (C10), so all three enforce exactly the same closed set
// (§4.10). Grounded on the source engine's command construction in
// test_engine.go (framework-specific lint/test/build argv tables), narrowed
// here from "run anything the framework needs" to an explicit allow-list.
package policy

import (
	"path/filepath"
	"strings"

	"github.com/wardenci/warden/internal/errs"
)

// AllowedCommands is the closed set of argv[0] values an auto-fix may
// execute: package installers, test runners, linters, formatters.
var AllowedCommands = map[string]bool{
	"pip": true, "pip3": true, "npm": true, "yarn": true, "pnpm": true,
	"go": true, "cargo": true, "composer": true, "bundle": true, "gem": true,
	"pytest": true, "jest": true, "go test": true, "mvn": true, "gradle": true,
	"gofmt": true, "golangci-lint": true, "black": true, "eslint": true, "prettier": true,
	"ruff": true,
}

// deniedPrefixes are directories auto-fix writes must never touch,
// regardless of project root containment.
var deniedPrefixes = []string{".git/", "/etc/", "~/.ssh/"}

// IsCommandAllowed reports whether argv[0] is on the closed allow-list.
func IsCommandAllowed(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	return AllowedCommands[argv[0]]
}

// IsPredicateAllowed reports whether a shell predicate string (a
// FixStep.Validation or FixTemplate.ValidationSteps entry, run via
// `sh -c`) starts with a command on the allow-list. Validation predicates
// are shell strings rather than argv slices, but the allow-list is closed
// regardless of how a step names its command (§4.10), so the same check
// applies to the predicate's leading token.
func IsPredicateAllowed(predicate string) bool {
	fields := strings.Fields(predicate)
	if len(fields) == 0 {
		return false
	}
	return IsCommandAllowed(fields[:1])
}

// NormalizePath cleans a target path and verifies it remains within
// projectRoot after normalization, returning the absolute path. A path
// matching a denied prefix, or one that escapes projectRoot via `..`, is
// rejected with a KindPolicy error.
func NormalizePath(projectRoot, target string) (string, error) {
	for _, denied := range deniedPrefixes {
		if strings.HasPrefix(target, denied) || strings.Contains(target, "/"+strings.TrimSuffix(denied, "/")+"/") {
			return "", errs.New(errs.KindPolicy, "path denied by policy: "+target)
		}
	}
	cleanRoot := filepath.Clean(projectRoot)
	joined := filepath.Join(cleanRoot, target)
	rel, err := filepath.Rel(cleanRoot, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.New(errs.KindPolicy, "path escapes project root: "+target)
	}
	return joined, nil
}
