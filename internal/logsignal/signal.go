// Package logsignal holds the failure-signal regexes shared by the Log
// Compressor (C3) and the Failure Extractor (C4), so a line both engines
// agree is "error region" in compression is the same line C4 later turns
// into a Failure. Grounded on the Go project's own greplogs tool
// (other_examples/.../logparse-failure.go.go), which keys an entire test
// log parser off a bank of named regexps in exactly this shape, and on the
// source engine's ErrorPatternRule table in failure_analysis.go.
package logsignal

import (
	"regexp"

	"github.com/wardenci/warden/internal/model"
)

// Priority is the region priority used by the compressor.
type Priority int

const (
	PriorityInfo Priority = iota
	PriorityWarning
	PriorityError
)

type signal struct {
	re       *regexp.Regexp
	priority Priority
	kind     model.FailureKind
}

var signals = []signal{
	{regexp.MustCompile(`(?i)panic:`), PriorityError, model.FailureError},
	{regexp.MustCompile(`(?i)\bassert(ion)?\s*(error|failed)\b`), PriorityError, model.FailureAssertion},
	{regexp.MustCompile(`(?i)--- FAIL:`), PriorityError, model.FailureAssertion},
	{regexp.MustCompile(`(?i)\btraceback \(most recent call last\)`), PriorityError, model.FailureError},
	{regexp.MustCompile(`(?i)\b[A-Za-z_.]*Error\b:`), PriorityError, model.FailureError},
	{regexp.MustCompile(`(?i)\bException\b`), PriorityError, model.FailureError},
	{regexp.MustCompile(`(?i)syntax error`), PriorityError, model.FailureSyntax},
	{regexp.MustCompile(`(?i)context deadline exceeded|timed? ?out`), PriorityError, model.FailureTimeout},
	{regexp.MustCompile(`(?i)permission denied`), PriorityError, model.FailurePermission},
	{regexp.MustCompile(`(?i)no such host|connection refused|network is unreachable|dial tcp`), PriorityError, model.FailureNetwork},
	{regexp.MustCompile(`(?i)module not found|cannot find (package|module)|no module named`), PriorityError, model.FailureDependency},
	{regexp.MustCompile(`(?i)exit (status|code) [1-9]\d*`), PriorityError, model.FailureError},
	{regexp.MustCompile(`(?i)\bwarn(ing)?\b`), PriorityWarning, model.FailureUnknown},
	{regexp.MustCompile(`(?i)\bdeprecat(ed|ion)\b`), PriorityWarning, model.FailureUnknown},
}

// Classify returns the priority and candidate failure kind of a single log
// line. A line matching nothing is PriorityInfo / FailureUnknown, matched
// being false.
func Classify(line string) (Priority, model.FailureKind, bool) {
	for _, s := range signals {
		if s.re.MatchString(line) {
			return s.priority, s.kind, true
		}
	}
	return PriorityInfo, model.FailureUnknown, false
}

// IsSignal reports whether line trips any signal rule, regardless of kind
// or priority (warning-priority rules included).
func IsSignal(line string) bool {
	_, _, ok := Classify(line)
	return ok
}
