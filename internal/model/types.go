// Package model holds the shared data types that flow between warden's
// components: logs, execution results, patterns, fixes, snapshots and
// feedback. Components own behavior; this package only owns shape.
package model

import "time"

// FailureKind classifies a single Failure.
type FailureKind string

const (
	FailureAssertion  FailureKind = "assertion"
	FailureError      FailureKind = "error"
	FailureTimeout    FailureKind = "timeout"
	FailureSyntax     FailureKind = "syntax"
	FailureDependency FailureKind = "dependency"
	FailurePermission FailureKind = "permission"
	FailureNetwork    FailureKind = "network"
	FailureUnknown    FailureKind = "unknown"
)

// PatternSource records where a Pattern came from.
type PatternSource string

const (
	SourceBuiltin PatternSource = "builtin"
	SourceUser    PatternSource = "user"
	SourceLearned PatternSource = "learned"
)

// Risk is the FixTemplate/FixSuggestion risk tier.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

func (r Risk) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 3
	}
}

// LessRisky reports whether r is no riskier than other (used for the
// risk-tolerance comparisons in C8 and C10).
func (r Risk) LessRisky(other Risk) bool { return r.rank() <= other.rank() }

// FixStepKind discriminates FixStep.
type FixStepKind string

const (
	StepFileEdit   FixStepKind = "file_edit"
	StepFileCreate FixStepKind = "file_create"
	StepFileDelete FixStepKind = "file_delete"
	StepCommand    FixStepKind = "command"
)

// EditMode is the file_edit application strategy.
type EditMode string

const (
	EditAppend         EditMode = "append"
	EditPrepend        EditMode = "prepend"
	EditReplace        EditMode = "replace"
	EditRegexSubstitute EditMode = "regex_substitute"
)

// Origin describes where a Log came from.
type Origin struct {
	Workflow  string
	Job       string
	StepIndex int
	Timestamp time.Time
}

// Log is a raw, immutable chunk of runner output.
type Log struct {
	Origin Origin
	Text   string
}

// Failure is one detected problem inside a failed step.
type Failure struct {
	Kind         FailureKind
	Message      string
	FilePath     string
	Line         int
	ContextBefore []string
	ContextAfter  []string
	StackTrace    []string
	Occurrences   int
	Fingerprint   string
}

// CombinedText is what pattern matching runs regexes/keywords against.
func (f Failure) CombinedText() string {
	text := f.Message
	if len(f.StackTrace) > 0 {
		text += "\n"
		for _, l := range f.StackTrace {
			text += l + "\n"
		}
	}
	return text
}

// StepResult is one step of a job.
type StepResult struct {
	Name     string
	Success  bool
	Duration time.Duration
	Failures []Failure
}

// JobResult is an ordered sequence of steps.
type JobResult struct {
	Name    string
	Success bool
	Steps   []StepResult
}

// WorkflowResult is an ordered sequence of jobs.
type WorkflowResult struct {
	Name    string
	Success bool
	Jobs    []JobResult
}

// ExecutionResult is the top-level output of the Failure Extractor (C4).
type ExecutionResult struct {
	Workflows []WorkflowResult
	Success   bool
	Duration  time.Duration
	LogText   string
}

// AllFailures flattens every Failure across all workflows/jobs/steps, in
// deterministic (workflow, job, step) order.
func (e ExecutionResult) AllFailures() []Failure {
	var out []Failure
	for _, w := range e.Workflows {
		for _, j := range w.Jobs {
			for _, s := range j.Steps {
				out = append(out, s.Failures...)
			}
		}
	}
	return out
}

// Pattern is a named recognizer with running success statistics.
type Pattern struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Category            string               `json:"category"`
	Regexes             []string             `json:"regexes"`
	Keywords            []string             `json:"keywords"`
	ContextRequirements []ContextRequirement `json:"context_requirements,omitempty"`
	BaseConfidence      float64              `json:"base_confidence"`
	SuccessRate         float64              `json:"success_rate"`
	OccurrenceCount     int                  `json:"occurrence_count"`
	Source              PatternSource        `json:"source"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
	Enabled             bool                 `json:"enabled"`
	DisabledReason      string               `json:"disabled_reason,omitempty"`

	// Unknown holds round-trip-preserved fields this version of warden
	// does not understand, so writes stay byte-identical modulo key order.
	Unknown map[string]interface{} `json:"-"`
}

// ContextRequirement is one precondition a pattern demands before it is
// even attempted against a failure.
type ContextRequirement struct {
	Kind  string `json:"kind"` // file_exists | log_contains | not_contains
	Value string `json:"value"`
}

// PatternMatch is one scored match of a Pattern against a Failure.
type PatternMatch struct {
	PatternID     string
	FailureIndex  int
	Spans         [][2]int
	Captures      map[string]string
	ContextSnippet string
	MatchStrength float64
	Confidence    float64
	MatchedRegexes []string
	MatchedKeywords []string
}

// FixStep is one concrete action a FixTemplate or FixSuggestion performs.
type FixStep struct {
	Kind       FixStepKind   `json:"type"`
	TargetPath string        `json:"target_path,omitempty"`
	EditMode   EditMode      `json:"edit_mode,omitempty"`
	Payload    string        `json:"payload,omitempty"`
	Argv       []string      `json:"argv,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	Validation string        `json:"validation,omitempty"` // optional shell predicate, empty if none
}

// FixTemplate is a recipe mapped to one or more pattern ids.
type FixTemplate struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	PatternIDs      []string               `json:"pattern_ids"`
	Steps           []FixStep              `json:"steps"`
	Risk            Risk                   `json:"risk"`
	EstimatedTime   string                 `json:"estimated_time"`
	SuccessRate     float64                `json:"success_rate"`
	Prerequisites   []string               `json:"prerequisites,omitempty"`
	ValidationSteps []string               `json:"validation_steps,omitempty"`
	Unknown         map[string]interface{} `json:"-"`
}

// FixSuggestion is a FixTemplate instantiated against one PatternMatch.
type FixSuggestion struct {
	ID              string
	Title           string
	Description     string
	Match           PatternMatch
	Steps           []FixStep
	Risk            Risk
	EstimatedTime   string
	Confidence      float64
	AutoApplicable  bool
	ValidationSteps []string
}

// SnapshotEntry is one recorded file inside a Snapshot.
type SnapshotEntry struct {
	OriginalPath string
	StoredPath   string
	SHA256       string
	Mode         uint32
	Size         int64
	Tombstone    bool // true if the file did not exist when snapshotted
}

// Snapshot is an immutable point-in-time record of a file set.
type Snapshot struct {
	ID          string
	CreatedAt   time.Time
	Entries     []SnapshotEntry
	Description string
}

// FixResult is the outcome of an Auto Fixer apply attempt.
type FixResult struct {
	Success            bool
	AppliedSteps       []FixStep
	SnapshotID         string
	Error              error
	VerificationPassed bool
	RollbackAvailable  bool
}

// UserFeedback is one append-only feedback record.
type UserFeedback struct {
	ID              string
	PatternID       string
	FixSuggestionID string // empty if none
	Rating          int
	Success         bool
	Comment         string
	Timestamp       time.Time
}

// CacheEntry is one Response Cache record.
type CacheEntry struct {
	Key          string
	Value        []byte
	CreatedAt    time.Time
	Size         int64
	LastAccessed time.Time
}

// AnalysisResult is the top-level output of one analysis request: the
// parsed execution, its ranked pattern matches, and any generated fix
// suggestions. It is what gets serialized as a Response Cache value.
type AnalysisResult struct {
	ID          string
	Fingerprint string
	Execution   ExecutionResult
	Matches     []PatternMatch
	Suggestions []FixSuggestion
	AnalyzedAt  time.Time
	FromCache   bool
}
