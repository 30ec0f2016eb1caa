// Package extract implements the Failure Extractor (C4): turning a log blob
// into a structured model.ExecutionResult with per-step failures, context
// windows, and fingerprints. Grounded on the source engine's
// preClassifyFailure (failure_analysis.go), which scans raw log lines and
// error strings for known signals before ever calling an LLM, and on
// greplogs's per-line regex scanning (other_examples/.../logparse-failure.go.go).
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wardenci/warden/internal/fingerprint"
	"github.com/wardenci/warden/internal/logsignal"
	"github.com/wardenci/warden/internal/model"
)

// DefaultContextLines mirrors compress.DefaultContextLines: K lines of
// context before/after a signal, default 5 per §4.4.
const DefaultContextLines = 5

// DefaultSyntheticContext is how many trailing lines back a synthetic
// unknown failure when a failed step has no detected signal.
const DefaultSyntheticContext = 20

var (
	stepHeaderRe = regexp.MustCompile(`^=== STEP: (.+) ===$`)
	stepExitRe   = regexp.MustCompile(`^--- EXIT (-?\d+) ---$`)
	workerRe     = regexp.MustCompile(`^\[([A-Za-z0-9_.\-]+)\]\s(.*)$`)
	fileLineRe   = regexp.MustCompile(`([A-Za-z0-9_./\-]+\.[A-Za-z0-9]+):(\d+)`)
)

// Extractor parses runner log text into an ExecutionResult.
type Extractor struct {
	contextLines int
}

// New builds an Extractor using contextLines lines of context around each
// signal (0 selects DefaultContextLines).
func New(contextLines int) *Extractor {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}
	return &Extractor{contextLines: contextLines}
}

type rawStep struct {
	name     string
	lines    []string
	exitCode int
	hasExit  bool
}

// demux splits text into per-worker line streams when every non-blank line
// carries a "[worker] " prefix; otherwise it returns a single stream under
// the empty worker key, preserving input order.
func demux(text string) map[string][]string {
	lines := strings.Split(text, "\n")
	allMatch := true
	nonBlank := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		nonBlank++
		if !workerRe.MatchString(l) {
			allMatch = false
			break
		}
	}
	out := map[string][]string{}
	if !allMatch || nonBlank == 0 {
		out[""] = lines
		return out
	}
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		m := workerRe.FindStringSubmatch(l)
		worker, rest := m[1], m[2]
		out[worker] = append(out[worker], rest)
	}
	return out
}

func splitSteps(lines []string) []rawStep {
	var steps []rawStep
	var cur *rawStep
	flush := func() {
		if cur != nil {
			steps = append(steps, *cur)
			cur = nil
		}
	}
	for _, l := range lines {
		if m := stepHeaderRe.FindStringSubmatch(l); m != nil {
			flush()
			cur = &rawStep{name: m[1]}
			continue
		}
		if m := stepExitRe.FindStringSubmatch(l); m != nil && cur != nil {
			code, _ := strconv.Atoi(m[1])
			cur.exitCode = code
			cur.hasExit = true
			continue
		}
		if cur != nil {
			cur.lines = append(cur.lines, l)
		}
	}
	flush()
	if len(steps) == 0 {
		// No step markers at all: the whole stream is one synthetic step.
		steps = append(steps, rawStep{name: "run", lines: lines, exitCode: 0, hasExit: true})
	}
	return steps
}

func contextWindow(lines []string, idx, k int) (before, after []string) {
	lo := idx - k
	if lo < 0 {
		lo = 0
	}
	hi := idx + k
	if hi >= len(lines) {
		hi = len(lines) - 1
	}
	before = append(before, lines[lo:idx]...)
	if idx+1 <= hi {
		after = append(after, lines[idx+1:hi+1]...)
	}
	return
}

func extractFileLine(text string) (string, int) {
	m := fileLineRe.FindStringSubmatch(text)
	if m == nil {
		return "", 0
	}
	line, _ := strconv.Atoi(m[2])
	return m[1], line
}

func (e *Extractor) extractStep(step rawStep) model.StepResult {
	result := model.StepResult{Name: step.name, Success: !step.hasExit || step.exitCode == 0}

	byFingerprint := map[string]*model.Failure{}
	var order []string

	for i, line := range step.lines {
		_, kind, matched := logsignal.Classify(line)
		if !matched {
			continue
		}
		before, after := contextWindow(step.lines, i, e.contextLines)
		path, ln := extractFileLine(line)
		f := model.Failure{
			Kind:          kind,
			Message:       strings.TrimSpace(line),
			FilePath:      path,
			Line:          ln,
			ContextBefore: before,
			ContextAfter:  after,
			Occurrences:   1,
		}
		f.Fingerprint = fingerprint.Compute(f)
		if existing, ok := byFingerprint[f.Fingerprint]; ok {
			existing.Occurrences++
			continue
		}
		byFingerprint[f.Fingerprint] = &f
		order = append(order, f.Fingerprint)
	}

	if result.Success {
		return result
	}

	if len(order) == 0 {
		// Failed step, no detected signal: one synthetic unknown failure.
		tail := step.lines
		if len(tail) > DefaultSyntheticContext {
			tail = tail[len(tail)-DefaultSyntheticContext:]
		}
		msg := "step exited non-zero with no recognized failure signal"
		if len(tail) > 0 {
			msg = tail[len(tail)-1]
		}
		f := model.Failure{
			Kind:        model.FailureUnknown,
			Message:     msg,
			ContextAfter: nil,
			ContextBefore: tail,
			Occurrences: 1,
		}
		f.Fingerprint = fingerprint.Compute(f)
		result.Failures = append(result.Failures, f)
		return result
	}

	for _, fp := range order {
		result.Failures = append(result.Failures, *byFingerprint[fp])
	}
	return result
}

// Extract parses sanitized (and optionally compressed) log text into an
// ExecutionResult. origin.Workflow names the resulting single
// WorkflowResult; each demultiplexed worker becomes its own JobResult.
func (e *Extractor) Extract(text string, origin model.Origin) (model.ExecutionResult, error) {
	streams := demux(text)

	var jobs []model.JobResult
	// Deterministic order: single-stream key "" first, else sorted workers.
	keys := make([]string, 0, len(streams))
	for k := range streams {
		keys = append(keys, k)
	}
	// simple stable sort without extra import: insertion sort is fine, N is small
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}

	for _, worker := range keys {
		steps := splitSteps(streams[worker])
		jobName := origin.Job
		if worker != "" {
			jobName = fmt.Sprintf("job-%s", worker)
		}
		job := model.JobResult{Name: jobName, Success: true}
		for _, s := range steps {
			sr := e.extractStep(s)
			if !sr.Success {
				job.Success = false
			}
			job.Steps = append(job.Steps, sr)
		}
		jobs = append(jobs, job)
	}

	wf := model.WorkflowResult{Name: origin.Workflow, Success: true, Jobs: jobs}
	for _, j := range jobs {
		if !j.Success {
			wf.Success = false
		}
	}

	result := model.ExecutionResult{
		Workflows: []model.WorkflowResult{wf},
		Success:   wf.Success,
		LogText:   text,
		Duration:  0,
	}
	return result, nil
}
