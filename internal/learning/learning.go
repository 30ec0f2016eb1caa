// Package learning implements the Learning Engine (C12): offline
// aggregation of feedback into pattern statistics, and discovery of
// candidate patterns from recurring unknown failures. Grounded on the
// source engine's learning loop described in failure_analysis.go
// (pattern success-rate bookkeeping) and generalized per spec §4.12 into
// an EWMA update plus a Jaccard-clustered candidate synthesizer.
package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/feedback"
	"github.com/wardenci/warden/internal/fingerprint"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/patternstore"
)

// DefaultDecay is the EWMA decay alpha applied to pattern success rate
// updates (§4.12 default 0.2).
const DefaultDecay = 0.2

// ShingleSize is the token-shingle width used for Jaccard similarity
// between unknown-failure texts.
const ShingleSize = 3

// TopKeywords bounds the number of TF-ranked keywords kept on a
// synthesized candidate pattern.
const TopKeywords = 5

// Engine runs the offline statistics-update and candidate-discovery
// passes. It is not invoked from the analysis hot path.
type Engine struct {
	patterns *patternstore.Store
	feedback *feedback.Recorder
	decay    float64

	mu      sync.Mutex
	applied map[string]bool // feedback id -> already folded into stats
	pending map[string]model.Pattern
}

// New builds an Engine. decay <= 0 falls back to DefaultDecay.
func New(patterns *patternstore.Store, rec *feedback.Recorder, decay float64) *Engine {
	if decay <= 0 {
		decay = DefaultDecay
	}
	return &Engine{
		patterns: patterns,
		feedback: rec,
		decay:    decay,
		applied:  map[string]bool{},
		pending:  map[string]model.Pattern{},
	}
}

// UpdateStatsFromFeedback folds every not-yet-applied feedback record into
// its referenced pattern's running success_rate (EWMA, decay alpha) and
// occurrence_count (+1). Each feedback id is applied at most once (§4.12
// invariant): a second call after no new feedback is a no-op.
func (e *Engine) UpdateStatsFromFeedback() error {
	all, err := e.feedback.All()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	byPattern := map[string][]model.UserFeedback{}
	for _, fb := range all {
		key := fb.PatternID + "|" + fb.ID
		if e.applied[key] {
			continue
		}
		byPattern[fb.PatternID] = append(byPattern[fb.PatternID], fb)
	}

	for patternID, items := range byPattern {
		p, ok := e.patterns.ByID(patternID)
		if !ok {
			continue // feedback for a pattern that no longer exists; skip, don't fail the whole batch
		}
		rate := p.SuccessRate
		count := p.OccurrenceCount
		for _, fb := range items {
			obs := 0.0
			if fb.Success {
				obs = 1.0
			}
			rate = e.decay*obs + (1-e.decay)*rate
			count++
		}
		if err := e.patterns.UpdateStats(patternID, rate, count); err != nil {
			return err
		}
		for _, fb := range items {
			e.applied[patternID+"|"+fb.ID] = true
		}
	}
	return nil
}

// unknownGroup accumulates the failures that cluster into one candidate.
type unknownGroup struct {
	failures []model.Failure
}

// DiscoverCandidates scans unknown-kind failures, clusters them by exact
// fingerprint and then by Jaccard similarity on shingled tokens, and
// synthesizes a pending candidate Pattern for every cluster with at least
// minOccurrences members. Candidates are never auto-enabled; callers must
// PromoteCandidate.
func (e *Engine) DiscoverCandidates(failures []model.Failure, minOccurrences int, similarity float64) []model.Pattern {
	var unknowns []model.Failure
	for _, f := range failures {
		if f.Kind == model.FailureUnknown {
			unknowns = append(unknowns, f)
		}
	}
	if len(unknowns) == 0 {
		return nil
	}

	groups := clusterBySimilarity(unknowns, similarity)

	var candidates []model.Pattern
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, g := range groups {
		if len(g.failures) < minOccurrences {
			continue
		}
		p := synthesize(g.failures)
		e.pending[p.ID] = p
		candidates = append(candidates, p)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates
}

// PendingCandidates returns every candidate awaiting operator review.
func (e *Engine) PendingCandidates() []model.Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Pattern, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PromoteCandidate moves a pending candidate into the enabled learned
// pattern set via the pattern store's write path.
func (e *Engine) PromoteCandidate(id string) error {
	e.mu.Lock()
	p, ok := e.pending[id]
	e.mu.Unlock()
	if !ok {
		return errs.New(errs.KindValidation, "no pending candidate with id "+id)
	}
	p.Enabled = true
	p.DisabledReason = ""
	if err := e.patterns.UpsertLearned(p); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
	return nil
}

func clusterBySimilarity(failures []model.Failure, similarity float64) []*unknownGroup {
	var groups []*unknownGroup
	for _, f := range failures {
		normalized := fingerprint.Normalize(f.Message)
		shingles := shingle(tokenize(normalized), ShingleSize)

		var best *unknownGroup
		bestScore := 0.0
		for _, g := range groups {
			repShingles := shingle(tokenize(fingerprint.Normalize(g.failures[0].Message)), ShingleSize)
			score := jaccard(shingles, repShingles)
			if score >= similarity && score > bestScore {
				best, bestScore = g, score
			}
		}
		if best == nil {
			best = &unknownGroup{}
			groups = append(groups, best)
		}
		best.failures = append(best.failures, f)
	}
	return groups
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func shingle(tokens []string, k int) map[string]bool {
	out := map[string]bool{}
	if len(tokens) < k {
		out[strings.Join(tokens, " ")] = true
		return out
	}
	for i := 0; i+k <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+k], " ")] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// synthesize builds a candidate Pattern from a cluster of similar unknown
// failures: a regex over the longest common substring frame, the top-K
// keywords by term frequency, category=unknown, source=learned.
func synthesize(failures []model.Failure) model.Pattern {
	messages := make([]string, len(failures))
	for i, f := range failures {
		messages[i] = fingerprint.Normalize(f.Message)
	}

	frame := messages[0]
	for _, m := range messages[1:] {
		frame = longestCommonSubstring(frame, m)
	}
	frame = strings.TrimSpace(frame)

	re := frame
	if re == "" {
		re = escapeFrame(strings.Fields(messages[0])[0])
	} else {
		re = escapeFrame(re)
	}

	keywords := topKeywords(messages, TopKeywords)

	id := candidateID(messages)
	return model.Pattern{
		ID:              "learned_" + id,
		Name:            "Recurring unknown failure " + id,
		Category:        "unknown",
		Regexes:         []string{re},
		Keywords:        keywords,
		BaseConfidence:  0.5,
		OccurrenceCount: len(failures),
		Source:          model.SourceLearned,
		Enabled:         false,
		DisabledReason:  "pending operator promotion",
	}
}

// frameMarkerRe matches the placeholder tokens fingerprint.Normalize
// substitutes for volatile text (digits, absolute paths, timestamps).
var frameMarkerRe = regexp.MustCompile(`<ts>|<path>|#`)

// escapeFrame turns a normalized frame into a regex that matches the
// literal text verbatim but matches the original volatile content where
// Normalize collapsed it to a placeholder, so a synthesized pattern still
// matches the raw (non-normalized) failure text it was learned from —
// e.g. "#" (a run of digits) becomes `\d+`, not a literal "#".
func escapeFrame(frame string) string {
	var b strings.Builder
	last := 0
	for _, loc := range frameMarkerRe.FindAllStringIndex(frame, -1) {
		b.WriteString(regexp.QuoteMeta(frame[last:loc[0]]))
		if frame[loc[0]:loc[1]] == "#" {
			b.WriteString(`\d+`)
		} else {
			b.WriteString(`\S+`)
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(frame[last:]))
	return b.String()
}

func longestCommonSubstring(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	best, bestLen := 0, 0
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
				if dp[i][j] > bestLen {
					bestLen = dp[i][j]
					best = i
				}
			}
		}
	}
	return a[best-bestLen : best]
}

func topKeywords(messages []string, k int) []string {
	freq := map[string]int{}
	for _, m := range messages {
		seen := map[string]bool{}
		for _, tok := range tokenize(m) {
			if len(tok) < 3 || seen[tok] {
				continue
			}
			seen[tok] = true
			freq[tok]++
		}
	}
	type kv struct {
		word  string
		count int
	}
	var kvs []kv
	for w, c := range freq {
		kvs = append(kvs, kv{w, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].word < kvs[j].word
	})
	if len(kvs) > k {
		kvs = kvs[:k]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.word
	}
	return out
}

func candidateID(messages []string) string {
	h := sha256.Sum256([]byte(strings.Join(messages, "\n")))
	return hex.EncodeToString(h[:])[:10]
}
