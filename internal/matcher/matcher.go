// Package matcher implements the Pattern Matcher (C6): scoring every
// enabled pattern against every extracted failure and returning a
// deterministically ordered set of matches above a confidence threshold.
// Grounded on the source engine's preClassifyFailure (failure_analysis.go)
// for the match-then-score shape, and on the confidence-scored
// classification in other_examples/.../pattern-intelligence.go.go and
// .../pattern_matcher.go.go for blending regex/keyword signal strength.
// Concurrency uses golang.org/x/sync/errgroup to fan the per-failure work
// out across a bounded worker set, matching spec §5's "parallelism within
// a request is bounded and CPU-only."
package matcher

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/patternstore"
)

// DefaultThreshold is θ from §4.6.
const DefaultThreshold = 0.6

// Matcher matches an ExecutionResult's failures against a Store.
type Matcher struct {
	store  *patternstore.Store
	logger *logrus.Logger

	mu          sync.Mutex
	compiled    map[string][]*regexp.Regexp
	quarantined map[string]string
}

// New builds a Matcher over store.
func New(store *patternstore.Store, logger *logrus.Logger) *Matcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Matcher{
		store:       store,
		logger:      logger,
		compiled:    map[string][]*regexp.Regexp{},
		quarantined: map[string]string{},
	}
}

// Match scores every enabled pattern (optionally filtered by category)
// against every failure in result, returning matches at or above
// threshold (0 selects DefaultThreshold), ordered per the §4.6 tie-break
// chain.
func (m *Matcher) Match(ctx context.Context, result model.ExecutionResult, projectRoot, categoryFilter string, threshold float64) ([]model.PatternMatch, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	failures := result.AllFailures()
	patterns := m.store.AllEnabled(categoryFilter)
	if len(patterns) == 0 || len(failures) == 0 {
		return nil, nil
	}

	perFailure := make([][]model.PatternMatch, len(failures))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, f := range failures {
		i, f := i, f
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			perFailure[i] = m.matchFailure(f, i, patterns, result.LogText, projectRoot, threshold)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, errs.Wrap(errs.KindCancelled, "pattern matching cancelled", err)
		}
		return nil, err
	}

	var all []model.PatternMatch
	for _, ms := range perFailure {
		all = append(all, ms...)
	}
	m.sortDeterministic(all)
	return all, nil
}

func (m *Matcher) sortDeterministic(matches []model.PatternMatch) {
	meta := make(map[string]model.Pattern, len(matches))
	for _, mm := range matches {
		if _, ok := meta[mm.PatternID]; !ok {
			if p, ok := m.store.ByID(mm.PatternID); ok {
				meta[mm.PatternID] = p
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		pa, pb := meta[a.PatternID], meta[b.PatternID]
		if pa.SuccessRate != pb.SuccessRate {
			return pa.SuccessRate > pb.SuccessRate
		}
		if pa.OccurrenceCount != pb.OccurrenceCount {
			return pa.OccurrenceCount > pb.OccurrenceCount
		}
		return a.PatternID < b.PatternID
	})
}

func (m *Matcher) contextGate(p model.Pattern, logText, projectRoot string) bool {
	for _, req := range p.ContextRequirements {
		switch req.Kind {
		case "file_exists":
			if _, err := os.Stat(filepath.Join(projectRoot, req.Value)); err != nil {
				return false
			}
		case "log_contains":
			if !strings.Contains(logText, req.Value) {
				return false
			}
		case "not_contains":
			if strings.Contains(logText, req.Value) {
				return false
			}
		}
	}
	return true
}

// compiledRegexes returns p's compiled regexes, compiling (and caching)
// them lazily. A pattern whose regex fails to compile is quarantined for
// the remainder of this Matcher's lifetime and skipped thereafter.
func (m *Matcher) compiledRegexes(p model.Pattern) ([]*regexp.Regexp, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, bad := m.quarantined[p.ID]; bad {
		return nil, false
	}
	if res, ok := m.compiled[p.ID]; ok {
		return res, true
	}
	compiled := make([]*regexp.Regexp, 0, len(p.Regexes))
	for _, r := range p.Regexes {
		re, err := regexp.Compile(r)
		if err != nil {
			m.quarantined[p.ID] = err.Error()
			m.logger.WithField("pattern_id", p.ID).WithError(err).
				Warn("quarantining pattern: regex failed to compile")
			return nil, false
		}
		compiled = append(compiled, re)
	}
	m.compiled[p.ID] = compiled
	return compiled, true
}

func (m *Matcher) matchFailure(f model.Failure, idx int, patterns []model.Pattern, logText, projectRoot string, threshold float64) []model.PatternMatch {
	var out []model.PatternMatch
	text := f.CombinedText()
	lowerText := strings.ToLower(text)

	for _, p := range patterns {
		if !m.contextGate(p, logText, projectRoot) {
			continue
		}
		regexes, ok := m.compiledRegexes(p)
		if !ok {
			continue
		}

		var matchedRegexes []string
		var spans [][2]int
		captures := map[string]string{}
		totalCaptureSlots := 0
		for _, re := range regexes {
			for _, name := range re.SubexpNames() {
				if name != "" {
					totalCaptureSlots++
				}
			}
			loc := re.FindStringSubmatchIndex(text)
			if loc == nil {
				continue
			}
			matchedRegexes = append(matchedRegexes, re.String())
			spans = append(spans, [2]int{loc[0], loc[1]})
			for gi, name := range re.SubexpNames() {
				if name == "" || 2*gi+1 >= len(loc) || loc[2*gi] < 0 {
					continue
				}
				captures[name] = text[loc[2*gi]:loc[2*gi+1]]
			}
		}
		if len(p.Regexes) > 0 && len(matchedRegexes) == 0 {
			continue
		}

		var matchedKeywords []string
		for _, kw := range p.Keywords {
			if strings.Contains(lowerText, strings.ToLower(kw)) {
				matchedKeywords = append(matchedKeywords, kw)
			}
		}
		if len(p.Keywords) > 0 {
			required := int(math.Ceil(float64(len(p.Keywords)) / 2))
			if len(matchedKeywords) < required {
				continue
			}
		}

		regexRatio := ratio(len(matchedRegexes), len(p.Regexes))
		keywordRatio := ratio(len(matchedKeywords), len(p.Keywords))
		captureRatio := ratio(len(captures), totalCaptureSlots)

		strength := 0.6*regexRatio + 0.3*keywordRatio + 0.1*captureRatio
		confidence := clamp(p.BaseConfidence*(0.5+0.5*strength)*(0.5+0.5*p.SuccessRate), 0, 1)
		if confidence < threshold {
			continue
		}

		out = append(out, model.PatternMatch{
			PatternID:       p.ID,
			FailureIndex:    idx,
			Spans:           spans,
			Captures:        captures,
			ContextSnippet:  snippet(f),
			MatchStrength:   strength,
			Confidence:      confidence,
			MatchedRegexes:  matchedRegexes,
			MatchedKeywords: matchedKeywords,
		})
	}
	return out
}

// ratio returns matched/total, contributing 1.0 when total is zero so a
// missing denominator never drags the blend down (§4.6 step 4).
func ratio(matched, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(matched) / float64(total)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func snippet(f model.Failure) string {
	var b strings.Builder
	for _, l := range f.ContextBefore {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(f.Message)
	for _, l := range f.ContextAfter {
		b.WriteByte('\n')
		b.WriteString(l)
	}
	return b.String()
}
