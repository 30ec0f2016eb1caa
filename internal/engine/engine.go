// Package engine implements the request dispatcher: the stateless-per-
// request orchestration spec.md §2 describes ("a single analysis request
// is the unit of work... stateless... except for shared read-mostly
// stores and the append-mostly feedback log"), generalizing the
// teacher's DaggerAutofix struct (main.go: New/WithX builders,
// Initialize, AnalyzeFailure, AutoFix) from a GitHub/Dagger-bound module
// into a plain orchestrator over the thirteen components.
package engine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wardenci/warden/internal/autofixer"
	"github.com/wardenci/warden/internal/compress"
	"github.com/wardenci/warden/internal/config"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/extract"
	"github.com/wardenci/warden/internal/feedback"
	"github.com/wardenci/warden/internal/fingerprint"
	"github.com/wardenci/warden/internal/fixgen"
	"github.com/wardenci/warden/internal/fixtemplate"
	"github.com/wardenci/warden/internal/learning"
	"github.com/wardenci/warden/internal/matcher"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/patternstore"
	"github.com/wardenci/warden/internal/respcache"
	"github.com/wardenci/warden/internal/sanitize"
	"github.com/wardenci/warden/internal/snapshot"
	"github.com/wardenci/warden/internal/tokencount"
)

// Engine owns the shared read-mostly stores (patterns, templates), the
// append-mostly feedback log, and the response cache; an individual
// AnalyzeFailure/ApplyFix call otherwise touches no engine-owned mutable
// state besides those.
type Engine struct {
	cfg    config.Config
	logger *logrus.Logger

	sanitizer *sanitize.Sanitizer
	counter   *tokencount.Counter
	compressor *compress.Compressor
	extractor *extract.Extractor
	patterns  *patternstore.Store
	templates *fixtemplate.Store
	matcher   *matcher.Matcher
	generator *fixgen.Generator
	snapshots *snapshot.Manager
	fixer     *autofixer.Fixer
	feedback  *feedback.Recorder
	learner   *learning.Engine
	cache     *respcache.Cache

	mu            sync.Mutex
	shutdownFuncs []func() error
}

// New builds an unconfigured Engine. Call the WithX builders, then
// Initialize, exactly like the teacher's New().WithSource().WithX()...
// .Initialize(ctx) chain.
func New(cfg config.Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	switch cfg.LogFormat {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Engine{cfg: cfg, logger: logger}
}

// WithSanitizer overrides the default Secret Sanitizer (e.g. with
// additional user patterns).
func (e *Engine) WithSanitizer(s *sanitize.Sanitizer) *Engine { e.sanitizer = s; return e }

// WithPatternStore overrides the default Pattern Store.
func (e *Engine) WithPatternStore(s *patternstore.Store) *Engine { e.patterns = s; return e }

// WithTemplateStore overrides the default Fix Template Store.
func (e *Engine) WithTemplateStore(s *fixtemplate.Store) *Engine { e.templates = s; return e }

// Initialize wires every component that was not already set by a WithX
// call, in dependency order (stores before the matcher/generator that
// read them), mirroring the teacher's Initialize.
func (e *Engine) Initialize(ctx context.Context) (*Engine, error) {
	if e.sanitizer == nil {
		e.sanitizer = sanitize.New(e.logger, nil)
	}
	if e.counter == nil {
		e.counter = tokencount.New()
	}
	if e.compressor == nil {
		e.compressor = compress.New(e.counter, compress.DefaultContextLines)
	}
	if e.extractor == nil {
		e.extractor = extract.New(compress.DefaultContextLines)
	}
	if e.patterns == nil {
		store, err := patternstore.New(e.logger, e.cfg.PatternUserDir, e.cfg.LearnedPatternPath)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, "initialize pattern store", err)
		}
		e.patterns = store
	}
	if e.templates == nil {
		store, err := fixtemplate.New(e.logger, "", func(id string) bool {
			_, ok := e.patterns.ByID(id)
			return ok
		})
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, "initialize fix template store", err)
		}
		e.templates = store
	}
	if e.matcher == nil {
		e.matcher = matcher.New(e.patterns, e.logger)
	}
	if e.generator == nil {
		e.generator = fixgen.New(e.templates, model.Risk(e.cfg.RiskTolerance), e.cfg.ConfidenceThreshold)
	}
	if e.snapshots == nil {
		e.snapshots = snapshot.New(e.cfg.CacheRoot)
	}
	if e.fixer == nil {
		e.fixer = autofixer.New(e.snapshots, e.logger)
	}
	if e.feedback == nil && e.cfg.FeedbackLogPath != "" {
		rec, err := feedback.New(e.cfg.FeedbackLogPath)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, "initialize feedback recorder", err)
		}
		e.feedback = rec
		e.AddShutdownHook(rec.Close)
	}
	if e.learner == nil && e.feedback != nil {
		e.learner = learning.New(e.patterns, e.feedback, e.cfg.FeedbackDecay)
	}
	if e.cache == nil {
		e.cache = respcache.New(e.cfg.CacheMaxBytes, e.cfg.CacheTTL)
	}
	return e, nil
}

// AddShutdownHook registers a best-effort cleanup run by Shutdown, the
// generalized form of the teacher's GracefulShutdown (improvements.go),
// used here so a cancelled top-level context still releases owned
// handles (§5's cancellation guarantees).
func (e *Engine) AddShutdownHook(f func() error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdownFuncs = append(e.shutdownFuncs, f)
}

// Shutdown runs every registered hook, collecting (not stopping on) the
// first error from each.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	hooks := e.shutdownFuncs
	e.shutdownFuncs = nil
	e.mu.Unlock()

	var first error
	for _, f := range hooks {
		if err := f(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AnalyzeFailure runs the full hot-path pipeline (§2 data flow): sanitize
// -> compress -> extract -> (cache check) -> match (via pattern store) ->
// generate fixes (via template store) -> cache store.
func (e *Engine) AnalyzeFailure(ctx context.Context, rawLog model.Log, projectRoot string, tokenBudget uint32, family tokencount.ModelFamily) (model.AnalysisResult, error) {
	select {
	case <-ctx.Done():
		return model.AnalysisResult{}, errs.Wrap(errs.KindCancelled, "analysis cancelled before start", ctx.Err())
	default:
	}

	clean := e.sanitizer.Sanitize(rawLog.Text)

	text := clean
	if tokenBudget > 0 {
		compressed, err := e.compressor.Compress(clean, tokenBudget, family)
		if err != nil {
			return model.AnalysisResult{}, err
		}
		text = compressed.Text
	}

	execResult, err := e.extractor.Extract(text, rawLog.Origin)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	var allMatches []model.PatternMatch
	var allSuggestions []model.FixSuggestion
	failures := execResult.AllFailures()

	patternVersion := e.patterns.Version()
	templateVersion := e.templates.Version()

	cacheableFailures := make([]model.Failure, 0, len(failures))
	for _, f := range failures {
		key := respcache.BuildKey(f.Fingerprint, patternVersion, templateVersion)
		if cached, ok := e.cache.Get(key); ok {
			var cachedResult model.AnalysisResult
			if unmarshalCached(cached, &cachedResult) {
				allMatches = append(allMatches, cachedResult.Matches...)
				allSuggestions = append(allSuggestions, cachedResult.Suggestions...)
				continue
			}
		}
		cacheableFailures = append(cacheableFailures, f)
	}

	if len(cacheableFailures) > 0 {
		freshExec := model.ExecutionResult{LogText: execResult.LogText, Workflows: []model.WorkflowResult{{
			Jobs: []model.JobResult{{Steps: []model.StepResult{{Failures: cacheableFailures}}}},
		}}}
		matches, err := e.matcher.Match(ctx, freshExec, projectRoot, "", matcher.DefaultThreshold)
		if err != nil {
			return model.AnalysisResult{}, err
		}
		allMatches = append(allMatches, matches...)

		for _, m := range matches {
			suggestions, err := e.generator.Generate(m, projectRoot)
			if err != nil {
				return model.AnalysisResult{}, err
			}
			allSuggestions = append(allSuggestions, suggestions...)
		}

		for i, f := range cacheableFailures {
			var perFailureMatches []model.PatternMatch
			for _, m := range matches {
				if m.FailureIndex == i {
					perFailureMatches = append(perFailureMatches, m)
				}
			}
			var perFailureSuggestions []model.FixSuggestion
			for _, s := range allSuggestions {
				if s.Match.FailureIndex == i {
					perFailureSuggestions = append(perFailureSuggestions, s)
				}
			}
			entry := model.AnalysisResult{Fingerprint: f.Fingerprint, Matches: perFailureMatches, Suggestions: perFailureSuggestions}
			if data, ok := marshalCached(entry); ok {
				e.cache.Put(respcache.BuildKey(f.Fingerprint, patternVersion, templateVersion), data, int64(len(data)))
			}
		}
	}

	fp := ""
	if len(failures) > 0 {
		fp = failures[0].Fingerprint
	} else {
		fp = fingerprint.Compute(model.Failure{Message: execResult.LogText})
	}

	return model.AnalysisResult{
		Fingerprint: fp,
		Execution:   execResult,
		Matches:     allMatches,
		Suggestions: allSuggestions,
	}, nil
}

// ApplyFix runs the Auto Fixer (C10) over an already-generated suggestion.
func (e *Engine) ApplyFix(ctx context.Context, suggestion model.FixSuggestion, projectRoot string, approved bool) (model.FixResult, error) {
	return e.fixer.Apply(ctx, suggestion, projectRoot, approved)
}

// RecordFeedback appends to the Feedback Recorder (C11), a no-op error if
// no feedback log was configured.
func (e *Engine) RecordFeedback(fb model.UserFeedback) error {
	if e.feedback == nil {
		return errs.New(errs.KindConfig, "no feedback log configured")
	}
	return e.feedback.Record(fb)
}

// RunLearningPass runs the offline Learning Engine (C12): folding
// recorded feedback into pattern statistics, then discovering candidate
// patterns from the unknown-kind failures observed in executions.
func (e *Engine) RunLearningPass(unknownFailures []model.Failure, minOccurrences int, similarity float64) ([]model.Pattern, error) {
	if e.learner == nil {
		return nil, errs.New(errs.KindConfig, "no learning engine configured (feedback log required)")
	}
	if err := e.learner.UpdateStatsFromFeedback(); err != nil {
		return nil, err
	}
	return e.learner.DiscoverCandidates(unknownFailures, minOccurrences, similarity), nil
}

// PromoteCandidate accepts a pending learned-pattern candidate (C12 ->
// C5).
func (e *Engine) PromoteCandidate(id string) error {
	if e.learner == nil {
		return errs.New(errs.KindConfig, "no learning engine configured")
	}
	return e.learner.PromoteCandidate(id)
}

// Patterns exposes the shared Pattern Store for read-only operator
// queries (e.g. the CLI's `status`/`config` subcommands).
func (e *Engine) Patterns() *patternstore.Store { return e.patterns }

// Templates exposes the shared Fix Template Store for read-only operator
// queries.
func (e *Engine) Templates() *fixtemplate.Store { return e.templates }
