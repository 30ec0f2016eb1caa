// Package patternstore implements the Pattern Store (C5): loading,
// validating, indexing, and persisting the built-in, user, and learned
// pattern database. Grounded on the source engine's ErrorPatternDatabase
// and loadErrorPatterns (failure_analysis.go) for the built-in rule set and
// its precedence handling, generalized into a readers-writer versioned
// store per spec §4.5 and §5 ("a single store value held by the request
// dispatcher; readers take a snapshot reference; writers hold the write
// lock" per Design Notes §9).
package patternstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wardenci/warden/internal/atomicfile"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/model"
)

// Store holds the merged builtin/user/learned pattern set behind a
// readers-writer lock. Writers bump version so readers that took a
// snapshot at request start see a consistent view for its duration.
type Store struct {
	mu        sync.RWMutex
	patterns  map[string]model.Pattern
	byCategory map[string][]string
	version   uint64
	logger    *logrus.Logger
	learnedPath string
}

type patternFile struct {
	Patterns []model.Pattern `json:"patterns"`
}

// New loads builtins, then the learned store file (if it exists), then the
// user directory (if non-empty). A later load overwrites an earlier one on
// an id collision, so the precedence is user > learned > builtin (§4.5).
func New(logger *logrus.Logger, userDir, learnedPath string) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		patterns:    map[string]model.Pattern{},
		byCategory:  map[string][]string{},
		logger:      logger,
		learnedPath: learnedPath,
	}

	for _, p := range builtinPatterns() {
		s.insertLocked(p)
	}

	if learnedPath != "" {
		if pf, err := readPatternFile(learnedPath); err == nil {
			for _, p := range pf.Patterns {
				p.Source = model.SourceLearned
				if err := validate(p); err != nil {
					logger.WithField("pattern_id", p.ID).WithError(err).Warn("skipping invalid learned pattern")
					continue
				}
				s.insertLocked(p)
			}
		} else if !os.IsNotExist(err) {
			logger.WithError(err).Warn("corrupt learned pattern store, continuing with builtins")
		}
	}

	if userDir != "" {
		entries, err := os.ReadDir(userDir)
		if err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warn("cannot read user pattern directory, continuing without it")
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			pf, err := readPatternFile(filepath.Join(userDir, e.Name()))
			if err != nil {
				logger.WithField("file", e.Name()).WithError(err).Warn("skipping corrupt user pattern file")
				continue
			}
			for _, p := range pf.Patterns {
				p.Source = model.SourceUser
				if err := validate(p); err != nil {
					logger.WithField("pattern_id", p.ID).WithError(err).Warn("skipping invalid user pattern")
					continue
				}
				s.insertLocked(p)
			}
		}
	}

	return s, nil
}

func readPatternFile(path string) (patternFile, error) {
	var pf patternFile
	data, err := os.ReadFile(path)
	if err != nil {
		return pf, err
	}
	if err := json.Unmarshal(data, &pf); err != nil {
		return pf, fmt.Errorf("parse %s: %w", path, err)
	}
	return pf, nil
}

func validate(p model.Pattern) error {
	if p.ID == "" {
		return errs.New(errs.KindValidation, "pattern missing id")
	}
	for _, r := range p.Regexes {
		if _, err := regexp.Compile(r); err != nil {
			return errs.Wrap(errs.KindValidation, "pattern "+p.ID+" has invalid regex "+r, err)
		}
	}
	if p.Source == model.SourceLearned && p.OccurrenceCount <= 0 {
		return errs.New(errs.KindValidation, "learned pattern "+p.ID+" must have nonzero occurrence_count")
	}
	return nil
}

// insertLocked adds or overwrites a pattern and rebuilds its category
// index entry. Caller must hold mu for writing (or be in New, which is
// single-threaded construction).
func (s *Store) insertLocked(p model.Pattern) {
	if existing, ok := s.patterns[p.ID]; ok {
		s.removeFromCategoryLocked(existing.Category, p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()
	if !p.Enabled && p.DisabledReason == "" {
		p.Enabled = true
	}
	s.patterns[p.ID] = p
	s.byCategory[p.Category] = append(s.byCategory[p.Category], p.ID)
}

func (s *Store) removeFromCategoryLocked(category, id string) {
	ids := s.byCategory[category]
	for i, existing := range ids {
		if existing == id {
			s.byCategory[category] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// AllEnabled returns every enabled pattern, optionally filtered by
// category, as a stable-ordered (by id) snapshot slice.
func (s *Store) AllEnabled(categoryFilter string) []model.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Pattern
	if categoryFilter != "" {
		for _, id := range s.byCategory[categoryFilter] {
			if p := s.patterns[id]; p.Enabled {
				out = append(out, p)
			}
		}
	} else {
		for _, p := range s.patterns {
			if p.Enabled {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByID looks up a single pattern.
func (s *Store) ByID(id string) (model.Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	return p, ok
}

// UpsertLearned adds or replaces a learned pattern and persists the
// learned store file. A failed write leaves in-memory state unchanged.
func (s *Store) UpsertLearned(p model.Pattern) error {
	p.Source = model.SourceLearned
	if err := validate(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hadPrev := s.patterns[p.ID]
	prevVersion := s.version
	s.insertLocked(p)
	s.version++

	if err := s.persistLearnedLocked(); err != nil {
		// Roll back: I/O failures must never corrupt in-memory state nor
		// silently bump the version (§7 — "io on stores fails the write
		// but never corrupts in-memory state").
		delete(s.patterns, p.ID)
		s.removeFromCategoryLocked(p.Category, p.ID)
		if hadPrev {
			s.patterns[p.ID] = prev
			s.byCategory[prev.Category] = append(s.byCategory[prev.Category], p.ID)
		}
		s.version = prevVersion
		return errs.Wrap(errs.KindIO, "failed to persist learned pattern "+p.ID, err)
	}
	return nil
}

// UpdateStats updates a pattern's running success rate and occurrence
// count. The actual EWMA math lives in the learning engine; this just
// writes the already-computed values through the store's write path.
func (s *Store) UpdateStats(id string, successRate float64, occurrenceCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[id]
	if !ok {
		return errs.New(errs.KindValidation, "unknown pattern id: "+id)
	}
	prev := p
	p.SuccessRate = successRate
	p.OccurrenceCount = occurrenceCount
	p.UpdatedAt = time.Now().UTC()
	s.patterns[id] = p
	s.version++

	if p.Source == model.SourceLearned {
		if err := s.persistLearnedLocked(); err != nil {
			s.patterns[id] = prev
			s.version--
			return errs.Wrap(errs.KindIO, "failed to persist stats for "+id, err)
		}
	}
	return nil
}

// Version returns the current monotonically increasing store version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) persistLearnedLocked() error {
	if s.learnedPath == "" {
		return nil
	}
	var out patternFile
	for _, p := range s.patterns {
		if p.Source == model.SourceLearned {
			out.Patterns = append(out.Patterns, p)
		}
	}
	sort.Slice(out.Patterns, func(i, j int) bool { return out.Patterns[i].ID < out.Patterns[j].ID })

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(s.learnedPath, data, 0o644)
}
