// Package fixtemplate implements the Fix Template Store (C7): loading and
// validating fix templates and mapping pattern ids to the templates that
// can fix them. Mirrors patternstore's readers-writer shape; grounded on
// the source engine's ProposedFix/CodeChange model in types.go, narrowed
// from "arbitrary LLM-authored diff" to a closed, validated recipe.
package fixtemplate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/policy"
)

// Store holds the fix template set, indexed by pattern id.
type Store struct {
	mu        sync.RWMutex
	templates map[string]model.FixTemplate
	byPattern map[string][]string
	version   uint64
	logger    *logrus.Logger
}

type templateFile struct {
	Templates []model.FixTemplate `json:"templates"`
}

// New loads built-in templates plus every *.json file under dir (if
// non-empty). A template failing validation is rejected with a diagnostic
// naming the offending step index and the load continues with the rest.
func New(logger *logrus.Logger, dir string, knownPatternIDs func(id string) bool) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		templates: map[string]model.FixTemplate{},
		byPattern: map[string][]string{},
		logger:    logger,
	}

	candidates := builtinTemplates()
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warn("cannot read fix template directory, continuing with builtins")
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				logger.WithField("file", e.Name()).WithError(err).Warn("skipping unreadable template file")
				continue
			}
			var tf templateFile
			if err := json.Unmarshal(data, &tf); err != nil {
				logger.WithField("file", e.Name()).WithError(err).Warn("skipping corrupt template file")
				continue
			}
			candidates = append(candidates, tf.Templates...)
		}
	}

	for _, t := range candidates {
		if err := validate(t, knownPatternIDs); err != nil {
			logger.WithField("template_id", t.ID).WithError(err).Warn("rejecting invalid fix template")
			continue
		}
		s.insertLocked(t)
	}
	return s, nil
}

func validate(t model.FixTemplate, knownPatternIDs func(id string) bool) error {
	if t.ID == "" {
		return errs.New(errs.KindValidation, "template missing id")
	}
	if knownPatternIDs != nil {
		for _, pid := range t.PatternIDs {
			if !knownPatternIDs(pid) {
				return errs.New(errs.KindValidation, fmt.Sprintf("template %s references unknown pattern %s", t.ID, pid))
			}
		}
	}
	for i, step := range t.Steps {
		switch step.Kind {
		case model.StepFileEdit, model.StepFileCreate, model.StepFileDelete:
			if step.TargetPath == "" {
				return errs.New(errs.KindValidation, fmt.Sprintf("template %s step %d missing target_path", t.ID, i))
			}
		case model.StepCommand:
			if !policy.IsCommandAllowed(step.Argv) {
				return errs.New(errs.KindValidation, fmt.Sprintf("template %s step %d argv[0] not on allow-list", t.ID, i))
			}
		default:
			return errs.New(errs.KindValidation, fmt.Sprintf("template %s step %d has unknown kind %q", t.ID, i, step.Kind))
		}
		if step.Validation != "" && !policy.IsPredicateAllowed(step.Validation) {
			return errs.New(errs.KindValidation, fmt.Sprintf("template %s step %d validation command not on allow-list", t.ID, i))
		}
	}
	for i, v := range t.ValidationSteps {
		if !policy.IsPredicateAllowed(v) {
			return errs.New(errs.KindValidation, fmt.Sprintf("template %s validation_steps[%d] command not on allow-list", t.ID, i))
		}
	}
	return nil
}

func (s *Store) insertLocked(t model.FixTemplate) {
	if existing, ok := s.templates[t.ID]; ok {
		s.removeFromIndexLocked(existing)
	}
	s.templates[t.ID] = t
	for _, pid := range t.PatternIDs {
		s.byPattern[pid] = append(s.byPattern[pid], t.ID)
	}
}

func (s *Store) removeFromIndexLocked(t model.FixTemplate) {
	for _, pid := range t.PatternIDs {
		ids := s.byPattern[pid]
		for i, id := range ids {
			if id == t.ID {
				s.byPattern[pid] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

// ByPatternID returns every template applicable to pattern id, ordered by
// template id for determinism.
func (s *Store) ByPatternID(id string) []model.FixTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := append([]string(nil), s.byPattern[id]...)
	sort.Strings(ids)
	out := make([]model.FixTemplate, 0, len(ids))
	for _, tid := range ids {
		out = append(out, s.templates[tid])
	}
	return out
}

// ByID looks up a single template.
func (s *Store) ByID(id string) (model.FixTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	return t, ok
}

// Version returns the store's version counter. Templates are loaded only
// at construction and the store has no write method, so it stays at 0.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
