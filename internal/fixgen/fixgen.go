// Package fixgen implements the Fix Generator (C8): combining a
// PatternMatch and its applicable FixTemplates into concrete
// FixSuggestions with placeholders resolved from captures. Grounded on the
// source engine's GenerateFixes/parseFixesResponse (failure_analysis.go),
// narrowed from "ask an LLM to author a diff" to "instantiate a closed,
// pre-validated template."
package fixgen

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/google/uuid"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/fixtemplate"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/policy"
)

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Generator instantiates FixSuggestions from PatternMatches.
type Generator struct {
	templates           *fixtemplate.Store
	riskTolerance        model.Risk
	confidenceThreshold  float64
}

// New builds a Generator. riskTolerance and confidenceThreshold gate
// auto_applicable (§4.8 step 3).
func New(templates *fixtemplate.Store, riskTolerance model.Risk, confidenceThreshold float64) *Generator {
	return &Generator{templates: templates, riskTolerance: riskTolerance, confidenceThreshold: confidenceThreshold}
}

// Generate returns every FixSuggestion applicable to match, ranked by
// (confidence desc, template success rate desc, risk asc, template id asc).
func (g *Generator) Generate(match model.PatternMatch, projectRoot string) ([]model.FixSuggestion, error) {
	templates := g.templates.ByPatternID(match.PatternID)
	type scored struct {
		suggestion model.FixSuggestion
		template   model.FixTemplate
	}
	var candidates []scored

	for _, t := range templates {
		steps, err := instantiate(t.Steps, match.Captures)
		if err != nil {
			// Missing capture: recoverable, skip this template (§4.8 step 1).
			continue
		}
		if err := validateAgainstPolicy(steps, projectRoot); err != nil {
			continue
		}

		confidence := match.Confidence * t.SuccessRate
		autoApplicable := t.Risk.LessRisky(g.riskTolerance) && confidence >= g.confidenceThreshold

		suggestion := model.FixSuggestion{
			ID:             uuid.Must(uuid.NewV7()).String(),
			Title:          t.Name,
			Description:    t.Description,
			Match:          match,
			Steps:          steps,
			Risk:           t.Risk,
			EstimatedTime:  t.EstimatedTime,
			Confidence:     confidence,
			AutoApplicable: autoApplicable,
			ValidationSteps: t.ValidationSteps,
		}
		candidates = append(candidates, scored{suggestion: suggestion, template: t})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.suggestion.Confidence != b.suggestion.Confidence {
			return a.suggestion.Confidence > b.suggestion.Confidence
		}
		if a.template.SuccessRate != b.template.SuccessRate {
			return a.template.SuccessRate > b.template.SuccessRate
		}
		ar, br := riskRank(a.template.Risk), riskRank(b.template.Risk)
		if ar != br {
			return ar < br
		}
		return a.template.ID < b.template.ID
	})

	out := make([]model.FixSuggestion, len(candidates))
	for i, c := range candidates {
		out[i] = c.suggestion
	}
	return out, nil
}

func riskRank(r model.Risk) int {
	switch r {
	case model.RiskLow:
		return 0
	case model.RiskMedium:
		return 1
	default:
		return 2
	}
}

// instantiate substitutes {name} placeholders in payloads and argv entries
// from captures. A placeholder with no matching capture fails the whole
// template instantiation (§4.8 step 1).
func instantiate(steps []model.FixStep, captures map[string]string) ([]model.FixStep, error) {
	out := make([]model.FixStep, len(steps))
	for i, s := range steps {
		payload, err := substitute(s.Payload, captures)
		if err != nil {
			return nil, err
		}
		argv := make([]string, len(s.Argv))
		for j, a := range s.Argv {
			sub, err := substitute(a, captures)
			if err != nil {
				return nil, err
			}
			argv[j] = sub
		}
		s.Payload = payload
		s.Argv = argv
		out[i] = s
	}
	return out, nil
}

func substitute(text string, captures map[string]string) (string, error) {
	var missing string
	result := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := captures[name]
		if !ok {
			missing = name
			return m
		}
		return v
	})
	if missing != "" {
		return "", errs.New(errs.KindValidation, fmt.Sprintf("missing capture %q for placeholder substitution", missing))
	}
	return result, nil
}

func validateAgainstPolicy(steps []model.FixStep, projectRoot string) error {
	for _, s := range steps {
		switch s.Kind {
		case model.StepFileEdit, model.StepFileCreate, model.StepFileDelete:
			if _, err := policy.NormalizePath(projectRoot, s.TargetPath); err != nil {
				return err
			}
		case model.StepCommand:
			if !policy.IsCommandAllowed(s.Argv) {
				return errs.New(errs.KindPolicy, "command not on allow-list: "+s.Argv[0])
			}
		}
	}
	return nil
}
