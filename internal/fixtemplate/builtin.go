package fixtemplate

import (
	"time"

	"github.com/wardenci/warden/internal/model"
)

// builtinTemplates ships one template per builtin pattern that the §8
// scenarios name explicitly, plus a couple more in the same spirit as the
// source engine's addValidationSteps (failure_analysis.go), which always
// appends lint/test/build validation after a proposed fix.
func builtinTemplates() []model.FixTemplate {
	return []model.FixTemplate{
		{
			ID:          "add_actrc_privileged",
			Name:        "Run Docker in privileged mode",
			Description: "Appends --privileged to .actrc so the local runner's Docker daemon socket is reachable.",
			PatternIDs:  []string{"docker_permission_denied"},
			Steps: []model.FixStep{
				{Kind: model.StepFileEdit, TargetPath: ".actrc", EditMode: model.EditAppend, Payload: "--privileged\n"},
			},
			Risk:            model.RiskLow,
			EstimatedTime:   "< 1m",
			SuccessRate:     0.8,
			ValidationSteps: []string{"pytest -q"},
		},
		{
			ID:          "pip_install_missing_module",
			Name:        "Install missing Python module",
			Description: "Installs the module reported missing by ModuleNotFoundError and re-runs the test suite.",
			PatternIDs:  []string{"python_module_not_found"},
			Steps: []model.FixStep{
				{Kind: model.StepCommand, Argv: []string{"pip", "install", "{module}"}, Timeout: 2 * time.Minute},
				{Kind: model.StepCommand, Argv: []string{"pytest", "-q"}, Timeout: 5 * time.Minute},
			},
			Risk:            model.RiskLow,
			EstimatedTime:   "1-3m",
			SuccessRate:     0.75,
			ValidationSteps: []string{"pytest -q"},
		},
		{
			ID:          "npm_ci_reinstall",
			Name:        "Reinstall npm dependencies",
			Description: "Runs a clean npm install when dependency resolution fails.",
			PatternIDs:  []string{"npm_install_failure"},
			Steps: []model.FixStep{
				{Kind: model.StepCommand, Argv: []string{"npm", "install"}, Timeout: 3 * time.Minute},
			},
			Risk:            model.RiskLow,
			EstimatedTime:   "1-3m",
			SuccessRate:     0.6,
			ValidationSteps: []string{"npm run build"},
		},
		{
			ID:          "go_mod_tidy_rebuild",
			Name:        "Tidy modules and rebuild",
			Description: "Runs go mod tidy, then go build ./..., after a go build failure.",
			PatternIDs:  []string{"go_build_failure"},
			Steps: []model.FixStep{
				{Kind: model.StepCommand, Argv: []string{"go", "mod", "tidy"}, Timeout: time.Minute},
				{Kind: model.StepCommand, Argv: []string{"go", "build", "./..."}, Timeout: 2 * time.Minute},
			},
			Risk:            model.RiskMedium,
			EstimatedTime:   "1-2m",
			SuccessRate:     0.5,
			ValidationSteps: []string{"go build ./..."},
		},
	}
}
