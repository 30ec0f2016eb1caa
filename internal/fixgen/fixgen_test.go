package fixgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenci/warden/internal/fixtemplate"
	"github.com/wardenci/warden/internal/model"
)

func allKnown(string) bool { return true }

func TestGeneratePythonModuleFixSubstitutesCapture(t *testing.T) {
	store, err := fixtemplate.New(nil, "", allKnown)
	require.NoError(t, err)
	g := New(store, model.RiskMedium, 0.5)

	match := model.PatternMatch{
		PatternID:  "python_module_not_found",
		Captures:   map[string]string{"module": "requests"},
		Confidence: 0.9,
	}
	suggestions, err := g.Generate(match, "/project")
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, []string{"pip", "install", "requests"}, suggestions[0].Steps[0].Argv)
}

func TestGenerateDockerFixAppendsActrc(t *testing.T) {
	store, err := fixtemplate.New(nil, "", allKnown)
	require.NoError(t, err)
	g := New(store, model.RiskMedium, 0.5)

	match := model.PatternMatch{PatternID: "docker_permission_denied", Confidence: 0.9}
	suggestions, err := g.Generate(match, "/project")
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	first := suggestions[0]
	assert.Equal(t, model.StepFileEdit, first.Steps[0].Kind)
	assert.Equal(t, ".actrc", first.Steps[0].TargetPath)
	assert.True(t, first.AutoApplicable)
}

func TestGenerateSkipsTemplateMissingCapture(t *testing.T) {
	store, err := fixtemplate.New(nil, "", allKnown)
	require.NoError(t, err)
	g := New(store, model.RiskMedium, 0.5)

	match := model.PatternMatch{PatternID: "python_module_not_found", Captures: map[string]string{}, Confidence: 0.9}
	suggestions, err := g.Generate(match, "/project")
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestAutoApplicableRespectsRiskToleranceAndThreshold(t *testing.T) {
	store, err := fixtemplate.New(nil, "", allKnown)
	require.NoError(t, err)
	g := New(store, model.RiskLow, 0.99)

	match := model.PatternMatch{PatternID: "docker_permission_denied", Confidence: 0.5}
	suggestions, err := g.Generate(match, "/project")
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.False(t, suggestions[0].AutoApplicable)
}
