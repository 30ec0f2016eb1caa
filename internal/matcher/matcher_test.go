package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/patternstore"
)

func resultWithFailure(msg string, kind model.FailureKind) model.ExecutionResult {
	f := model.Failure{Kind: kind, Message: msg}
	return model.ExecutionResult{
		Workflows: []model.WorkflowResult{{
			Jobs: []model.JobResult{{
				Steps: []model.StepResult{{Failures: []model.Failure{f}}},
			}},
		}},
		LogText: msg,
	}
}

func TestMatchDockerPermissionScenario(t *testing.T) {
	store, err := patternstore.New(nil, "", "")
	require.NoError(t, err)
	m := New(store, nil)

	result := resultWithFailure("permission denied while trying to connect to the Docker daemon socket", model.FailurePermission)
	matches, err := m.Match(context.Background(), result, "", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "docker_permission_denied", matches[0].PatternID)
	assert.GreaterOrEqual(t, matches[0].Confidence, 0.85)
}

func TestMatchPythonModuleNotFoundCapturesModule(t *testing.T) {
	store, err := patternstore.New(nil, "", "")
	require.NoError(t, err)
	m := New(store, nil)

	result := resultWithFailure("ModuleNotFoundError: No module named 'requests'", model.FailureDependency)
	matches, err := m.Match(context.Background(), result, "", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "python_module_not_found", matches[0].PatternID)
	assert.Equal(t, "requests", matches[0].Captures["module"])
	assert.GreaterOrEqual(t, matches[0].Confidence, 0.80)
}

func TestMatchEmptyStoreReturnsEmptyNoError(t *testing.T) {
	store, err := patternstore.New(nil, t.TempDir(), "")
	require.NoError(t, err)
	// A category no pattern carries leaves the enabled set empty.
	m := New(store, nil)
	result := resultWithFailure("anything", model.FailureUnknown)
	matches, err := m.Match(context.Background(), result, "", "nonexistent-category", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchOrderingIsTotalOrder(t *testing.T) {
	store, err := patternstore.New(nil, "", "")
	require.NoError(t, err)
	m := New(store, nil)

	result := model.ExecutionResult{
		LogText: "permission denied while trying to connect to the Docker daemon socket\nModuleNotFoundError: No module named 'requests'",
		Workflows: []model.WorkflowResult{{Jobs: []model.JobResult{{Steps: []model.StepResult{{Failures: []model.Failure{
			{Kind: model.FailurePermission, Message: "permission denied while trying to connect to the Docker daemon socket"},
			{Kind: model.FailureDependency, Message: "ModuleNotFoundError: No module named 'requests'"},
		}}}}}}},
	}
	matches, err := m.Match(context.Background(), result, "", "", 0)
	require.NoError(t, err)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Confidence, matches[i].Confidence)
	}
}

func TestConfidenceBounds(t *testing.T) {
	p := model.Pattern{BaseConfidence: 0.5, SuccessRate: 1.0}
	strength := 1.0
	confidence := clamp(p.BaseConfidence*(0.5+0.5*strength)*(0.5+0.5*p.SuccessRate), 0, 1)
	assert.LessOrEqual(t, confidence, 1.1*p.BaseConfidence)
	assert.GreaterOrEqual(t, confidence, 0.5*p.BaseConfidence*strength)
}
