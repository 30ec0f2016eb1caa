package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wardenci/warden/internal/model"
)

func TestNormalizeCollapsesDigitsPathsAndTimestamps(t *testing.T) {
	msg := "error at /home/runner/work/repo/file.go:42 on 2026-07-31T10:00:00Z retry 3"
	got := Normalize(msg)
	assert.NotContains(t, got, "42")
	assert.NotContains(t, got, "2026-07-31T10:00:00Z")
	assert.NotContains(t, got, "/home/runner/work/repo/file.go")
}

func TestComputeIsStableAcrossVolatileNumbers(t *testing.T) {
	a := model.Failure{Kind: model.FailureDependency, Message: "ModuleNotFoundError: No module named 'requests' line 12", FilePath: "src/app.py", Line: 12}
	b := model.Failure{Kind: model.FailureDependency, Message: "ModuleNotFoundError: No module named 'requests' line 99", FilePath: "src/app.py", Line: 99}
	assert.Equal(t, Compute(a), Compute(b))
}

func TestComputeDiffersOnKind(t *testing.T) {
	a := model.Failure{Kind: model.FailureDependency, Message: "same text", FilePath: "a.go"}
	b := model.Failure{Kind: model.FailureSyntax, Message: "same text", FilePath: "a.go"}
	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestComputeDiffersOnLinePresence(t *testing.T) {
	a := model.Failure{Kind: model.FailureError, Message: "boom", Line: 0}
	b := model.Failure{Kind: model.FailureError, Message: "boom", Line: 7}
	assert.NotEqual(t, Compute(a), Compute(b))
}
