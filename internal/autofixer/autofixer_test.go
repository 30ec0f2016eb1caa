package autofixer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenci/warden/internal/errs"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/snapshot"
)

func TestAcquireRootLockTimesOutWhenHeld(t *testing.T) {
	var lock sync.Mutex
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := acquireRootLock(context.Background(), &lock, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindTimeout, e.Kind)
	assert.Less(t, elapsed, time.Second, "should fail at the bounded timeout, not block forever")
}

func TestAcquireRootLockRespectsCancelledContext(t *testing.T) {
	var lock sync.Mutex
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := acquireRootLock(ctx, &lock, time.Minute)
	require.Error(t, err)
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindCancelled, e.Kind)
}

func TestApplyWithoutApprovalIsPolicyError(t *testing.T) {
	projectRoot := t.TempDir()
	f := New(snapshot.New(t.TempDir()), nil)
	_, err := f.Apply(context.Background(), model.FixSuggestion{AutoApplicable: false}, projectRoot, false)
	require.Error(t, err)
}

func TestApplyFileEditAppendSucceeds(t *testing.T) {
	projectRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectRoot, ".actrc"), []byte("existing\n"), 0o644))

	f := New(snapshot.New(t.TempDir()), nil)
	suggestion := model.FixSuggestion{
		Steps: []model.FixStep{
			{Kind: model.StepFileEdit, TargetPath: ".actrc", EditMode: model.EditAppend, Payload: "--privileged\n"},
		},
	}
	res, err := f.Apply(context.Background(), suggestion, projectRoot, true)
	require.NoError(t, err)
	assert.True(t, res.Success)

	data, err := os.ReadFile(filepath.Join(projectRoot, ".actrc"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "--privileged")
	assert.Contains(t, string(data), "existing")
}

func TestApplyDeniedCommandReturnsPolicyErrorNoSideEffects(t *testing.T) {
	projectRoot := t.TempDir()
	f := New(snapshot.New(t.TempDir()), nil)
	suggestion := model.FixSuggestion{
		Steps: []model.FixStep{
			{Kind: model.StepCommand, Argv: []string{"curl", "http://example.com"}},
		},
	}
	_, err := f.Apply(context.Background(), suggestion, projectRoot, true)
	require.Error(t, err)

	entries, _ := os.ReadDir(projectRoot)
	assert.Empty(t, entries)
}

func TestApplyRollsBackOnValidationFailure(t *testing.T) {
	projectRoot := t.TempDir()
	target := filepath.Join(projectRoot, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	f := New(snapshot.New(t.TempDir()), nil)
	suggestion := model.FixSuggestion{
		Steps: []model.FixStep{
			{Kind: model.StepFileEdit, TargetPath: "a.txt", EditMode: model.EditReplace, Payload: "y"},
		},
		ValidationSteps: []string{"go doesnotexist-subcommand"},
	}
	res, err := f.Apply(context.Background(), suggestion, projectRoot, true)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.RollbackAvailable)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestApplyValidationStepNotOnAllowListIsDenied(t *testing.T) {
	projectRoot := t.TempDir()
	target := filepath.Join(projectRoot, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	f := New(snapshot.New(t.TempDir()), nil)
	suggestion := model.FixSuggestion{
		Steps: []model.FixStep{
			{Kind: model.StepFileEdit, TargetPath: "a.txt", EditMode: model.EditReplace, Payload: "y"},
		},
		ValidationSteps: []string{"curl http://example.com"},
	}
	res, err := f.Apply(context.Background(), suggestion, projectRoot, true)
	require.NoError(t, err)
	assert.False(t, res.Success)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data), "file edit must be rolled back when a validation predicate is policy-denied")
}

func TestApplyPathEscapingRootIsDenied(t *testing.T) {
	projectRoot := t.TempDir()
	f := New(snapshot.New(t.TempDir()), nil)
	suggestion := model.FixSuggestion{
		Steps: []model.FixStep{
			{Kind: model.StepFileEdit, TargetPath: "../../etc/passwd", EditMode: model.EditAppend, Payload: "x"},
		},
	}
	_, err := f.Apply(context.Background(), suggestion, projectRoot, true)
	require.Error(t, err)
}
