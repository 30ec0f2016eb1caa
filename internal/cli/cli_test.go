package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenci/warden/internal/errs"
)

func TestExitCodeForMapsWardenKindsToContract(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errs.New(errs.KindConfig, "bad config"), ExitConfigError},
		{errs.New(errs.KindPolicy, "denied"), ExitConfigError},
		{errs.New(errs.KindCancelled, "cancelled"), ExitCancelled},
		{errs.New(errs.KindTimeout, "timed out"), ExitCancelled},
		{errs.New(errs.KindRollbackFailed, "rollback failed"), ExitAutoFixRollbackFailed},
		{errs.New(errs.KindIO, "disk error"), ExitAnalysisFailure},
		{assertPlainError{}, ExitAnalysisFailure},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitCodeFor(tc.err))
	}
}

type assertPlainError struct{}

func (assertPlainError) Error() string { return "plain" }

func TestRunTestSubcommandSucceedsAgainstBuiltinSample(t *testing.T) {
	dir := t.TempDir()
	code := Run([]string{
		"test",
		"--project-root", dir,
		"--config", filepath.Join(dir, "nonexistent.env"),
	})
	assert.Equal(t, ExitSuccess, code)
}

func TestRunAnalyzeRequiresLogFlag(t *testing.T) {
	code := Run([]string{"analyze"})
	assert.NotEqual(t, ExitSuccess, code)
}

func TestRunAnalyzeAgainstSampleLogFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(logPath, []byte("ModuleNotFoundError: No module named 'requests'\n"), 0o644))

	code := Run([]string{"analyze", "--log", logPath, "--project-root", dir})
	assert.Equal(t, ExitSuccess, code)
}
