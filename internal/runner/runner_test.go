package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenci/warden/internal/mcptransport"
)

// fakeRunner is a stand-in implementation of the Runner interface.
type fakeRunner struct {
	result Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, selector string) (Result, error) {
	return f.result, f.err
}

func TestRunnerInterfaceIsSatisfiedByFake(t *testing.T) {
	var r Runner = &fakeRunner{result: Result{ExitCode: 1, LogBytes: []byte("log")}}
	res, err := r.Run(context.Background(), "build")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestMCPAdapterRunBeforeConnectIsError(t *testing.T) {
	a := NewMCPAdapter(mcptransport.Config{ServerCommand: []string{"true"}}, nil)
	_, err := a.Run(context.Background(), "build")
	require.Error(t, err)
}
