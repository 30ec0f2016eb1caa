package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	fail  bool
	calls int
}

func (f *fakeProvider) Analyze(ctx context.Context, prompt string, promptContext map[string]string) (AnalysisResult, error) {
	f.calls++
	if f.fail {
		return AnalysisResult{}, &Error{Kind: KindOther, Message: "boom"}
	}
	return AnalysisResult{Text: "ok"}, nil
}

func (f *fakeProvider) StreamAnalyze(ctx context.Context, prompt string, promptContext map[string]string) (<-chan string, error) {
	ch := make(chan string, 1)
	ch <- "chunk"
	close(ch)
	return ch, nil
}

func TestGuardedAnalyzePassesThroughOnSuccess(t *testing.T) {
	g := NewGuarded(&fakeProvider{}, 3, time.Minute, 10, time.Millisecond)
	res, err := g.Analyze(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
}

func TestGuardedCircuitOpensAfterMaxFailures(t *testing.T) {
	inner := &fakeProvider{fail: true}
	g := NewGuarded(inner, 2, time.Minute, 100, time.Nanosecond)

	_, err1 := g.Analyze(context.Background(), "p", nil)
	require.Error(t, err1)
	_, err2 := g.Analyze(context.Background(), "p", nil)
	require.Error(t, err2)

	// circuit should now be open; a third call must not reach inner.
	callsBefore := inner.calls
	_, err3 := g.Analyze(context.Background(), "p", nil)
	require.Error(t, err3)
	assert.Equal(t, callsBefore, inner.calls)

	var perr *Error
	require.ErrorAs(t, err3, &perr)
}

func TestGuardedRateLimiterBlocksAfterBudgetExhausted(t *testing.T) {
	g := NewGuarded(&fakeProvider{}, 100, time.Minute, 1, time.Hour)
	_, err := g.Analyze(context.Background(), "p", nil)
	require.NoError(t, err)

	_, err = g.Analyze(context.Background(), "p", nil)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindRateLimit, perr.Kind)
}

func TestGuardedStreamAnalyzeDeliversChunks(t *testing.T) {
	g := NewGuarded(&fakeProvider{}, 3, time.Minute, 10, time.Millisecond)
	ch, err := g.StreamAnalyze(context.Background(), "p", nil)
	require.NoError(t, err)

	var chunks []string
	for c := range ch {
		chunks = append(chunks, c)
	}
	assert.Equal(t, []string{"chunk"}, chunks)
}
