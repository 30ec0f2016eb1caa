package learning

import (
	"fmt"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenci/warden/internal/feedback"
	"github.com/wardenci/warden/internal/model"
	"github.com/wardenci/warden/internal/patternstore"
)

func newTestStore(t *testing.T) *patternstore.Store {
	t.Helper()
	s, err := patternstore.New(logrus.New(), "", filepath.Join(t.TempDir(), "learned.json"))
	require.NoError(t, err)
	return s
}

func newTestRecorder(t *testing.T) *feedback.Recorder {
	t.Helper()
	r, err := feedback.New(filepath.Join(t.TempDir(), "feedback.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestUpdateStatsFromFeedbackAppliesEWMA(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t)
	eng := New(store, rec, 0.2)

	before, ok := store.ByID("docker_permission_denied")
	require.True(t, ok)

	require.NoError(t, rec.Record(model.UserFeedback{ID: "f1", PatternID: "docker_permission_denied", Success: true}))
	require.NoError(t, eng.UpdateStatsFromFeedback())

	after, ok := store.ByID("docker_permission_denied")
	require.True(t, ok)
	assert.NotEqual(t, before.SuccessRate, after.SuccessRate)
	assert.Equal(t, before.OccurrenceCount+1, after.OccurrenceCount)
}

func TestUpdateStatsFromFeedbackIsIdempotentPerFeedbackID(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t)
	eng := New(store, rec, 0.2)

	require.NoError(t, rec.Record(model.UserFeedback{ID: "f1", PatternID: "docker_permission_denied", Success: true}))
	require.NoError(t, eng.UpdateStatsFromFeedback())
	firstPass, _ := store.ByID("docker_permission_denied")

	require.NoError(t, eng.UpdateStatsFromFeedback())
	secondPass, _ := store.ByID("docker_permission_denied")

	assert.Equal(t, firstPass.OccurrenceCount, secondPass.OccurrenceCount)
	assert.Equal(t, firstPass.SuccessRate, secondPass.SuccessRate)
}

func TestDiscoverCandidatesClustersSimilarUnknownFailures(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t)
	eng := New(store, rec, 0.2)

	var failures []model.Failure
	var rawMessages []string
	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("CustomLib[ERROR]: widget not found in registry-%d", 40+i)
		rawMessages = append(rawMessages, msg)
		failures = append(failures, model.Failure{
			Kind:    model.FailureUnknown,
			Message: msg,
		})
	}

	candidates := eng.DiscoverCandidates(failures, 3, 0.7)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, 5, c.OccurrenceCount)
	assert.Equal(t, "unknown", c.Category)
	assert.Equal(t, model.SourceLearned, c.Source)
	assert.False(t, c.Enabled)
	assert.Contains(t, c.Regexes[0], "CustomLib")

	// The synthesized regex must match the raw (non-normalized) messages
	// that produced it, digits and all — not just the normalized frame it
	// was derived from.
	re, err := regexp.Compile(c.Regexes[0])
	require.NoError(t, err)
	for _, msg := range rawMessages {
		assert.True(t, re.MatchString(msg), "regex %q should match raw message %q", c.Regexes[0], msg)
	}
}

func TestDiscoverCandidatesBelowThresholdYieldsNoCandidate(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t)
	eng := New(store, rec, 0.2)

	failures := []model.Failure{
		{Kind: model.FailureUnknown, Message: "rare one-off failure A"},
		{Kind: model.FailureUnknown, Message: "totally different failure B"},
	}
	candidates := eng.DiscoverCandidates(failures, 3, 0.7)
	assert.Empty(t, candidates)
}

func TestPromoteCandidateEnablesLearnedPattern(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecorder(t)
	eng := New(store, rec, 0.2)

	var failures []model.Failure
	for i := 0; i < 3; i++ {
		failures = append(failures, model.Failure{Kind: model.FailureUnknown, Message: "WidgetFactory: missing registry entry"})
	}
	candidates := eng.DiscoverCandidates(failures, 3, 0.7)
	require.Len(t, candidates, 1)

	require.NoError(t, eng.PromoteCandidate(candidates[0].ID))

	promoted, ok := store.ByID(candidates[0].ID)
	require.True(t, ok)
	assert.True(t, promoted.Enabled)
	assert.Empty(t, eng.PendingCandidates())
}
