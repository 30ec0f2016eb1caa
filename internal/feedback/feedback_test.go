package feedback

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenci/warden/internal/model"
)

func TestRecordAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	r, err := New(path)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Record(model.UserFeedback{PatternID: "docker_permission_denied", FixSuggestionID: "f1", Success: true}))
	require.NoError(t, r.Record(model.UserFeedback{PatternID: "docker_permission_denied", FixSuggestionID: "f2", Success: false}))
	require.NoError(t, r.Record(model.UserFeedback{PatternID: "npm_install_failure", FixSuggestionID: "f3", Success: true}))

	all, err := r.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestByPatternGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	r, err := New(path)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Record(model.UserFeedback{PatternID: "a", FixSuggestionID: "1", Success: true}))
	require.NoError(t, r.Record(model.UserFeedback{PatternID: "a", FixSuggestionID: "2", Success: true}))
	require.NoError(t, r.Record(model.UserFeedback{PatternID: "b", FixSuggestionID: "3", Success: false}))

	grouped, err := r.ByPattern()
	require.NoError(t, err)
	assert.Len(t, grouped["a"], 2)
	assert.Len(t, grouped["b"], 1)
}

func TestFlushOnCloseMakesDataVisibleToNewReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	r, err := New(path)
	require.NoError(t, err)
	require.NoError(t, r.Record(model.UserFeedback{PatternID: "a", FixSuggestionID: "1", Success: true}))
	require.NoError(t, r.Close())

	r2, err := New(path)
	require.NoError(t, err)
	defer r2.Close()
	all, err := r2.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMalformedLineIsSkippedNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	r, err := New(path)
	require.NoError(t, err)
	require.NoError(t, r.Record(model.UserFeedback{PatternID: "a", FixSuggestionID: "1", Success: true}))
	require.NoError(t, r.Close())

	f, err := New(path)
	require.NoError(t, err)
	_, err = f.file.Write([]byte("not json\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := New(path)
	require.NoError(t, err)
	defer f2.Close()
	all, err := f2.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
