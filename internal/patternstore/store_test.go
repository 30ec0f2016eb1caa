package patternstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenci/warden/internal/model"
)

func TestNewLoadsBuiltins(t *testing.T) {
	s, err := New(nil, "", "")
	require.NoError(t, err)
	p, ok := s.ByID("docker_permission_denied")
	require.True(t, ok)
	assert.Equal(t, model.SourceBuiltin, p.Source)
}

func TestAllEnabledFilterByCategory(t *testing.T) {
	s, err := New(nil, "", "")
	require.NoError(t, err)
	all := s.AllEnabled("")
	assert.NotEmpty(t, all)

	deps := s.AllEnabled("dependency")
	for _, p := range deps {
		assert.Equal(t, "dependency", p.Category)
	}
}

func TestUpsertLearnedRequiresOccurrenceCount(t *testing.T) {
	s, err := New(nil, "", "")
	require.NoError(t, err)
	err = s.UpsertLearned(model.Pattern{ID: "learned_x", Category: "unknown", OccurrenceCount: 0})
	assert.Error(t, err)
}

func TestUpsertLearnedPersistsAndBumpsVersion(t *testing.T) {
	dir := t.TempDir()
	learnedPath := filepath.Join(dir, "learned.json")
	s, err := New(nil, "", learnedPath)
	require.NoError(t, err)
	v0 := s.Version()

	err = s.UpsertLearned(model.Pattern{
		ID: "learned_x", Category: "unknown", OccurrenceCount: 3, BaseConfidence: 0.5,
		Regexes: []string{`widget not found`},
	})
	require.NoError(t, err)
	assert.Greater(t, s.Version(), v0)

	data, err := os.ReadFile(learnedPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "learned_x")
}

func TestUserPatternFileOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	content := `{"patterns":[{"id":"docker_permission_denied","name":"custom","category":"permission","regexes":["custom regex"],"base_confidence":0.99,"enabled":true}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.json"), []byte(content), 0o644))

	s, err := New(nil, dir, "")
	require.NoError(t, err)
	p, ok := s.ByID("docker_permission_denied")
	require.True(t, ok)
	assert.Equal(t, model.SourceUser, p.Source)
	assert.Equal(t, 0.99, p.BaseConfidence)
}

func TestCorruptUserFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	s, err := New(nil, dir, "")
	require.NoError(t, err)
	_, ok := s.ByID("docker_permission_denied")
	assert.True(t, ok, "builtins still load when a user file is corrupt")
}

func TestInvalidRegexRejected(t *testing.T) {
	s, err := New(nil, "", "")
	require.NoError(t, err)
	err = s.UpsertLearned(model.Pattern{
		ID: "bad_regex", Category: "unknown", OccurrenceCount: 1,
		Regexes: []string{"(unterminated"},
	})
	assert.Error(t, err)
}
