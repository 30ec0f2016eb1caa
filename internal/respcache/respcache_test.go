package respcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutThenGetHits(t *testing.T) {
	c := New(1024, time.Hour)
	c.Put("k1", []byte("value"), 5)

	v, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}

func TestGetMissOnUnknownKey(t *testing.T) {
	c := New(1024, time.Hour)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := New(1024, time.Millisecond)
	c.Put("k1", []byte("value"), 5)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUEvictsOldestWhenOverBudget(t *testing.T) {
	c := New(10, time.Hour)
	c.Put("k1", []byte("12345"), 5)
	c.Put("k2", []byte("12345"), 5)
	// both fit exactly at 10 bytes
	_, ok2 := c.Get("k2")
	_, ok1 := c.Get("k1")
	assert.True(t, ok1)
	assert.True(t, ok2)

	// k1 was just touched by Get, so it's MRU; k3 insertion should evict k2.
	c.Put("k3", []byte("12345"), 5)
	_, ok1 = c.Get("k1")
	_, ok2 = c.Get("k2")
	_, ok3 := c.Get("k3")
	assert.True(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)
}

func TestInvalidateRemovesMatchingPrefix(t *testing.T) {
	c := New(1024, time.Hour)
	c.Put("fp1|1|1", []byte("a"), 1)
	c.Put("fp1|2|1", []byte("b"), 1)
	c.Put("fp2|1|1", []byte("c"), 1)

	c.Invalidate("fp1|")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fp2|1|1")
	assert.True(t, ok)
}

func TestBuildKeyIncludesVersions(t *testing.T) {
	k1 := BuildKey("abc123", 1, 1)
	k2 := BuildKey("abc123", 2, 1)
	assert.NotEqual(t, k1, k2)
}
