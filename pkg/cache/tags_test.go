package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidateByTagRemovesExactlyTaggedKeys(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	s.SetWithTags("user:1", "alice", []string{"users"})
	s.SetWithTags("user:2", "bob", []string{"users"})
	s.SetWithTags("product:1", "tb-303", []string{"products"})

	n := s.InvalidateByTag("users")
	assert.Equal(t, 2, n)

	_, ok := s.Get("user:1")
	assert.False(t, ok)
	_, ok = s.Get("user:2")
	assert.False(t, ok)

	v, ok := s.Get("product:1")
	require.True(t, ok, "keys under other tags must be untouched")
	assert.Equal(t, "tb-303", v)
}

func TestInvalidateByTagSkipsAlreadyGoneKeys(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	s.SetWithTags("a", 1, []string{"batch"}, EntryOptions{TTL: 10 * time.Millisecond})
	s.SetWithTags("b", 2, []string{"batch"})

	time.Sleep(20 * time.Millisecond)
	_, ok := s.Get("a") // expire "a" through the untagged path
	require.False(t, ok)

	// Orphaned reference no-ops; only "b" is actually deleted.
	assert.Equal(t, 1, s.InvalidateByTag("batch"))
}

func TestInvalidateUnknownTagIsNoOp(t *testing.T) {
	s := newTestStore(t, StoreConfig{})
	assert.Equal(t, 0, s.InvalidateByTag("nope"))
}

func TestKeyRegisteredUnderEveryTag(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	s.SetWithTags("patch:1", "x", []string{"bass", "featured"})

	assert.Equal(t, 1, s.InvalidateByTag("bass"))
	// Already removed via the first tag; the second tag's reference no-ops.
	assert.Equal(t, 0, s.InvalidateByTag("featured"))
}
