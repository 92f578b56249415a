package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchCache_PutGet(t *testing.T) {
	c := NewMatchCache(10, time.Hour)
	key := Key(TypeCharacter, "Eira", "Eira Lightbringer")

	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, MatchDecision{IsMatch: true, Confidence: 0.92})
	got, ok := c.Get(key)
	require.True(t, ok)
	require.True(t, got.IsMatch)

	hits, misses := c.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}

func TestMatchCache_ExpiresAfterTTL(t *testing.T) {
	c := NewMatchCache(10, time.Millisecond)
	key := Key(TypePlace, "a", "b")
	c.Put(key, MatchDecision{IsMatch: true})

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(key)
	require.False(t, ok)
}

func TestMatchCache_EvictsLRU(t *testing.T) {
	c := NewMatchCache(2, time.Hour)
	c.Put("a", MatchDecision{Confidence: 1})
	c.Put("b", MatchDecision{Confidence: 2})
	c.Get("a") // touch a, making b the least-recently-used
	c.Put("c", MatchDecision{Confidence: 3})

	_, ok := c.Get("b")
	require.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}
