package tlocal_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/fimo/tlocal"
)

func TestGetForIsolatedPerGoroutine(t *testing.T) {
	r := tlocal.NewRegistry()

	s1 := r.GetFor(1)
	s2 := r.GetFor(2)
	require.NotSame(t, s1, s2)

	s1.Set("err-a")
	assert.True(t, r.GetFor(1).HasError())
	assert.False(t, r.GetFor(2).HasError())
}

func TestReplaceTransitionCounting(t *testing.T) {
	r := tlocal.NewRegistry()
	s := r.Get()

	var errCount int
	onTransition := func(wasErr, isErr bool) {
		if isErr && !wasErr {
			errCount++
		} else if wasErr && !isErr {
			errCount--
		}
	}

	old := s.Replace("boom", onTransition)
	assert.Nil(t, old)
	assert.Equal(t, 1, errCount)

	old = s.Replace("boom2", onTransition)
	assert.Equal(t, "boom", old)
	assert.Equal(t, 1, errCount) // err -> err: no transition

	old = s.Replace(nil, onTransition)
	assert.Equal(t, "boom2", old)
	assert.Equal(t, 0, errCount)
}

func TestUnregisterRemovesSlot(t *testing.T) {
	r := tlocal.NewRegistry()
	r.GetFor(42).Set("x")
	require.Equal(t, 1, r.Count())
	r.UnregisterFor(42)
	assert.Equal(t, 0, r.Count())
}

func TestConcurrentGoroutinesGetDistinctSlots(t *testing.T) {
	r := tlocal.NewRegistry()
	var wg sync.WaitGroup
	ids := make(chan uint64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := r.Get()
			s.Set(struct{}{})
			ids <- tlocal.GoroutineID()
		}()
	}
	wg.Wait()
	close(ids)
	seen := map[uint64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "goroutine id reused: %d", id)
		seen[id] = true
	}
}
