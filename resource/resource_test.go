package resource_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/fimo/resource"
)

func TestWaitUntilZeroReturnsImmediatelyWhenZero(t *testing.T) {
	c := resource.New()
	done := make(chan struct{})
	go func() {
		c.WaitUntilZero()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilZero blocked on an already-zero counter")
	}
}

func TestWaitUntilZeroBlocksUntilDrained(t *testing.T) {
	c := resource.New()
	c.Increase()
	c.Increase()

	done := make(chan struct{})
	go func() {
		c.WaitUntilZero()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitUntilZero returned before count drained")
	case <-time.After(20 * time.Millisecond):
	}

	c.Decrease()
	select {
	case <-done:
		t.Fatal("WaitUntilZero returned with count == 1")
	case <-time.After(20 * time.Millisecond):
	}

	c.Decrease()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilZero did not return after drain")
	}
}

func TestDecreaseBelowZeroPanics(t *testing.T) {
	c := resource.New()
	assert.Panics(t, func() { c.Decrease() })
}

func TestConcurrentIncreaseDecrease(t *testing.T) {
	c := resource.New()
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		c.Increase()
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Decrease()
		}()
	}
	wg.Wait()
	require.Equal(t, int64(0), c.Load())
	c.WaitUntilZero()
}
