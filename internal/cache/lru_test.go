// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStmt records whether it was closed.
type fakeStmt struct {
	name   string
	closed bool
	err    error
}

func (f *fakeStmt) Close() error {
	f.closed = true
	return f.err
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		expected int
	}{
		{"positive capacity", 10, 10},
		{"zero capacity defaults", 0, DefaultCapacity},
		{"negative capacity defaults", -3, DefaultCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New[*fakeStmt](tt.capacity)
			require.NotNil(t, c)
			assert.Equal(t, tt.expected, c.Stats().Capacity)
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestCache_GetPut(t *testing.T) {
	c := New[*fakeStmt](4)

	_, ok := c.Get("SELECT 1")
	assert.False(t, ok)

	s := &fakeStmt{name: "one"}
	require.NoError(t, c.Put("SELECT 1", s))

	got, ok := c.Get("SELECT 1")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.False(t, s.closed)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[*fakeStmt](2)
	a, b, d := &fakeStmt{name: "a"}, &fakeStmt{name: "b"}, &fakeStmt{name: "d"}

	require.NoError(t, c.Put("a", a))
	require.NoError(t, c.Put("b", b))

	// touch a so b becomes the oldest
	_, _ = c.Get("a")
	require.NoError(t, c.Put("d", d))

	assert.Equal(t, 2, c.Len())
	assert.True(t, b.closed)
	assert.False(t, a.closed)

	_, ok := c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_PutReplacesAndCloses(t *testing.T) {
	c := New[*fakeStmt](2)
	old, replacement := &fakeStmt{}, &fakeStmt{}

	require.NoError(t, c.Put("k", old))
	require.NoError(t, c.Put("k", replacement))

	assert.True(t, old.closed)
	assert.Equal(t, 1, c.Len())
	got, _ := c.Get("k")
	assert.Same(t, replacement, got)
}

func TestCache_EvictionReturnsCloseError(t *testing.T) {
	c := New[*fakeStmt](1)
	boom := errors.New("close failed")

	require.NoError(t, c.Put("a", &fakeStmt{err: boom}))
	err := c.Put("b", &fakeStmt{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.Len())
}

func TestCache_Remove(t *testing.T) {
	c := New[*fakeStmt](2)
	s := &fakeStmt{}
	require.NoError(t, c.Put("k", s))

	require.NoError(t, c.Remove("k"))
	assert.True(t, s.closed)
	assert.Equal(t, 0, c.Len())

	assert.NoError(t, c.Remove("missing"))
}

func TestCache_Clear(t *testing.T) {
	c := New[*fakeStmt](8)
	first := errors.New("first")
	second := errors.New("second")
	stmts := []*fakeStmt{{err: first}, {}, {err: second}}
	for i, s := range stmts {
		require.NoError(t, c.Put(fmt.Sprintf("q%d", i), s))
	}

	err := c.Clear()
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	for _, s := range stmts {
		assert.True(t, s.closed)
	}
	assert.Equal(t, 0, c.Len())

	// usable after clear
	require.NoError(t, c.Put("again", &fakeStmt{}))
	assert.Equal(t, 1, c.Len())
}

func TestCache_Stats(t *testing.T) {
	c := New[*fakeStmt](4)
	require.NoError(t, c.Put("a", &fakeStmt{}))

	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRate, 0.0001)
}

func TestCache_Concurrent(t *testing.T) {
	c := New[*fakeStmt](16)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("q%d", (g*100+i)%32)
				if _, ok := c.Get(key); !ok {
					_ = c.Put(key, &fakeStmt{})
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
}
