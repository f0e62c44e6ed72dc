package kvcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 60))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemoryMissingKey(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	clock := time.Now()
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 30))
	clock = clock.Add(31 * time.Second)
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	m := NewMemory()
	clock := time.Now()
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	clock = clock.Add(24 * time.Hour)
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 60))
	require.NoError(t, m.Delete(ctx, "k"))
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOverwrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "old", 60))
	require.NoError(t, m.Set(ctx, "k", "new", 60))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}
