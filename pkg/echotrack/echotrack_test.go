package echotrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsumeKnownID(t *testing.T) {
	tr := New(10 * time.Minute)
	tr.Record("ABC123")
	assert.True(t, tr.Consume("ABC123"))
}

func TestConsumeUnknownID(t *testing.T) {
	tr := New(10 * time.Minute)
	assert.False(t, tr.Consume("NOPE"))
}

func TestConsumeRemovesID(t *testing.T) {
	tr := New(10 * time.Minute)
	tr.Record("ABC123")
	assert.True(t, tr.Consume("ABC123"))
	assert.False(t, tr.Consume("ABC123"))
}

func TestExpiredIDNotConsumed(t *testing.T) {
	tr := New(10 * time.Minute)
	clock := time.Now()
	tr.now = func() time.Time { return clock }

	tr.Record("OLD")
	clock = clock.Add(11 * time.Minute)
	assert.False(t, tr.Consume("OLD"))
}

func TestRecordPrunesExpired(t *testing.T) {
	tr := New(10 * time.Minute)
	clock := time.Now()
	tr.now = func() time.Time { return clock }

	tr.Record("A")
	tr.Record("B")
	clock = clock.Add(11 * time.Minute)
	tr.Record("C")
	assert.Equal(t, 1, tr.Len())
}

func TestPruneDropsExpiredWithoutNewSends(t *testing.T) {
	tr := New(10 * time.Minute)
	clock := time.Now()
	tr.now = func() time.Time { return clock }

	tr.Record("A")
	tr.Record("B")
	clock = clock.Add(11 * time.Minute)
	tr.Prune()
	assert.Equal(t, 0, tr.Len())
}

func TestEmptyIDIgnored(t *testing.T) {
	tr := New(10 * time.Minute)
	tr.Record("")
	assert.Equal(t, 0, tr.Len())
	assert.False(t, tr.Consume(""))
}
