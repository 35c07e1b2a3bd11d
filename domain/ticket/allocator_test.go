package ticket

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextOnEmptyStore(t *testing.T) {
	alloc := NewAllocator(newFakeStore())
	assert.Equal(t, int64(1), alloc.Next(context.Background()))
}

func TestNextScansTailMaximum(t *testing.T) {
	store := newFakeStore()
	store.numbers = []int64{3, 41, 7}
	alloc := NewAllocator(store)
	assert.Equal(t, int64(42), alloc.Next(context.Background()))
}

func TestNextTreatsMalformedAsZero(t *testing.T) {
	// The store maps non-numeric cells to 0 before they reach the
	// allocator, so an all-garbage column behaves like an empty one.
	store := newFakeStore()
	store.numbers = []int64{0, 0, 0}
	alloc := NewAllocator(store)
	assert.Equal(t, int64(1), alloc.Next(context.Background()))
}

func TestNextFreshCounterSkipsStore(t *testing.T) {
	store := newFakeStore()
	store.numbers = []int64{10}
	alloc := NewAllocator(store)

	assert.Equal(t, int64(11), alloc.Next(context.Background()))
	assert.Equal(t, int64(12), alloc.Next(context.Background()))
	assert.Equal(t, int64(13), alloc.Next(context.Background()))
	assert.Equal(t, 1, store.numberCalls)
}

func TestNextStoreFailureFallsBack(t *testing.T) {
	store := newFakeStore()
	store.numbersErr = errors.New("offline")
	alloc := NewAllocator(store)

	// Cold start with no cached counter starts at 1.
	assert.Equal(t, int64(1), alloc.Next(context.Background()))

	// A warm counter keeps advancing through outages.
	alloc.lastAssigned = 41
	alloc.freshness = 0
	assert.Equal(t, int64(42), alloc.Next(context.Background()))
}

func TestNextNeverRegresses(t *testing.T) {
	store := newFakeStore()
	store.numbers = []int64{5}
	alloc := NewAllocator(store)
	alloc.freshness = 0 // force a store scan on every call

	alloc.lastAssigned = 20
	assert.Equal(t, int64(21), alloc.Next(context.Background()))
}

func TestNextSequenceStrictlyIncreasing(t *testing.T) {
	store := newFakeStore()
	alloc := NewAllocator(store)

	var prev int64
	for i := 0; i < 100; i++ {
		n := alloc.Next(context.Background())
		assert.Greater(t, n, prev)
		prev = n
	}
}
