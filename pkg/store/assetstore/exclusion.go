package assetstore

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// exclusion holds the two store-wide regions.
// Only one download runs inside the read region at a time, and only one upload
// copies bytes inside the write region at a time, regardless of the key.
// Waiting for a region is aborted when the context is done,
// a done context never enters a region.
type exclusion struct {
	read  *semaphore.Weighted
	write *semaphore.Weighted
}

func newExclusion() exclusion {
	return exclusion{
		read:  semaphore.NewWeighted(1),
		write: semaphore.NewWeighted(1),
	}
}

// lockRead enters the read region. The returned func leaves it.
func (e exclusion) lockRead(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.read.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { e.read.Release(1) }, nil
}

// lockWrite enters the write region. The returned func leaves it.
func (e exclusion) lockWrite(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.write.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { e.write.Release(1) }, nil
}

// reservations is an in-process set of keys with a non-overwrite upload in flight.
// Stores without an atomic create-if-absent primitive of their own use it
// to reserve the key before copying.
type reservations struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newReservations() *reservations {
	return &reservations{keys: make(map[string]struct{})}
}

// tryReserve returns false if the key is already reserved.
func (r *reservations) tryReserve(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key]; ok {
		return false
	}
	r.keys[key] = struct{}{}
	return true
}

func (r *reservations) release(key string) {
	r.mu.Lock()
	delete(r.keys, key)
	r.mu.Unlock()
}
