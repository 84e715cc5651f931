package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// accountLocker serializes movements per account. Each account id maps to a
// one-slot semaphore; callers must pass ids pre-sorted (store.LockOrder) so that
// two transfers between the same pair of accounts in opposite directions always
// contend in the same order and cannot deadlock.
type accountLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

func newAccountLocker() *accountLocker {
	return &accountLocker{locks: make(map[uuid.UUID]chan struct{})}
}

func (l *accountLocker) semaphore(id uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[id] = sem
	}
	return sem
}

// acquire takes the semaphores for every id, in the order given. If the context
// expires while waiting, every semaphore taken so far is released and the
// context error is returned; no caller-visible state has changed at that point.
func (l *accountLocker) acquire(ctx context.Context, ids []uuid.UUID) (release func(), err error) {
	held := make([]chan struct{}, 0, len(ids))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range ids {
		sem := l.semaphore(id)
		select {
		case sem <- struct{}{}:
			held = append(held, sem)
		case <-ctx.Done():
			releaseHeld()
			return nil, ctx.Err()
		}
	}
	return releaseHeld, nil
}
