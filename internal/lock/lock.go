// Package lock serializes work per interview and per interviewer.
//
// Callers that need both locks take the interview lock first and the
// interviewer lock second. The ledger only ever takes interviewer locks, so
// that order cannot invert.
package lock

import (
	"context"
	"sync"
)

// Locker hands out exclusive access to a key until the returned unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// InterviewKey names the lock guarding one negotiation record.
func InterviewKey(id string) string { return "interview:" + id }

// InterviewerKey names the lock guarding one interviewer's ledger.
func InterviewerKey(id string) string { return "interviewer:" + id }

// Keyed is an in-process Locker. Entries are reference counted and dropped
// once no goroutine holds or waits for them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewKeyed returns an empty in-process locker.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.drop(key, e)
		})
	}, nil
}

func (k *Keyed) drop(key string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

// size reports the number of live entries.
func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
