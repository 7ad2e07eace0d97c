package httpapi

import (
	"sync"
	"time"
)

// lockTable serializes all mutations to one session: owner update,
// player action and delete each hold the session's lock across
// load -> burn -> reduce -> persist -> broadcast. Entries are
// refcounted so idle sessions cost nothing.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: map[string]*lockEntry{}}
}

// acquire takes the session lock, waiting at most timeout (forever when
// timeout <= 0). It returns the release function and whether the lock
// was obtained; on a timeout the caller surfaces a retryable failure
// instead of queueing without bound behind a stuck writer.
func (t *lockTable) acquire(sessionKey string, timeout time.Duration) (func(), bool) {
	t.mu.Lock()
	e := t.entries[sessionKey]
	if e == nil {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		t.entries[sessionKey] = e
	}
	e.refs++
	t.mu.Unlock()

	release := func() {
		<-e.sem
		t.drop(sessionKey, e)
	}

	if timeout <= 0 {
		e.sem <- struct{}{}
		return release, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e.sem <- struct{}{}:
		return release, true
	case <-timer.C:
		t.drop(sessionKey, e)
		return nil, false
	}
}

func (t *lockTable) drop(sessionKey string, e *lockEntry) {
	t.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, sessionKey)
	}
	t.mu.Unlock()
}
