package httpapi

import (
	"testing"
	"time"
)

func TestKeyedRateLimiterWindow(t *testing.T) {
	l := newKeyedRateLimiter(2, 50*time.Millisecond)

	if !l.allow("act:s1:tok") || !l.allow("act:s1:tok") {
		t.Fatal("first two requests must pass")
	}
	if l.allow("act:s1:tok") {
		t.Fatal("third request inside the window must fail")
	}
	// Separate keys have separate buckets.
	if !l.allow("act:s1:other") {
		t.Fatal("different key throttled")
	}

	time.Sleep(60 * time.Millisecond)
	if !l.allow("act:s1:tok") {
		t.Fatal("window expiry did not reset the bucket")
	}
}

func TestLockTableSerializes(t *testing.T) {
	lt := newLockTable()

	release, ok := lt.acquire("s1", 0)
	if !ok {
		t.Fatal("unbounded acquire failed")
	}
	got := make(chan struct{})
	go func() {
		r, ok := lt.acquire("s1", 0)
		if !ok {
			t.Error("unbounded acquire failed")
			return
		}
		r()
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("second acquire proceeded while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded after release")
	}

	// Independent sessions never contend.
	r1, _ := lt.acquire("a", 0)
	r2, _ := lt.acquire("b", 0)
	r2()
	r1()

	lt.mu.Lock()
	defer lt.mu.Unlock()
	if len(lt.entries) != 0 {
		t.Fatalf("lock table holds %d entries after all releases", len(lt.entries))
	}
}

func TestLockTableAcquireTimesOut(t *testing.T) {
	lt := newLockTable()

	release, ok := lt.acquire("s1", 0)
	if !ok {
		t.Fatal("unbounded acquire failed")
	}

	if _, ok := lt.acquire("s1", 20*time.Millisecond); ok {
		t.Fatal("bounded acquire succeeded while the lock was held")
	}

	release()
	lt.mu.Lock()
	if len(lt.entries) != 0 {
		lt.mu.Unlock()
		t.Fatal("timed-out waiter leaked a refcount")
	}
	lt.mu.Unlock()

	// After release the bounded path succeeds immediately.
	r, ok := lt.acquire("s1", 20*time.Millisecond)
	if !ok {
		t.Fatal("bounded acquire failed on a free lock")
	}
	r()
}
