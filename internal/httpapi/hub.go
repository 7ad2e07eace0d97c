package httpapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"draftroom/internal/draft"
)

// Stream event names. "snapshot" always precedes "update"/"timer" on a
// stream; "deleted" and "not_found" are terminal.
const (
	evSnapshot = "snapshot"
	evUpdate   = "update"
	evTimer    = "timer"
	evDeleted  = "deleted"
	evNotFound = "not_found"
)

const tickInterval = 250 * time.Millisecond

type streamEvent struct {
	name string
	data json.RawMessage
}

type hubClient struct {
	ch chan streamEvent
}

// hubSession exists only while at least one stream is open on the
// session: a client set in insertion order, the last shaped snapshot,
// and the cancel handle of the 250 ms ticker goroutine.
type hubSession struct {
	clients  []*hubClient
	snapshot *sessionPayload
	cancel   context.CancelFunc
}

type hub struct {
	mu       sync.Mutex
	sessions map[string]*hubSession
	now      func() time.Time
}

func newHub() *hub {
	return &hub{
		sessions: map[string]*hubSession{},
		now:      time.Now,
	}
}

// subscribe registers a new spectator. snap seeds the session entry when
// this is the first subscriber; afterwards the hub's own copy (kept
// fresh by updates and ticker burns) serves the initial snapshot.
// Ownership of snap transfers to the hub; callers must not touch it
// after subscribing.
func (h *hub) subscribe(sessionKey string, snap *sessionPayload) *hubClient {
	c := &hubClient{ch: make(chan streamEvent, 16)}

	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.sessions[sessionKey]
	if e == nil {
		ctx, cancel := context.WithCancel(context.Background())
		e = &hubSession{snapshot: snap, cancel: cancel}
		h.sessions[sessionKey] = e
		go h.tickLoop(ctx, sessionKey)
	}
	e.clients = append(e.clients, c)

	if b, err := json.Marshal(e.snapshot); err == nil {
		c.ch <- streamEvent{name: evSnapshot, data: b}
	} else {
		logErrorNoCtx("hub snapshot marshal failed", err)
	}
	return c
}

func (h *hub) unsubscribe(sessionKey string, c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.sessions[sessionKey]
	if e == nil {
		return
	}
	h.dropLocked(sessionKey, e, c)
}

// dropLocked removes one client and tears the session entry down when it
// was the last.
func (h *hub) dropLocked(sessionKey string, e *hubSession, c *hubClient) {
	for i, have := range e.clients {
		if have == c {
			e.clients = append(e.clients[:i], e.clients[i+1:]...)
			close(c.ch)
			break
		}
	}
	if len(e.clients) == 0 {
		e.cancel()
		delete(h.sessions, sessionKey)
	}
}

// publish replaces the snapshot after a persisted state change and fans
// an update out to every subscriber. The hub keeps its own copy: the
// caller stays free to marshal or mutate its payload while the ticker
// burns the hub's.
func (h *hub) publish(sessionKey string, snap *sessionPayload) {
	b, err := json.Marshal(snap)
	if err != nil {
		logErrorNoCtx("hub update marshal failed", err)
		return
	}
	own := &sessionPayload{}
	if err := json.Unmarshal(b, own); err != nil {
		logErrorNoCtx("hub snapshot copy failed", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.sessions[sessionKey]
	if e == nil {
		return
	}
	e.snapshot = own
	h.broadcastLocked(sessionKey, e, streamEvent{name: evUpdate, data: b})
}

// remove broadcasts the terminal deleted event and closes every stream.
func (h *hub) remove(sessionKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.sessions[sessionKey]
	if e == nil {
		return
	}
	data, _ := json.Marshal(map[string]string{"sessionKey": sessionKey})
	for _, c := range e.clients {
		select {
		case c.ch <- streamEvent{name: evDeleted, data: data}:
		default:
		}
		close(c.ch)
	}
	e.clients = nil
	e.cancel()
	delete(h.sessions, sessionKey)
}

// broadcastLocked walks subscribers in insertion order. A full channel
// means a stalled consumer; it is dropped and reconnects for a fresh
// snapshot.
func (h *hub) broadcastLocked(sessionKey string, e *hubSession, ev streamEvent) {
	for i := 0; i < len(e.clients); {
		c := e.clients[i]
		select {
		case c.ch <- ev:
			i++
		default:
			h.dropLocked(sessionKey, e, c)
		}
	}
}

// timerPayload is the low-cardinality delta the ticker emits.
type timerPayload struct {
	TimerEnabled   bool              `json:"timerEnabled"`
	Paused         draft.SideFlags   `json:"paused"`
	ReserveLeft    draft.SideSeconds `json:"reserveLeft"`
	GraceLeft      float64           `json:"graceLeft"`
	TimerUpdatedAt int64             `json:"timerUpdatedAt"`
	CurrentTurn    int               `json:"currentTurn"`
}

func (h *hub) tickLoop(ctx context.Context, sessionKey string) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(sessionKey)
		}
	}
}

// tick burns the in-memory snapshot forward and emits the timer delta;
// the next tick continues from this checkpoint. The persisted row is
// untouched.
func (h *hub) tick(sessionKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.sessions[sessionKey]
	if e == nil || e.snapshot == nil || e.snapshot.State == nil {
		return
	}
	st := e.snapshot.State
	draft.Burn(st, h.now())
	b, err := json.Marshal(timerPayload{
		TimerEnabled:   st.TimerEnabled,
		Paused:         st.Paused,
		ReserveLeft:    st.ReserveLeft,
		GraceLeft:      st.GraceLeft,
		TimerUpdatedAt: st.TimerUpdatedAt,
		CurrentTurn:    st.CurrentTurn,
	})
	if err != nil {
		logErrorNoCtx("hub timer marshal failed", err)
		return
	}
	h.broadcastLocked(sessionKey, e, streamEvent{name: evTimer, data: b})
}
