package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"draftroom/internal/draft"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

const keepAliveInterval = 25 * time.Second

// handleSessionStream serves the spectator SSE feed. The first event is
// always a snapshot; afterwards the hub pushes update and timer events
// until the client disconnects or the session is deleted. An unknown
// session key gets a single not_found event so clients can stop
// reconnecting.
func (s *server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "sessionKey")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	bw := bufio.NewWriter(w)

	loadCtx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	sr, err := s.loadSession(loadCtx, sessionKey)
	if errors.Is(err, pgx.ErrNoRows) {
		cancel()
		w.WriteHeader(http.StatusOK)
		data, _ := json.Marshal(map[string]string{"sessionKey": sessionKey})
		writeSSE(bw, flusher, evNotFound, data)
		return
	}
	if err != nil {
		cancel()
		logError(r.Context(), "stream session load failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	now := time.Now().UTC()
	payload, err := s.shapeLoaded(loadCtx, sr, now)
	cancel()
	if err != nil {
		logError(r.Context(), "stream session shape failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	// Seed the hub with a burned view so the first timer tick continues
	// from the moment the stream opened.
	draft.Burn(payload.State, now)

	client := s.hub.subscribe(sessionKey, payload)
	defer s.hub.unsubscribe(sessionKey, client)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := bw.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-client.ch:
			if !open {
				return
			}
			if !writeSSE(bw, flusher, ev.name, ev.data) {
				return
			}
			if ev.name == evDeleted {
				return
			}
		}
	}
}

func writeSSE(bw *bufio.Writer, flusher http.Flusher, name string, data []byte) bool {
	if _, err := fmt.Fprintf(bw, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return false
	}
	if err := bw.Flush(); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
