package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"draftroom/internal/draft"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// actionEnvelope is the wire form of a player action. Older clients send
// setMindscape/setWengine ops and mindscape/wengineId/phase fields; the
// envelope accepts both spellings.
type actionEnvelope struct {
	Op            string  `json:"op"`
	PT            string  `json:"pt"`
	Index         *int    `json:"index"`
	CharacterCode string  `json:"characterCode"`
	Eidolon       *int    `json:"eidolon"`
	Mindscape     *int    `json:"mindscape"`
	Superimpose   *int    `json:"superimpose"`
	Phase         *int    `json:"phase"`
	AccessoryID   *string `json:"accessoryId"`
	WengineID     *string `json:"wengineId"`
	Locked        *bool   `json:"locked"`
}

func (e actionEnvelope) index() (int, bool) {
	if e.Index == nil {
		return 0, false
	}
	return *e.Index, true
}

// parseAction turns the envelope into a reducer action. Unknown ops and
// missing required fields both reject as invalid-argument.
func parseAction(e actionEnvelope) (draft.Action, error) {
	switch e.Op {
	case "pick":
		idx, ok := e.index()
		if !ok {
			return nil, draft.ErrInvalidArgument
		}
		return draft.Pick{Index: idx, CharacterCode: e.CharacterCode}, nil
	case "ban":
		idx, ok := e.index()
		if !ok {
			return nil, draft.ErrInvalidArgument
		}
		return draft.Ban{Index: idx, CharacterCode: e.CharacterCode}, nil
	case "setEidolon", "setMindscape":
		idx, ok := e.index()
		if !ok {
			return nil, draft.ErrInvalidArgument
		}
		v := 0
		switch {
		case e.Eidolon != nil:
			v = *e.Eidolon
		case e.Mindscape != nil:
			v = *e.Mindscape
		}
		return draft.SetEidolon{Index: idx, Eidolon: v}, nil
	case "setSuperimpose", "setPhase":
		idx, ok := e.index()
		if !ok {
			return nil, draft.ErrInvalidArgument
		}
		v := 1
		switch {
		case e.Superimpose != nil:
			v = *e.Superimpose
		case e.Phase != nil:
			v = *e.Phase
		}
		return draft.SetSuperimpose{Index: idx, Superimpose: v}, nil
	case "setAccessory", "setWengine":
		idx, ok := e.index()
		if !ok {
			return nil, draft.ErrInvalidArgument
		}
		v := ""
		switch {
		case e.AccessoryID != nil:
			v = *e.AccessoryID
		case e.WengineID != nil:
			v = *e.WengineID
		}
		return draft.SetAccessory{Index: idx, AccessoryID: v}, nil
	case "setLock":
		if e.Locked == nil {
			return nil, draft.ErrInvalidArgument
		}
		return draft.SetLock{Locked: *e.Locked}, nil
	case "undoLast", "undo":
		return draft.Undo{Index: e.Index}, nil
	default:
		return nil, draft.ErrInvalidArgument
	}
}

// handleSessionAction is the authoritative mutation path: rate limit,
// session lock, token to side, burn elapsed time, reduce, persist,
// broadcast. Rejections leave the row untouched.
func (s *server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "sessionKey")

	var env actionEnvelope
	if !readJSONLimited(w, r, &env, 64*1024) {
		return
	}

	limiterID := env.PT
	if limiterID == "" {
		limiterID = r.RemoteAddr
	}
	if !s.actionLimiter.allow("act:" + sessionKey + ":" + limiterID) {
		writeError(w, http.StatusTooManyRequests, "rate-limited")
		return
	}

	act, err := parseAction(env)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	release, ok := s.locks.acquire(sessionKey, s.actionDeadline)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "retry")
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	sr, err := s.loadSession(ctx, sessionKey)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not-found")
		return
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "retry")
			return
		}
		logError(ctx, "session load failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if sr.IsComplete {
		writeError(w, http.StatusConflict, draft.ErrDraftAlreadyComplete.Error())
		return
	}

	side, ok := sideForToken(env.PT, sr.BlueToken, sr.RedToken)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	now := time.Now().UTC()
	payload, err := s.shapeLoaded(ctx, sr, now)
	if err != nil {
		logError(ctx, "session shape failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	st := payload.State

	featured, err := draft.ParseFeatured(sr.Featured)
	if err != nil {
		logError(ctx, "featured parse failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	rules := draft.CompileRules(featured)

	// An undo pays for the elapsed interval itself; every other action
	// burns against the side on the clock.
	if _, isUndo := act.(draft.Undo); isUndo {
		draft.BurnForUndo(st, now)
	} else {
		draft.Burn(st, now)
	}
	if err := draft.Apply(st, rules, side, act, now); err != nil {
		writeError(w, rejectionStatus(err), err.Error())
		return
	}

	stateJSON, err := json.Marshal(st)
	if err != nil {
		logError(ctx, "state marshal failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	if _, err := s.db.Exec(ctx, `
		update draft_sessions
		set state = $1, last_activity_at = $2
		where session_key = $3
	`, stateJSON, now, sessionKey); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "retry")
			return
		}
		logError(ctx, "state persist failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	payload.LastActivityAt = now
	s.hub.publish(sessionKey, payload)
	writeJSON(w, http.StatusOK, payload)
}
