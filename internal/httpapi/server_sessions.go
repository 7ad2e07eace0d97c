package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"draftroom/internal/draft"
	"draftroom/internal/keys"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type createSessionRequest struct {
	Mode           string          `json:"mode"`
	Team1          string          `json:"team1"`
	Team2          string          `json:"team2"`
	State          json.RawMessage `json:"state"`
	Featured       json.RawMessage `json:"featured"`
	TimerEnabled   bool            `json:"timerEnabled"`
	ReserveSeconds float64         `json:"reserveSeconds"`
	CostProfileID  *string         `json:"costProfileId"`
	CostLimit      *float64        `json:"costLimit"`
	PenaltyPerPoint *int           `json:"penaltyPerPoint"`
}

type sessionCredentials struct {
	SessionKey string `json:"sessionKey"`
	BlueToken  string `json:"blueToken"`
	RedToken   string `json:"redToken"`
	WatchURL   string `json:"watchUrl,omitempty"`
}

func (s *server) credentials(sessionKey, blueToken, redToken string) sessionCredentials {
	c := sessionCredentials{SessionKey: sessionKey, BlueToken: blueToken, RedToken: redToken}
	if s.publicBaseURL != "" {
		c.WatchURL = s.publicBaseURL + "/v1/sessions/" + sessionKey + "/stream"
	}
	return c
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.ownerMutationAllowed(w, ownerID) {
		return
	}

	var req createSessionRequest
	if !readJSONLimited(w, r, &req, 256*1024) {
		return
	}
	if !draft.ValidMode(req.Mode) {
		writeError(w, http.StatusBadRequest, "invalid-argument")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	// One open session per owner: creating again hands back the
	// existing identifiers and tokens instead of a second session.
	existing, err := scanSessionRow(s.db.QueryRow(ctx, `
		select`+sessionColumns+`
		from draft_sessions
		where owner_user_id = $1 and not is_complete
		order by last_activity_at desc
		limit 1
	`, ownerID))
	if err == nil {
		writeJSON(w, http.StatusOK, s.credentials(existing.SessionKey, existing.BlueToken, existing.RedToken))
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		logError(ctx, "open session lookup failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	now := time.Now().UTC()
	st := draft.NewState(req.Mode)
	if len(req.State) > 0 && string(req.State) != "null" {
		st = &draft.State{}
		if err := json.Unmarshal(req.State, st); err != nil {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
		if err := draft.ValidateShape(st); err != nil {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
	}
	draft.EnsureTimer(st, req.TimerEnabled, req.ReserveSeconds, now)

	featured, err := draft.ParseFeatured(req.Featured)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid-argument")
		return
	}

	var profileID *uuid.UUID
	if req.CostProfileID != nil && *req.CostProfileID != "" {
		id, ok := s.requireOwnPreset(ctx, w, ownerID, *req.CostProfileID)
		if !ok {
			return
		}
		profileID = &id
	}

	costLimit := draft.DefaultCostLimit(req.Mode)
	if req.CostLimit != nil {
		if *req.CostLimit < 0 {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
		costLimit = *req.CostLimit
	}
	penalty := draft.DefaultPenaltyPerPoint
	if req.PenaltyPerPoint != nil {
		if *req.PenaltyPerPoint < 0 {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
		penalty = *req.PenaltyPerPoint
	}

	sessionKey, err := keys.NewSessionKey()
	if err != nil {
		logError(ctx, "session key generation failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	blueToken, err := keys.NewSideToken()
	if err != nil {
		logError(ctx, "side token generation failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	redToken, err := keys.NewSideToken()
	if err != nil {
		logError(ctx, "side token generation failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	stateJSON, err := json.Marshal(st)
	if err != nil {
		logError(ctx, "state marshal failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	featuredJSON, err := json.Marshal(featured)
	if err != nil {
		logError(ctx, "featured marshal failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	if _, err := s.db.Exec(ctx, `
		insert into draft_sessions (
			session_key, owner_user_id, mode, team1, team2, state, featured,
			last_activity_at, blue_token, red_token, cost_profile_id,
			cost_limit, penalty_per_point
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, sessionKey, ownerID, req.Mode, strings.TrimSpace(req.Team1), strings.TrimSpace(req.Team2),
		stateJSON, featuredJSON, now, blueToken, redToken, profileID, costLimit, penalty); err != nil {
		logError(ctx, "session insert failed", err)
		writeError(w, http.StatusInternalServerError, "insert failed")
		return
	}

	writeJSON(w, http.StatusCreated, s.credentials(sessionKey, blueToken, redToken))
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "sessionKey")

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	sr, err := s.loadSession(ctx, sessionKey)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not-found")
		return
	}
	if err != nil {
		logError(ctx, "session load failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	now := time.Now().UTC()
	payload, err := s.shapeLoaded(ctx, sr, now)
	if err != nil {
		logError(ctx, "session shape failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	// Read-time view: the response clock runs forward, the row does not.
	draft.Burn(payload.State, now)
	writeJSON(w, http.StatusOK, payload)
}

type updateSessionRequest struct {
	State           json.RawMessage `json:"state"`
	IsComplete      *bool           `json:"isComplete"`
	Featured        json.RawMessage `json:"featured"`
	CostProfileID   json.RawMessage `json:"costProfileId"`
	CostLimit       *float64        `json:"costLimit"`
	PenaltyPerPoint *int            `json:"penaltyPerPoint"`
}

// handleUpdateSession is the owner's administrative path: the state
// document is written verbatim after shape validation, with no burn and
// no cursor bookkeeping. Owners use it to correct desynchronizations.
func (s *server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.ownerMutationAllowed(w, ownerID) {
		return
	}
	sessionKey := chi.URLParam(r, "sessionKey")

	var req updateSessionRequest
	if !readJSONLimited(w, r, &req, 256*1024) {
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
		logError(ctx, "session load failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if sr.OwnerUserID != ownerID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if sr.IsComplete {
		writeError(w, http.StatusConflict, draft.ErrDraftAlreadyComplete.Error())
		return
	}
	if req.IsComplete != nil && !*req.IsComplete {
		// Completion is monotonic.
		writeError(w, http.StatusBadRequest, "invalid-argument")
		return
	}

	now := time.Now().UTC()
	sets := []string{"last_activity_at = $1"}
	args := []any{now}
	argN := 2

	if len(req.State) > 0 && string(req.State) != "null" {
		st := &draft.State{}
		if err := json.Unmarshal(req.State, st); err != nil {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
		if err := draft.ValidateShape(st); err != nil {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
		// Missing timer fields are re-seeded; present ones persist as-is.
		draft.EnsureTimer(st, false, 0, now)
		stateJSON, err := json.Marshal(st)
		if err != nil {
			logError(ctx, "state marshal failed", err)
			writeError(w, http.StatusInternalServerError, "internal")
			return
		}
		sets = append(sets, "state = $"+strconv.Itoa(argN))
		args = append(args, stateJSON)
		argN++
	}

	if len(req.Featured) > 0 {
		featured, err := draft.ParseFeatured(req.Featured)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
		featuredJSON, err := json.Marshal(featured)
		if err != nil {
			logError(ctx, "featured marshal failed", err)
			writeError(w, http.StatusInternalServerError, "internal")
			return
		}
		sets = append(sets, "featured = $"+strconv.Itoa(argN))
		args = append(args, featuredJSON)
		argN++
	}

	if len(req.CostProfileID) > 0 {
		if string(req.CostProfileID) == "null" {
			sets = append(sets, "cost_profile_id = null")
		} else {
			var idStr string
			if err := json.Unmarshal(req.CostProfileID, &idStr); err != nil {
				writeError(w, http.StatusBadRequest, "invalid-argument")
				return
			}
			id, ok := s.requireOwnPreset(ctx, w, ownerID, idStr)
			if !ok {
				return
			}
			sets = append(sets, "cost_profile_id = $"+strconv.Itoa(argN))
			args = append(args, id)
			argN++
		}
	}

	if req.CostLimit != nil {
		if *req.CostLimit < 0 {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
		sets = append(sets, "cost_limit = $"+strconv.Itoa(argN))
		args = append(args, *req.CostLimit)
		argN++
	}
	if req.PenaltyPerPoint != nil {
		if *req.PenaltyPerPoint < 0 {
			writeError(w, http.StatusBadRequest, "invalid-argument")
			return
		}
		sets = append(sets, "penalty_per_point = $"+strconv.Itoa(argN))
		args = append(args, *req.PenaltyPerPoint)
		argN++
	}

	if req.IsComplete != nil && *req.IsComplete {
		sets = append(sets, "is_complete = true")
		// completed_at is written exactly once.
		sets = append(sets, "completed_at = coalesce(completed_at, $"+strconv.Itoa(argN)+")")
		args = append(args, now)
		argN++
	}

	args = append(args, sessionKey)
	if _, err := s.db.Exec(ctx, `
		update draft_sessions set `+strings.Join(sets, ", ")+`
		where session_key = $`+strconv.Itoa(argN), args...); err != nil {
		logError(ctx, "session update failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	updated, err := s.loadSession(ctx, sessionKey)
	if err != nil {
		logError(ctx, "session reload failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	payload, err := s.shapeLoaded(ctx, updated, now)
	if err != nil {
		logError(ctx, "session shape failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	s.hub.publish(sessionKey, payload)
	writeJSON(w, http.StatusOK, payload)
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.ownerMutationAllowed(w, ownerID) {
		return
	}
	sessionKey := chi.URLParam(r, "sessionKey")

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
		logError(ctx, "session load failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if sr.OwnerUserID != ownerID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if sr.IsComplete {
		// Completed drafts are part of the public record.
		writeError(w, http.StatusConflict, draft.ErrDraftAlreadyComplete.Error())
		return
	}

	if _, err := s.db.Exec(ctx, `delete from draft_sessions where session_key = $1`, sessionKey); err != nil {
		logError(ctx, "session delete failed", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	s.hub.remove(sessionKey)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *server) handleListRecent(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(intQuery(r, "limit", 20), 1, 50)
	offset := clampInt(intQuery(r, "offset", 0), 0, 50_000)

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		select`+sessionColumns+`
		from draft_sessions
		where is_complete
		order by completed_at desc
		limit $1 offset $2
	`, limit+1, offset)
	if err != nil {
		logError(ctx, "recent list failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeSessionList(ctx, w, rows, limit)
}

func (s *server) handleListLive(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(intQuery(r, "limit", 20), 1, 50)
	offset := clampInt(intQuery(r, "offset", 0), 0, 50_000)
	minutes := clampInt(intQuery(r, "minutes", s.liveWindowMinutes), 1, 1440)

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		select`+sessionColumns+`
		from draft_sessions
		where not is_complete
		  and last_activity_at > now() - make_interval(mins => $1)
		order by last_activity_at desc
		limit $2 offset $3
	`, minutes, limit+1, offset)
	if err != nil {
		logError(ctx, "live list failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeSessionList(ctx, w, rows, limit)
}

func (s *server) writeSessionList(ctx context.Context, w http.ResponseWriter, rows pgx.Rows, limit int) {
	defer rows.Close()
	now := time.Now().UTC()

	out := make([]*sessionPayload, 0, limit)
	hasMore := false
	for rows.Next() {
		sr, err := scanSessionRow(rows)
		if err != nil {
			logError(ctx, "session scan failed", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		if len(out) == limit {
			hasMore = true
			break
		}
		payload, err := shapeSession(sr, now, nil)
		if err != nil {
			logError(ctx, "session shape failed", err)
			writeError(w, http.StatusInternalServerError, "internal")
			return
		}
		out = append(out, payload)
	}
	if err := rows.Err(); err != nil {
		logError(ctx, "session list iterate failed", err)
		writeError(w, http.StatusInternalServerError, "iterate failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "hasMore": hasMore})
}

type resolveTokenRequest struct {
	PT string `json:"pt"`
}

func (s *server) handleResolveToken(w http.ResponseWriter, r *http.Request) {
	var req resolveTokenRequest
	if !readJSONLimited(w, r, &req, 4*1024) {
		return
	}
	if strings.TrimSpace(req.PT) == "" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	var blueToken, redToken string
	err := s.db.QueryRow(ctx, `
		select blue_token, red_token
		from draft_sessions
		where blue_token = $1 or red_token = $1
	`, req.PT).Scan(&blueToken, &redToken)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		logError(ctx, "token resolve failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	side, ok := sideForToken(req.PT, blueToken, redToken)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"side": string(side)})
}

func sideForToken(pt, blueToken, redToken string) (draft.Side, bool) {
	switch {
	case keys.Equal(pt, blueToken):
		return draft.SideBlue, true
	case keys.Equal(pt, redToken):
		return draft.SideRed, true
	default:
		return draft.SideNone, false
	}
}
