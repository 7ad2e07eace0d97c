package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"draftroom/internal/draft"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// sessionRow mirrors one draft_sessions row. Side tokens stay here and
// never enter a shaped payload; only create returns them.
type sessionRow struct {
	SessionKey      string
	OwnerUserID     string
	Mode            string
	Team1           string
	Team2           string
	State           []byte
	Featured        []byte
	IsComplete      bool
	CompletedAt     *time.Time
	LastActivityAt  time.Time
	BlueToken       string
	RedToken        string
	CostProfileID   *uuid.UUID
	CostLimit       float64
	PenaltyPerPoint int
}

const sessionColumns = `
	session_key, owner_user_id, mode, team1, team2, state, featured,
	is_complete, completed_at, last_activity_at, blue_token, red_token,
	cost_profile_id, cost_limit, penalty_per_point`

func scanSessionRow(row pgx.Row) (sessionRow, error) {
	var sr sessionRow
	err := row.Scan(
		&sr.SessionKey, &sr.OwnerUserID, &sr.Mode, &sr.Team1, &sr.Team2,
		&sr.State, &sr.Featured, &sr.IsComplete, &sr.CompletedAt,
		&sr.LastActivityAt, &sr.BlueToken, &sr.RedToken,
		&sr.CostProfileID, &sr.CostLimit, &sr.PenaltyPerPoint,
	)
	return sr, err
}

func (s *server) loadSession(ctx context.Context, sessionKey string) (sessionRow, error) {
	return scanSessionRow(s.db.QueryRow(ctx, `
		select`+sessionColumns+`
		from draft_sessions
		where session_key = $1
	`, sessionKey))
}

// sessionPayload is the shaped row that travels on the wire: opaque
// camelCase keys, numeric costLimit, defaulted penaltyPerPoint, and the
// joined cost profile when one is referenced.
type sessionPayload struct {
	SessionKey      string               `json:"sessionKey"`
	OwnerID         string               `json:"ownerId"`
	Mode            string               `json:"mode"`
	Team1           string               `json:"team1"`
	Team2           string               `json:"team2"`
	State           *draft.State         `json:"state"`
	Featured        []draft.FeaturedRule `json:"featured"`
	IsComplete      bool                 `json:"isComplete"`
	CompletedAt     *time.Time           `json:"completedAt,omitempty"`
	LastActivityAt  time.Time            `json:"lastActivityAt"`
	CostProfileID   *string              `json:"costProfileId"`
	CostLimit       float64              `json:"costLimit"`
	PenaltyPerPoint int                  `json:"penaltyPerPoint"`
	CostProfile     *costProfilePayload  `json:"costProfile,omitempty"`
}

type costProfilePayload struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	CharCost      map[string][]float64 `json:"charCost"`
	AccessoryCost map[string][]float64 `json:"accessoryCost"`
}

// shapeSession normalizes a row for transport. Slot alias normalization
// happens inside the state document's own marshalling and is idempotent.
func shapeSession(sr sessionRow, now time.Time, profile *costProfilePayload) (*sessionPayload, error) {
	st := &draft.State{}
	if err := json.Unmarshal(sr.State, st); err != nil {
		return nil, err
	}
	// Legacy rows may predate the timer fields.
	draft.EnsureTimer(st, false, 0, now)

	featured, err := draft.ParseFeatured(sr.Featured)
	if err != nil {
		return nil, err
	}
	if featured == nil {
		featured = []draft.FeaturedRule{}
	}

	penalty := sr.PenaltyPerPoint
	if penalty == 0 {
		penalty = draft.DefaultPenaltyPerPoint
	}

	var profileID *string
	if sr.CostProfileID != nil {
		id := sr.CostProfileID.String()
		profileID = &id
	}

	return &sessionPayload{
		SessionKey:      sr.SessionKey,
		OwnerID:         sr.OwnerUserID,
		Mode:            sr.Mode,
		Team1:           sr.Team1,
		Team2:           sr.Team2,
		State:           st,
		Featured:        featured,
		IsComplete:      sr.IsComplete,
		CompletedAt:     sr.CompletedAt,
		LastActivityAt:  sr.LastActivityAt,
		CostProfileID:   profileID,
		CostLimit:       sr.CostLimit,
		PenaltyPerPoint: penalty,
		CostProfile:     profile,
	}, nil
}

// fetchCostProfile joins the referenced preset for shaping. A vanished
// preset (FK cleared concurrently) shapes as absent.
func (s *server) fetchCostProfile(ctx context.Context, id *uuid.UUID) (*costProfilePayload, error) {
	if id == nil {
		return nil, nil
	}
	var (
		name      string
		charCost  []byte
		accCost   []byte
		profileID uuid.UUID
	)
	err := s.db.QueryRow(ctx, `
		select id, name, char_ms, we_phase
		from cost_presets
		where id = $1
	`, *id).Scan(&profileID, &name, &charCost, &accCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := &costProfilePayload{
		ID:            profileID.String(),
		Name:          name,
		CharCost:      map[string][]float64{},
		AccessoryCost: map[string][]float64{},
	}
	if err := json.Unmarshal(charCost, &out.CharCost); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(accCost, &out.AccessoryCost); err != nil {
		return nil, err
	}
	return out, nil
}

// shapeLoaded is the common load+join+shape path for read handlers.
func (s *server) shapeLoaded(ctx context.Context, sr sessionRow, now time.Time) (*sessionPayload, error) {
	profile, err := s.fetchCostProfile(ctx, sr.CostProfileID)
	if err != nil {
		return nil, err
	}
	return shapeSession(sr, now, profile)
}
