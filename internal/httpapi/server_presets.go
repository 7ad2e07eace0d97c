package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const maxPresetsPerOwner = 2

type presetRequest struct {
	Name          string               `json:"name"`
	CharCost      map[string][]float64 `json:"charCost"`
	AccessoryCost map[string][]float64 `json:"accessoryCost"`
}

type presetResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	CharCost      map[string][]float64 `json:"charCost"`
	AccessoryCost map[string][]float64 `json:"accessoryCost"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// validatePreset enforces the vector shapes: seven cost entries per
// character (eidolon 0..6), five per accessory (superimpose 1..5), all
// non-negative.
func validatePreset(req *presetRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 40 {
		return "invalid-argument"
	}
	for code, costs := range req.CharCost {
		if code == "" || len(costs) != 7 {
			return "invalid-argument"
		}
		for _, c := range costs {
			if c < 0 {
				return "invalid-argument"
			}
		}
	}
	for id, costs := range req.AccessoryCost {
		if id == "" || len(costs) != 5 {
			return "invalid-argument"
		}
		for _, c := range costs {
			if c < 0 {
				return "invalid-argument"
			}
		}
	}
	return ""
}

func (s *server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		select id, name, char_ms, we_phase, created_at, updated_at
		from cost_presets
		where owner_user_id = $1
		order by created_at
	`, ownerID)
	if err != nil {
		logError(ctx, "preset list failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	out := make([]presetResponse, 0, maxPresetsPerOwner)
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			logError(ctx, "preset scan failed", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		logError(ctx, "preset list iterate failed", err)
		writeError(w, http.StatusInternalServerError, "iterate failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": out})
}

func scanPreset(row pgx.Row) (presetResponse, error) {
	var (
		p        presetResponse
		id       uuid.UUID
		charCost []byte
		accCost  []byte
	)
	if err := row.Scan(&id, &p.Name, &charCost, &accCost, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.ID = id.String()
	if err := json.Unmarshal(charCost, &p.CharCost); err != nil {
		return p, err
	}
	if err := json.Unmarshal(accCost, &p.AccessoryCost); err != nil {
		return p, err
	}
	return p, nil
}

func (s *server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.ownerMutationAllowed(w, ownerID) {
		return
	}

	var req presetRequest
	if !readJSONLimited(w, r, &req, 512*1024) {
		return
	}
	if msg := validatePreset(&req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	var count int
	if err := s.db.QueryRow(ctx, `
		select count(*) from cost_presets where owner_user_id = $1
	`, ownerID).Scan(&count); err != nil {
		logError(ctx, "preset count failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if count >= maxPresetsPerOwner {
		writeError(w, http.StatusConflict, "preset-limit-reached")
		return
	}

	charCost, accCost, err := marshalPresetCosts(req)
	if err != nil {
		logError(ctx, "preset marshal failed", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}

	p, err := scanPreset(s.db.QueryRow(ctx, `
		insert into cost_presets (owner_user_id, name, char_ms, we_phase)
		values ($1, $2, $3, $4)
		returning id, name, char_ms, we_phase, created_at, updated_at
	`, ownerID, req.Name, charCost, accCost))
	if err != nil {
		logError(ctx, "preset insert failed", err)
		writeError(w, http.StatusInternalServerError, "insert failed")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	id, ok := s.requireOwnPreset(ctx, w, ownerID, chi.URLParam(r, "presetID"))
	if !ok {
		return
	}
	p, err := scanPreset(s.db.QueryRow(ctx, `
		select id, name, char_ms, we_phase, created_at, updated_at
		from cost_presets
		where id = $1
	`, id))
	if err != nil {
		logError(ctx, "preset read failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// presetPatch carries a partial update: absent fields keep their stored
// value.
type presetPatch struct {
	Name          *string              `json:"name"`
	CharCost      map[string][]float64 `json:"charCost"`
	AccessoryCost map[string][]float64 `json:"accessoryCost"`
}

func (s *server) handleUpdatePreset(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.ownerMutationAllowed(w, ownerID) {
		return
	}

	var patch presetPatch
	if !readJSONLimited(w, r, &patch, 512*1024) {
		return
	}
	check := presetRequest{Name: "placeholder", CharCost: patch.CharCost, AccessoryCost: patch.AccessoryCost}
	if patch.Name != nil {
		check.Name = *patch.Name
	}
	if msg := validatePreset(&check); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	id, ok := s.requireOwnPreset(ctx, w, ownerID, chi.URLParam(r, "presetID"))
	if !ok {
		return
	}

	sets := []string{"updated_at = now()"}
	args := []any{}
	argN := 1
	if patch.Name != nil {
		sets = append(sets, "name = $"+strconv.Itoa(argN))
		args = append(args, check.Name)
		argN++
	}
	if patch.CharCost != nil {
		b, err := json.Marshal(patch.CharCost)
		if err != nil {
			logError(ctx, "preset marshal failed", err)
			writeError(w, http.StatusInternalServerError, "internal")
			return
		}
		sets = append(sets, "char_ms = $"+strconv.Itoa(argN))
		args = append(args, b)
		argN++
	}
	if patch.AccessoryCost != nil {
		b, err := json.Marshal(patch.AccessoryCost)
		if err != nil {
			logError(ctx, "preset marshal failed", err)
			writeError(w, http.StatusInternalServerError, "internal")
			return
		}
		sets = append(sets, "we_phase = $"+strconv.Itoa(argN))
		args = append(args, b)
		argN++
	}

	args = append(args, id)
	p, err := scanPreset(s.db.QueryRow(ctx, `
		update cost_presets
		set `+strings.Join(sets, ", ")+`
		where id = $`+strconv.Itoa(argN)+`
		returning id, name, char_ms, we_phase, created_at, updated_at
	`, args...))
	if err != nil {
		logError(ctx, "preset update failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeletePreset removes a preset. Sessions referencing it keep
// running: the foreign key clears to null and they shape without a
// joined profile from then on.
func (s *server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.ownerMutationAllowed(w, ownerID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.actionDeadline)
	defer cancel()

	id, ok := s.requireOwnPreset(ctx, w, ownerID, chi.URLParam(r, "presetID"))
	if !ok {
		return
	}

	if _, err := s.db.Exec(ctx, `delete from cost_presets where id = $1`, id); err != nil {
		logError(ctx, "preset delete failed", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// requireOwnPreset parses a preset id and checks it belongs to the
// owner, writing the error response itself on failure.
func (s *server) requireOwnPreset(ctx context.Context, w http.ResponseWriter, ownerID, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid-argument")
		return uuid.UUID{}, false
	}
	var presetOwner string
	err = s.db.QueryRow(ctx, `
		select owner_user_id from cost_presets where id = $1
	`, id).Scan(&presetOwner)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not-found")
		return uuid.UUID{}, false
	}
	if err != nil {
		logError(ctx, "preset lookup failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return uuid.UUID{}, false
	}
	if presetOwner != ownerID {
		writeError(w, http.StatusForbidden, "forbidden")
		return uuid.UUID{}, false
	}
	return id, true
}

func marshalPresetCosts(req presetRequest) ([]byte, []byte, error) {
	if req.CharCost == nil {
		req.CharCost = map[string][]float64{}
	}
	if req.AccessoryCost == nil {
		req.AccessoryCost = map[string][]float64{}
	}
	charCost, err := json.Marshal(req.CharCost)
	if err != nil {
		return nil, nil, err
	}
	accCost, err := json.Marshal(req.AccessoryCost)
	if err != nil {
		return nil, nil, err
	}
	return charCost, accCost, nil
}
