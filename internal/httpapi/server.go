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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type server struct {
	db            *pgxpool.Pool
	pepper        string
	publicBaseURL string

	actionDeadline    time.Duration
	liveWindowMinutes int

	hub   *hub
	locks *lockTable

	actionLimiter *keyedRateLimiter
	ownerLimiter  *keyedRateLimiter
}

type ctxKey string

const ctxOwnerID ctxKey = "owner_id"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logErrorNoCtx("writeJSON encode failed", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func readJSONLimited(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := readJSON(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ownerAuthMiddleware resolves the bearer key to an owner id. Identity
// provisioning happens elsewhere; this service only checks possession.
func (s *server) ownerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := bearerToken(r)
		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		hash := keys.HashAPIKey(s.pepper, apiKey)

		var ownerID string
		err := s.db.QueryRow(r.Context(), `
			select owner_id
			from owner_api_keys
			where key_hash = $1 and revoked_at is null
		`, hash).Scan(&ownerID)
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err != nil {
			logError(r.Context(), "owner auth lookup failed", err)
			writeError(w, http.StatusInternalServerError, "auth lookup failed")
			return
		}

		ctx := context.WithValue(r.Context(), ctxOwnerID, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxOwnerID).(string)
	return id, ok && id != ""
}

// ownerMutationAllowed applies the per-owner write bucket. Reads and
// streams never pass through here.
func (s *server) ownerMutationAllowed(w http.ResponseWriter, ownerID string) bool {
	if !s.ownerLimiter.allow("own:" + ownerID) {
		writeError(w, http.StatusTooManyRequests, "rate-limited")
		return false
	}
	return true
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// rejectionStatus maps the reducer taxonomy to transport codes. The
// short strings travel verbatim.
func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, draft.ErrInvalidArgument):
		return http.StatusBadRequest
	case draft.IsRejection(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
