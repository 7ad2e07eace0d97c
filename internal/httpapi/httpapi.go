package httpapi

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Deps struct {
	DB            *pgxpool.Pool
	Pepper        string
	PublicBaseURL string

	// ActionDeadline bounds every critical section that mutates a
	// session; expiry surfaces a retryable failure.
	ActionDeadline time.Duration

	// LiveWindowMinutes is the default window for the live listing.
	LiveWindowMinutes int
}
