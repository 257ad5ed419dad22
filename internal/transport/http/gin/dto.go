package httpgin

import (
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/service/importer"
)

type ReserveRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
	TTLSec int   `json:"ttl_sec" binding:"gte=0"`
}

type ConfirmRequest struct {
	// Final is "occupied" (default) or "completed".
	Final string `json:"final" binding:"omitempty,oneof=occupied completed"`
}

type JoinWaitlistRequest struct {
	UserID    int64  `json:"user_id" binding:"required,gt=0"`
	PackageID *int64 `json:"package_id"`
}

type LayoutRequest struct {
	Rows       int    `json:"rows" binding:"required,gt=0"`
	Columns    int    `json:"columns" binding:"required,gt=0"`
	Capacity   int    `json:"capacity" binding:"gte=0"`
	Addressing string `json:"addressing" binding:"omitempty,oneof=row_major column_major"`
}

func (r LayoutRequest) toDomain() domain.Layout {
	return domain.Layout{
		Rows:       r.Rows,
		Columns:    r.Columns,
		Capacity:   r.Capacity,
		Addressing: domain.AddressingMode(r.Addressing),
	}
}

type SetSeatActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type ImportRequest struct {
	Rows []importer.Row `json:"rows" binding:"required,min=1"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Suggestions lists close matches when a referenced value is unknown.
	Suggestions []string `json:"suggestions,omitempty"`
}

type UpdateLayoutResponse struct {
	Regenerated        bool  `json:"regenerated"`
	Seats              int64 `json:"seats"`
	OrphansPurged      int64 `json:"orphans_purged"`
	SessionsUpdated    int   `json:"sessions_updated"`
	AssignmentsCreated int64 `json:"assignments_created"`
}

type CreatedResponse struct {
	Created int64 `json:"created"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
