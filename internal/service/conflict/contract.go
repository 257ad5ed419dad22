package conflict

import (
	"context"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
)

type Sessions interface {
	ActiveSessionsOn(
		ctx context.Context,
		date time.Time,
		instructorID, studioID, excludeID int64,
	) ([]domain.ClassSession, error)
}
