package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/metrics"
	postgres "github.com/kirinyoku/classgo/internal/repository/postgres"
	redis "github.com/kirinyoku/classgo/internal/repository/redis"
	"github.com/kirinyoku/classgo/internal/service/conflict"
	"github.com/kirinyoku/classgo/internal/service/importer"
	"github.com/kirinyoku/classgo/internal/service/inventory"
	"github.com/kirinyoku/classgo/internal/service/ledger"
	"github.com/kirinyoku/classgo/internal/service/query"
	"github.com/kirinyoku/classgo/internal/service/reaper"
	"github.com/kirinyoku/classgo/internal/service/waitlist"
)

type Services struct {
	Ledger    *ledger.Service
	Inventory *inventory.Service
	Conflicts *conflict.Service
	Importer  *importer.Importer
	Reaper    *reaper.Service
	Waitlist  *waitlist.Service
	Query     *query.Service
}

type Config struct {
	Ledger   ledger.Config
	Waitlist waitlist.Config
	Query    query.Config
	// ReaperBatch is the number of expired reservations listed per batch.
	ReaperBatch int
	// ImportLocation is the time zone of imported dates and times.
	ImportLocation *time.Location
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev domain.SeatEvent)
}

// NewServices wires every service on top of the Postgres store. cache and
// pubsub may be nil when Redis is not configured.
func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.SessionsPubSub,
	events EventDispatcher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Services {
	sessions := store.Sessions()
	assignments := store.Assignments()
	entries := store.Waitlist()

	led := ledger.New(store, sessions, assignments, entries, events, cfg.Ledger).
		WithMetrics(m)

	conflicts := conflict.New(sessions)

	validator := importer.NewValidator(store.Catalog(), conflicts, cfg.ImportLocation)

	wl := waitlist.New(store, sessions, entries, assignments, led, events, cfg.Waitlist, logger).
		WithMetrics(m)
	led.OnSeatFreed(wl.HandleSeatFreed)

	var subscriber query.Subscriber
	if pubsub != nil {
		subscriber = pubsub
	}

	return &Services{
		Ledger:    led,
		Inventory: inventory.New(store, store.Studios(), sessions, assignments, events),
		Conflicts: conflicts,
		Importer: importer.New(store, validator, sessions, assignments, events, logger).
			WithMetrics(m),
		Reaper: reaper.New(assignments, led, cfg.ReaperBatch, logger).
			WithMetrics(m),
		Waitlist: wl,
		Query:    query.New(sessions, assignments, cache, subscriber, cfg.Query),
	}
}
