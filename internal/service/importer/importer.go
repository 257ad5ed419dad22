package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/metrics"
	"github.com/kirinyoku/classgo/internal/service/conflict"
	"github.com/kirinyoku/classgo/internal/uow"
)

type Options struct {
	// DryRun validates every row without persisting anything.
	DryRun bool
}

// Report is the outcome of a whole batch. Errors and warnings are formatted
// as "ROW {n}: {message}" in row order.
type Report struct {
	Rows     int      `json:"rows"`
	Valid    int      `json:"valid"`
	Created  []int64  `json:"created"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	DryRun   bool     `json:"dry_run"`
}

func (r Report) Failed() bool {
	return len(r.Errors) > 0
}

type Importer struct {
	validator   *Validator
	conflicts   ConflictChecker
	sessions    Sessions
	assignments Assignments
	events      EventDispatcher
	uow         *uow.UoW
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func New(
	runner uow.TxRunner,
	validator *Validator,
	sessions Sessions,
	assignments Assignments,
	events EventDispatcher,
	log *slog.Logger,
) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{
		validator:   validator,
		conflicts:   validator.conflicts,
		sessions:    sessions,
		assignments: assignments,
		events:      events,
		uow:         uow.NewUoW(runner),
		log:         log,
	}
}

func (im *Importer) WithMetrics(m *metrics.Metrics) *Importer {
	im.metrics = m
	return im
}

var errCommitConflict = errors.New("conflict detected at commit")

type accepted struct {
	row     int
	session domain.ClassSession
}

// Import validates every row and persists the batch only when no row
// failed. Persisting takes advisory locks per (studio, date) and
// (instructor, date), re-checks conflicts inside the transaction, creates
// the sessions and generates their seat assignments.
//
// Parameters:
//   - ctx: request-scoped context.
//   - rows: rows in source order.
//   - opts: DryRun stops after validation.
//
// Returns:
//   - Report: per-row errors and warnings, and the created session IDs.
//   - error: ErrRowsRejected when any row failed, either during validation
//     or during the commit-time recheck.
func (im *Importer) Import(ctx context.Context, rows []Row, opts Options) (Report, error) {
	const op = "service.importer.Import"

	report := Report{Rows: len(rows), DryRun: opts.DryRun}

	var ok []accepted
	batch := make([]domain.ClassSession, 0, len(rows))

	for i, row := range rows {
		if row.Number == 0 {
			row.Number = i + 1
		}

		res := im.validator.ValidateRow(ctx, row, batch)
		for _, w := range res.Warnings {
			report.Warnings = append(report.Warnings, rowMessage(row.Number, w))
		}

		im.metrics.ImportRow(res.Err == nil)

		if res.Err != nil {
			report.Errors = append(report.Errors, rowMessage(row.Number, res.Err.Error()))
			continue
		}

		batch = append(batch, *res.Session)
		ok = append(ok, accepted{row: row.Number, session: *res.Session})
	}
	report.Valid = len(ok)

	if report.Failed() {
		im.log.Info("import rejected",
			slog.Int("rows", report.Rows),
			slog.Int("errors", len(report.Errors)),
		)
		return report, fmt.Errorf("%s:%w", op, ErrRowsRejected)
	}
	if opts.DryRun || len(ok) == 0 {
		return report, nil
	}

	created, rowErr, err := im.persist(ctx, ok)
	if err != nil {
		return report, fmt.Errorf("%s:%w", op, err)
	}
	if rowErr != "" {
		report.Errors = append(report.Errors, rowErr)
		return report, fmt.Errorf("%s:%w", op, ErrRowsRejected)
	}

	report.Created = created
	im.log.Info("import committed", slog.Int("sessions", len(created)))

	return report, nil
}

func (im *Importer) persist(ctx context.Context, rows []accepted) ([]int64, string, error) {
	var (
		created []int64
		rowErr  string
	)

	err := im.uow.Do(ctx, func(ctx context.Context, after func(uow.AfterCommit)) error {
		created = created[:0]
		rowErr = ""

		for _, key := range scheduleLockKeys(rows) {
			if err := im.sessions.LockSchedule(ctx, key); err != nil {
				return err
			}
		}

		for _, r := range rows {
			s := r.session

			if err := im.conflicts.Check(ctx, s); err != nil {
				if !errors.Is(err, conflict.ErrScheduleConflict) {
					return err
				}
				rowErr = rowMessage(r.row, err.Error())
				return errCommitConflict
			}

			id, err := im.sessions.CreateSession(ctx, &s)
			if err != nil {
				return err
			}
			if _, err := im.assignments.InitAssignments(ctx, id); err != nil {
				return err
			}
			if _, err := im.sessions.SyncCounters(ctx, id); err != nil {
				return err
			}

			created = append(created, id)

			sessionID, studioID := id, s.StudioID
			after(func(ctx context.Context) {
				im.events.Dispatch(ctx, domain.SeatEvent{
					Type:      domain.SeatEventSessionCreated,
					SessionID: sessionID,
					StudioID:  studioID,
				})
			})
		}

		return nil
	})
	if errors.Is(err, errCommitConflict) {
		return nil, rowErr, nil
	}
	if err != nil {
		return nil, "", err
	}

	return created, "", nil
}

// scheduleLockKeys returns the sorted distinct advisory lock keys of a batch
// so concurrent imports always lock in the same order.
func scheduleLockKeys(rows []accepted) []string {
	seen := map[string]bool{}
	var keys []string

	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	for _, r := range rows {
		day := r.session.Date.Format(time.DateOnly)
		add(fmt.Sprintf("studio:%d:%s", r.session.StudioID, day))
		add(fmt.Sprintf("instructor:%d:%s", r.session.InstructorID, day))
	}

	sort.Strings(keys)
	return keys
}

func rowMessage(n int, msg string) string {
	return fmt.Sprintf("ROW %d: %s", n, msg)
}
