package importer

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) sessions(t *testing.T) []domain.ClassSession {
	t.Helper()
	out, err := f.store.ListSessions(context.Background(), domain.SessionFilter{})
	require.NoError(t, err)
	return out
}

func TestImportPersistsSessionsWithAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := validRow()
	second.StartTime = Text("10:00")
	second.EndTime = Text("11:00")
	second.Capacity = Number(10)

	report, err := f.importer.Import(ctx, []Row{validRow(), second}, Options{})
	require.NoError(t, err)

	assert.False(t, report.Failed())
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 2, report.Valid)
	require.Len(t, report.Created, 2)

	sessions := f.sessions(t)
	require.Len(t, sessions, 2)
	assert.Equal(t, domain.SpotCounters{Available: 20}, sessions[0].Spots)
	assert.Equal(t, domain.SpotCounters{Available: 10}, sessions[1].Spots)

	views, err := f.store.ListAssignments(ctx, report.Created[0])
	require.NoError(t, err)
	assert.Len(t, views, 20)

	assert.Equal(t, 2, f.events.len())
}

func TestImportIsAllOrNothing(t *testing.T) {
	f := newFixture(t)

	bad := validRow()
	bad.StartTime = Text("11:00")
	bad.EndTime = Text("11:20")

	unknown := validRow()
	unknown.StartTime = Text("12:00")
	unknown.EndTime = Text("13:00")
	unknown.Studio = Text("Sala Z")

	report, err := f.importer.Import(context.Background(), []Row{validRow(), bad, unknown}, Options{})
	require.ErrorIs(t, err, ErrRowsRejected)

	assert.True(t, report.Failed())
	assert.Equal(t, 1, report.Valid)
	require.Len(t, report.Errors, 2)
	assert.True(t, strings.HasPrefix(report.Errors[0], "ROW 2: "), report.Errors[0])
	assert.True(t, strings.HasPrefix(report.Errors[1], "ROW 3: "), report.Errors[1])
	assert.Empty(t, report.Created)

	assert.Empty(t, f.sessions(t))
	assert.Zero(t, f.events.len())
}

func TestImportDetectsConflictsWithinBatch(t *testing.T) {
	f := newFixture(t)

	overlapping := validRow()
	overlapping.Number = 7
	overlapping.StartTime = Text("09:30")
	overlapping.EndTime = Text("10:30")

	report, err := f.importer.Import(context.Background(), []Row{validRow(), overlapping}, Options{})
	require.ErrorIs(t, err, ErrRowsRejected)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "ROW 7: instructor already booked")
	assert.Empty(t, f.sessions(t))
}

func TestImportDryRun(t *testing.T) {
	f := newFixture(t)

	report, err := f.importer.Import(context.Background(), []Row{validRow()}, Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Valid)
	assert.Empty(t, report.Created)
	assert.Empty(t, f.sessions(t))
}

func TestImportWarningsDoNotBlock(t *testing.T) {
	f := newFixture(t)

	row := validRow()
	row.Capacity = Number(30)

	report, err := f.importer.Import(context.Background(), []Row{row}, Options{})
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.True(t, strings.HasPrefix(report.Warnings[0], "ROW 1: capacity 30 exceeds"))
	assert.Len(t, report.Created, 1)
}

func TestScheduleLockKeysAreSortedAndDistinct(t *testing.T) {
	f := newFixture(t)

	res := f.validator.ValidateRow(context.Background(), validRow(), nil)
	require.NoError(t, res.Err)

	s := *res.Session
	keys := scheduleLockKeys([]accepted{{row: 1, session: s}, {row: 2, session: s}})

	assert.Equal(t, []string{
		"instructor:" + strconv.FormatInt(s.InstructorID, 10) + ":2030-06-15",
		"studio:" + strconv.FormatInt(s.StudioID, 10) + ":2030-06-15",
	}, keys)
}
