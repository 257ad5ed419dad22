package importer

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/service/conflict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRowAcceptsWellFormedRow(t *testing.T) {
	f := newFixture(t)

	res := f.validator.ValidateRow(context.Background(), validRow(), nil)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.Session)

	s := res.Session
	assert.Equal(t, 45*time.Minute, s.Duration())
	assert.Equal(t, time.Date(2030, 6, 15, 9, 0, 0, 0, time.UTC), s.StartsAt)
	assert.Equal(t, time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC), s.Date)
	assert.Equal(t, f.classID, s.ClassID)
	assert.Equal(t, f.instructorID, s.InstructorID)
	assert.Equal(t, f.studioID, s.StudioID)
	assert.Equal(t, 20, s.MaxCapacity)
	assert.Equal(t, domain.SessionScheduled, s.Status)
}

func TestValidateRowSpreadsheetSerials(t *testing.T) {
	f := newFixture(t)

	row := validRow()
	row.Date = Number(47649)
	row.StartTime = Number(0.375)
	row.EndTime = Number(0.40625)

	res := f.validator.ValidateRow(context.Background(), row, nil)
	require.NoError(t, res.Err)
	assert.Equal(t, 45*time.Minute, res.Session.Duration())
}

func TestValidateRowRejectsShortDuration(t *testing.T) {
	f := newFixture(t)

	row := validRow()
	row.EndTime = Text("09:20")

	res := f.validator.ValidateRow(context.Background(), row, nil)
	require.ErrorIs(t, res.Err, ErrBusinessRule)
	assert.Nil(t, res.Session)

	var rerr *BusinessRuleError
	require.ErrorAs(t, res.Err, &rerr)
	assert.Equal(t, "min_duration", rerr.Rule)
	assert.Contains(t, rerr.Error(), "less than the 30 minute minimum")
}

func TestValidateRowUnknownStudioSuggests(t *testing.T) {
	f := newFixture(t)

	row := validRow()
	row.Studio = Text("Sala Z")

	res := f.validator.ValidateRow(context.Background(), row, nil)
	require.ErrorIs(t, res.Err, ErrReferenceNotFound)

	var rerr *ReferenceNotFoundError
	require.ErrorAs(t, res.Err, &rerr)
	assert.Equal(t, "studio", rerr.Kind)
	assert.NotEmpty(t, rerr.Suggestions)
	assert.LessOrEqual(t, len(rerr.Suggestions), 3)
	assert.Contains(t, rerr.Suggestions, "Sala A")
	assert.Contains(t, rerr.Error(), "did you mean")
}

func TestValidateRowUnknownInstructorSuggests(t *testing.T) {
	f := newFixture(t)

	row := validRow()
	row.InstructorDocument = Text("1234")

	res := f.validator.ValidateRow(context.Background(), row, nil)

	var rerr *ReferenceNotFoundError
	require.ErrorAs(t, res.Err, &rerr)
	assert.Equal(t, []string{"12345678"}, rerr.Suggestions)
}

func TestValidateRowUnknownClass(t *testing.T) {
	f := newFixture(t)

	row := validRow()
	row.Class = Text("Boxing")

	res := f.validator.ValidateRow(context.Background(), row, nil)
	assert.ErrorIs(t, res.Err, ErrReferenceNotFound)
}

func TestValidateRowBusinessRules(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Row)
		rule string
	}{
		{"past date", func(r *Row) { r.Date = Text("31/05/2030") }, "past_date"},
		{"end before start", func(r *Row) { r.EndTime = Text("08:00") }, "end_before_start"},
		{"end equals start", func(r *Row) { r.EndTime = Text("09:00") }, "end_before_start"},
		{"booking window", func(r *Row) {
			r.BookingOpensAt = Text("2030-06-14 10:00")
			r.BookingClosesAt = Text("2030-06-14 09:00")
		}, "booking_window"},
		{"inactive instructor", func(r *Row) { r.InstructorDocument = Text("87654321") }, "inactive_instructor"},
		{"inactive studio", func(r *Row) { r.Studio = Text("Sala Cerrada") }, "inactive_studio"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			row := validRow()
			c.edit(&row)

			res := f.validator.ValidateRow(context.Background(), row, nil)

			var rerr *BusinessRuleError
			require.ErrorAs(t, res.Err, &rerr)
			assert.Equal(t, c.rule, rerr.Rule)
		})
	}
}

func TestValidateRowWarnings(t *testing.T) {
	f := newFixture(t)

	row := validRow()
	row.Class = Text("Pilates")
	row.EndTime = Text("12:30")
	row.Capacity = Number(25)
	row.BookingClosesAt = Text("2030-06-15 09:00")
	row.CancellationDeadline = Text("2030-06-15 10:00")

	res := f.validator.ValidateRow(context.Background(), row, nil)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Session)

	assert.Len(t, res.Warnings, 5)
	assert.Contains(t, res.Warnings[0], "210 minutes")
}

func TestValidateRowMalformedCell(t *testing.T) {
	f := newFixture(t)

	row := validRow()
	row.Capacity = Text("lots")

	res := f.validator.ValidateRow(context.Background(), row, nil)

	var verr *ValidationError
	require.ErrorAs(t, res.Err, &verr)
	assert.Equal(t, "capacity", verr.Field)
}

func TestValidateRowConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.validator.ValidateRow(ctx, validRow(), nil)
	require.NoError(t, first.Err)

	overlapping := validRow()
	overlapping.StartTime = Text("09:30")
	overlapping.EndTime = Text("10:30")

	res := f.validator.ValidateRow(ctx, overlapping, []domain.ClassSession{*first.Session})
	require.ErrorIs(t, res.Err, conflict.ErrScheduleConflict)

	_, err := f.store.CreateSession(ctx, first.Session)
	require.NoError(t, err)

	res = f.validator.ValidateRow(ctx, overlapping, nil)
	require.ErrorIs(t, res.Err, conflict.ErrScheduleConflict)

	adjacent := validRow()
	adjacent.StartTime = Text("09:45")
	adjacent.EndTime = Text("10:30")
	res = f.validator.ValidateRow(ctx, adjacent, nil)
	assert.NoError(t, res.Err)
}
