package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository"
	"github.com/kirinyoku/classgo/internal/service/conflict"
)

const (
	MinDuration = 30 * time.Minute
	MaxDuration = 180 * time.Minute

	maxSuggestions = 3
	// suggestPrefix is the fragment length used when a full-value match
	// yields no suggestion.
	suggestPrefix = 3
)

// Row is one line of a schedule import.
type Row struct {
	// Number is the 1-based line of the row in the source; 0 means the
	// position in the batch.
	Number               int  `json:"row,omitempty"`
	Class                Cell `json:"class"`
	InstructorDocument   Cell `json:"instructor_document"`
	Studio               Cell `json:"studio"`
	Date                 Cell `json:"date"`
	StartTime            Cell `json:"start_time"`
	EndTime              Cell `json:"end_time"`
	Capacity             Cell `json:"capacity"`
	BookingOpensAt       Cell `json:"booking_opens_at"`
	BookingClosesAt      Cell `json:"booking_closes_at"`
	CancellationDeadline Cell `json:"cancellation_deadline"`
	Holiday              Cell `json:"holiday"`
}

// RowResult is the outcome of ValidateRow. Session is nil when Err is set.
type RowResult struct {
	Row      int
	Session  *domain.ClassSession
	Err      error
	Warnings []string
}

// Validator turns raw rows into sessions ready to be persisted.
type Validator struct {
	catalog   Catalog
	conflicts ConflictChecker
	loc       *time.Location
	now       func() time.Time
}

func NewValidator(catalog Catalog, conflicts ConflictChecker, loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{
		catalog:   catalog,
		conflicts: conflicts,
		loc:       loc,
		now:       time.Now,
	}
}

func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// ValidateRow runs parse, reference resolution, business rules and conflict
// detection for one row. The first failing stage ends the pipeline. accepted
// holds the sessions already accepted earlier in the same batch; they take
// part in conflict detection.
func (v *Validator) ValidateRow(ctx context.Context, row Row, accepted []domain.ClassSession) RowResult {
	res := RowResult{Row: row.Number}

	p, err := v.parse(row)
	if err != nil {
		res.Err = err
		return res
	}

	refs, err := v.resolve(ctx, row)
	if err != nil {
		res.Err = err
		return res
	}

	sess := domain.ClassSession{
		ClassID:              refs.class.ID,
		InstructorID:         refs.instructor.ID,
		StudioID:             refs.studio.ID,
		Date:                 p.date,
		StartsAt:             at(p.date, p.start),
		EndsAt:               at(p.date, p.end),
		MaxCapacity:          p.capacity,
		BookingOpensAt:       p.opens,
		BookingClosesAt:      p.closes,
		CancellationDeadline: p.deadline,
		IsHoliday:            p.holiday,
		Status:               domain.SessionScheduled,
	}

	warnings, err := v.rules(ctx, sess, refs)
	res.Warnings = warnings
	if err != nil {
		res.Err = err
		return res
	}

	if err := v.conflicts.Check(ctx, sess); err != nil {
		res.Err = err
		return res
	}
	if cerr := conflict.FindConflict(sess, accepted); cerr != nil {
		res.Err = cerr
		return res
	}

	res.Session = &sess
	return res
}

type parsedRow struct {
	date     time.Time
	start    time.Duration
	end      time.Duration
	capacity int
	opens    *time.Time
	closes   *time.Time
	deadline *time.Time
	holiday  bool
}

func (v *Validator) parse(row Row) (parsedRow, error) {
	var (
		p   parsedRow
		err error
	)

	if p.date, err = ParseDate("date", row.Date, v.loc); err != nil {
		return p, err
	}
	if p.start, err = ParseClock("start_time", row.StartTime); err != nil {
		return p, err
	}
	if p.end, err = ParseClock("end_time", row.EndTime); err != nil {
		return p, err
	}
	if p.capacity, err = ParseCapacity("capacity", row.Capacity); err != nil {
		return p, err
	}
	if p.opens, err = ParseOptionalDateTime("booking_opens_at", row.BookingOpensAt, v.loc); err != nil {
		return p, err
	}
	if p.closes, err = ParseOptionalDateTime("booking_closes_at", row.BookingClosesAt, v.loc); err != nil {
		return p, err
	}
	if p.deadline, err = ParseOptionalDateTime("cancellation_deadline", row.CancellationDeadline, v.loc); err != nil {
		return p, err
	}
	p.holiday = ParseFlag(row.Holiday)

	return p, nil
}

type references struct {
	class      *domain.Class
	instructor *domain.Instructor
	studio     *domain.Studio
}

func (v *Validator) resolve(ctx context.Context, row Row) (references, error) {
	var refs references

	name := row.Class.String()
	if row.Class.Blank() {
		return refs, &ValidationError{Field: "class", Reason: "is required"}
	}
	class, err := v.catalog.ClassByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return refs, &ReferenceNotFoundError{Kind: "class", Value: name}
		}
		return refs, err
	}
	refs.class = class

	doc := row.InstructorDocument.String()
	if row.InstructorDocument.Blank() {
		return refs, &ValidationError{Field: "instructor_document", Reason: "is required"}
	}
	instructor, err := v.catalog.InstructorByDocument(ctx, doc)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return refs, &ReferenceNotFoundError{
				Kind:        "instructor",
				Value:       doc,
				Suggestions: v.suggest(ctx, doc, v.catalog.SuggestInstructors),
			}
		}
		return refs, err
	}
	refs.instructor = instructor

	studioName := row.Studio.String()
	if row.Studio.Blank() {
		return refs, &ValidationError{Field: "studio", Reason: "is required"}
	}
	studio, err := v.catalog.StudioByName(ctx, studioName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return refs, &ReferenceNotFoundError{
				Kind:        "studio",
				Value:       studioName,
				Suggestions: v.suggest(ctx, studioName, v.catalog.SuggestStudios),
			}
		}
		return refs, err
	}
	refs.studio = studio

	return refs, nil
}

// suggest looks for values containing the whole input first and falls back
// to its first characters. Lookup failures only cost the suggestions.
func (v *Validator) suggest(
	ctx context.Context,
	value string,
	lookup func(ctx context.Context, fragment string, limit int) ([]string, error),
) []string {
	out, err := lookup(ctx, value, maxSuggestions)
	if err == nil && len(out) > 0 {
		return out
	}

	r := []rune(value)
	if len(r) <= suggestPrefix {
		return nil
	}
	out, err = lookup(ctx, string(r[:suggestPrefix]), maxSuggestions)
	if err != nil {
		return nil
	}
	return out
}

func (v *Validator) rules(ctx context.Context, s domain.ClassSession, refs references) ([]string, error) {
	var warnings []string

	today := midnight(v.now().In(v.loc))
	if s.Date.Before(today) {
		return warnings, ruleErr("past_date", "date %s is in the past", s.Date.Format("2006-01-02"))
	}

	if !s.EndsAt.After(s.StartsAt) {
		return warnings, ruleErr("end_before_start",
			"end time %s must be after start time %s",
			s.EndsAt.Format("15:04"), s.StartsAt.Format("15:04"))
	}

	d := s.Duration()
	if d < MinDuration {
		return warnings, ruleErr("min_duration",
			"duration of %d minutes is less than the %d minute minimum",
			int(d.Minutes()), int(MinDuration.Minutes()))
	}
	if d > MaxDuration {
		warnings = append(warnings, fmt.Sprintf(
			"duration of %d minutes exceeds %d minutes", int(d.Minutes()), int(MaxDuration.Minutes())))
	}

	if s.BookingOpensAt != nil && s.BookingClosesAt != nil && !s.BookingClosesAt.After(*s.BookingOpensAt) {
		return warnings, ruleErr("booking_window", "booking closes at or before it opens")
	}
	if s.BookingClosesAt != nil && !s.BookingClosesAt.Before(s.StartsAt) {
		warnings = append(warnings, "booking closes at or after the session start")
	}
	if s.CancellationDeadline != nil && !s.CancellationDeadline.Before(s.StartsAt) {
		warnings = append(warnings, "cancellation deadline is at or after the session start")
	}

	if !refs.instructor.Active {
		return warnings, ruleErr("inactive_instructor", "instructor %s is inactive", refs.instructor.DocumentNumber)
	}
	if !refs.studio.Active {
		return warnings, ruleErr("inactive_studio", "studio %s is inactive", refs.studio.Name)
	}

	certified, err := v.catalog.InstructorCertified(ctx, refs.instructor.ID, refs.class.DisciplineID)
	if err != nil {
		return warnings, err
	}
	if !certified {
		warnings = append(warnings, fmt.Sprintf(
			"instructor %s is not certified for class %s", refs.instructor.DocumentNumber, refs.class.Name))
	}

	seats, err := v.catalog.CountActiveSeats(ctx, refs.studio.ID)
	if err != nil {
		return warnings, err
	}
	if s.MaxCapacity > seats {
		warnings = append(warnings, fmt.Sprintf(
			"capacity %d exceeds the %d active seats of studio %s", s.MaxCapacity, seats, refs.studio.Name))
	}

	return warnings, nil
}
