package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Days between the spreadsheet epoch (1899-12-30) and the Unix epoch.
const serialEpochOffset = 25569

const secondsPerDay = 86400

// maxSerial is 9999-12-31, the last day a spreadsheet can represent.
const maxSerial = 2958465

// Cell is a raw tabular value. Spreadsheet exports hand dates and times over
// as numbers, everything else as text.
type Cell struct {
	Text    string
	Number  float64
	Numeric bool
}

func Text(s string) Cell {
	return Cell{Text: s}
}

func Number(f float64) Cell {
	return Cell{Number: f, Numeric: true}
}

func (c Cell) Blank() bool {
	return !c.Numeric && strings.TrimSpace(c.Text) == ""
}

func (c Cell) String() string {
	if c.Numeric {
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	}
	return c.Text
}

// UnmarshalJSON accepts numbers, strings, booleans and null.
func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Cell{}
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*c = Text(string(data))
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("cell: %w", err)
	}
	*c = Number(f)
	return nil
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if c.Numeric {
		return json.Marshal(c.Number)
	}
	return json.Marshal(c.Text)
}

var (
	dateLayouts = []string{"2/1/2006", "2006-1-2", "2-1-2006"}

	clockLayouts = []string{"15:04", "15:04:05", "15:04:05Z07:00"}

	dateTimeLayouts = []string{
		"2006-1-2 15:04:05",
		"2006-1-2 15:04",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2/1/2006 15:04:05",
		"2/1/2006 15:04",
		"2-1-2006 15:04:05",
		"2-1-2006 15:04",
	}

	isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// serialToTime converts a spreadsheet serial (days since 1899-12-30 with the
// time of day as fraction) into the same wall clock in loc. The fraction is
// rounded to the second.
func serialToTime(serial float64, loc *time.Location) time.Time {
	secs := int64(math.Round((serial - serialEpochOffset) * secondsPerDay))
	u := time.Unix(secs, 0).UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, loc)
}

// serialInRange reports whether f is a finite serial before the end of
// 9999-12-31.
func serialInRange(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f < maxSerial+1
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate accepts a spreadsheet serial or one of d/m/Y, Y-m-d and d-m-Y.
// The result is midnight in loc.
func ParseDate(field string, c Cell, loc *time.Location) (time.Time, error) {
	if c.Blank() {
		return time.Time{}, &ValidationError{Field: field, Reason: "is required"}
	}

	if c.Numeric {
		if !serialInRange(c.Number) || c.Number < 1 {
			return time.Time{}, &ValidationError{Field: field, Value: c.String(), Reason: "is not a date serial"}
		}
		return midnight(serialToTime(c.Number, loc)), nil
	}

	raw := strings.TrimSpace(c.Text)

	if found := isoDate.FindAllString(raw, -1); len(found) > 1 {
		for _, d := range found[1:] {
			if d != found[0] {
				return time.Time{}, &ValidationError{
					Field:  field,
					Value:  raw,
					Reason: "contains two different dates",
				}
			}
		}
	}

	candidates := []string{raw}
	if i := strings.IndexAny(raw, " T"); i > 0 {
		candidates = append(candidates, raw[:i])
	}

	for _, s := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, nil
			}
		}
	}

	return time.Time{}, &ValidationError{
		Field:  field,
		Value:  raw,
		Reason: "expected d/m/Y, Y-m-d or d-m-Y",
	}
}

// ParseClock returns the time of day of a cell as an offset from midnight.
// Fractions of a day and full datetime serials keep only the time of day,
// truncated to the minute.
func ParseClock(field string, c Cell) (time.Duration, error) {
	if c.Blank() {
		return 0, &ValidationError{Field: field, Reason: "is required"}
	}

	if c.Numeric {
		if !serialInRange(c.Number) || c.Number < 0 {
			return 0, &ValidationError{Field: field, Value: c.String(), Reason: "is not a time of day"}
		}
		_, frac := math.Modf(c.Number)
		secs := int64(math.Round(frac * secondsPerDay))
		secs -= secs % 60
		return time.Duration(secs%secondsPerDay) * time.Second, nil
	}

	raw := strings.TrimSpace(c.Text)

	candidates := []string{raw}
	if i := strings.LastIndexAny(raw, " T"); i >= 0 {
		candidates = append(candidates, raw[i+1:])
	}

	for _, s := range candidates {
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return time.Duration(t.Hour())*time.Hour +
					time.Duration(t.Minute())*time.Minute +
					time.Duration(t.Second())*time.Second, nil
			}
		}
	}

	return 0, &ValidationError{Field: field, Value: raw, Reason: "expected H:i or H:i:s"}
}

// defaultClock is applied to optional datetimes given as a bare date.
const defaultClock = 8 * time.Hour

// ParseOptionalDateTime returns nil for a blank cell. A bare date is placed
// at 08:00:00.
func ParseOptionalDateTime(field string, c Cell, loc *time.Location) (*time.Time, error) {
	if c.Blank() {
		return nil, nil
	}

	if c.Numeric {
		if !serialInRange(c.Number) || c.Number < 1 {
			return nil, &ValidationError{Field: field, Value: c.String(), Reason: "is not a datetime serial"}
		}
		t := serialToTime(c.Number, loc)
		if _, frac := math.Modf(c.Number); frac == 0 {
			t = t.Add(defaultClock)
		}
		return &t, nil
	}

	raw := strings.TrimSpace(c.Text)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t, nil
		}
	}

	d, err := ParseDate(field, c, loc)
	if err != nil {
		return nil, &ValidationError{Field: field, Value: raw, Reason: "expected a date or a date and time"}
	}
	t := d.Add(defaultClock)
	return &t, nil
}

func ParseCapacity(field string, c Cell) (int, error) {
	if c.Blank() {
		return 0, &ValidationError{Field: field, Reason: "is required"}
	}

	var n float64
	if c.Numeric {
		n = c.Number
	} else {
		v, err := strconv.ParseFloat(strings.TrimSpace(c.Text), 64)
		if err != nil {
			return 0, &ValidationError{Field: field, Value: c.Text, Reason: "must be a positive integer"}
		}
		n = v
	}

	if n <= 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, &ValidationError{Field: field, Value: c.String(), Reason: "must be a positive integer"}
	}
	return int(n), nil
}

func ParseFlag(c Cell) bool {
	if c.Numeric {
		return c.Number != 0
	}
	switch strings.ToLower(strings.TrimSpace(c.Text)) {
	case "1", "true", "yes", "y", "x", "si", "sí":
		return true
	}
	return false
}

// at combines a calendar date with a time-of-day offset.
func at(date time.Time, clock time.Duration) time.Time {
	h := int(clock / time.Hour)
	m := int(clock % time.Hour / time.Minute)
	s := int(clock % time.Minute / time.Second)
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, s, 0, date.Location())
}
