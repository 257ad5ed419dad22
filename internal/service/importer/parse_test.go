package importer

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC)

	for _, c := range []Cell{
		Text("15/06/2030"),
		Text("2030-06-15"),
		Text("15-06-2030"),
		Text("2030-06-15 00:00:00"),
		Text("2030-06-15T00:00:00"),
		Text("2030-06-15T09:00:00Z"),
		Number(47649),
		Number(47649.5),
	} {
		got, err := ParseDate("date", c, time.UTC)
		require.NoError(t, err, c.String())
		assert.Equal(t, want, got, c.String())
	}
}

func TestParseDateRejects(t *testing.T) {
	for _, c := range []Cell{
		Text(""),
		Text("June 15th"),
		Text("2030/06/15"),
		Text("2030-06-15 2030-06-16"),
		Number(0),
		Number(math.NaN()),
		Number(math.Inf(1)),
		Number(1e9),
	} {
		_, err := ParseDate("date", c, time.UTC)
		assert.ErrorIs(t, err, ErrValidation, c.String())
	}

	_, err := ParseDate("date", Text("2030-06-15 2030-06-15"), time.UTC)
	assert.NoError(t, err)
}

func TestParseDateUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)

	got, err := ParseDate("date", Number(47649), loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 15, 0, 0, 0, 0, loc), got)
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   Cell
		want time.Duration
	}{
		{Text("09:00"), 9 * time.Hour},
		{Text("9:45"), 9*time.Hour + 45*time.Minute},
		{Text("18:30:15"), 18*time.Hour + 30*time.Minute + 15*time.Second},
		{Text("2030-06-15 07:15:00"), 7*time.Hour + 15*time.Minute},
		{Text("2030-06-15T07:15:00Z"), 7*time.Hour + 15*time.Minute},
		{Number(0.375), 9 * time.Hour},
		{Number(0.3958333333333333), 9*time.Hour + 30*time.Minute},
		{Number(47649.40625), 9*time.Hour + 45*time.Minute},
		{Number(0.3755), 9 * time.Hour},
	}

	for _, c := range cases {
		got, err := ParseClock("start_time", c.in)
		require.NoError(t, err, c.in.String())
		assert.Equal(t, c.want, got, c.in.String())
	}

	_, err := ParseClock("start_time", Text("nine"))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ParseClock("start_time", Cell{})
	assert.ErrorIs(t, err, ErrValidation)

	for _, c := range []Cell{Number(math.NaN()), Number(math.Inf(1)), Number(math.Inf(-1)), Number(1e9)} {
		_, err := ParseClock("start_time", c)
		assert.ErrorIs(t, err, ErrValidation, c.String())
	}
}

func TestParseOptionalDateTime(t *testing.T) {
	got, err := ParseOptionalDateTime("booking_opens_at", Text("  "), time.UTC)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseOptionalDateTime("booking_opens_at", Text("14/06/2030"), time.UTC)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2030, 6, 14, 8, 0, 0, 0, time.UTC), *got)

	got, err = ParseOptionalDateTime("booking_opens_at", Text("2030-06-14 18:30"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 14, 18, 30, 0, 0, time.UTC), *got)

	got, err = ParseOptionalDateTime("booking_opens_at", Number(47648.75), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 14, 18, 0, 0, 0, time.UTC), *got)

	got, err = ParseOptionalDateTime("booking_opens_at", Number(47648), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 6, 14, 8, 0, 0, 0, time.UTC), *got)

	got, err = ParseOptionalDateTime("booking_opens_at", Text("2030-06-14T18:30:00Z"), time.UTC)
	require.NoError(t, err)
	assert.True(t, time.Date(2030, 6, 14, 18, 30, 0, 0, time.UTC).Equal(*got))

	_, err = ParseOptionalDateTime("booking_opens_at", Text("soon"), time.UTC)
	assert.ErrorIs(t, err, ErrValidation)

	for _, c := range []Cell{Number(math.NaN()), Number(math.Inf(1)), Number(1e9)} {
		_, err := ParseOptionalDateTime("booking_opens_at", c, time.UTC)
		assert.ErrorIs(t, err, ErrValidation, c.String())
	}
}

func TestParseCapacity(t *testing.T) {
	n, err := ParseCapacity("capacity", Number(20))
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = ParseCapacity("capacity", Text(" 12 "))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	for _, c := range []Cell{Number(0), Number(-3), Number(2.5), Text("many"), {}} {
		_, err := ParseCapacity("capacity", c)
		assert.ErrorIs(t, err, ErrValidation, c.String())
	}
}

func TestParseFlag(t *testing.T) {
	assert.True(t, ParseFlag(Number(1)))
	assert.True(t, ParseFlag(Text("Yes")))
	assert.True(t, ParseFlag(Text("sí")))
	assert.False(t, ParseFlag(Text("")))
	assert.False(t, ParseFlag(Number(0)))
	assert.False(t, ParseFlag(Text("no")))
}

func TestCellJSON(t *testing.T) {
	var row Row
	require.NoError(t, json.Unmarshal([]byte(`{
		"class": "Yoga",
		"date": 47649,
		"start_time": "09:00",
		"capacity": 20,
		"booking_opens_at": null,
		"holiday": true
	}`), &row))

	assert.Equal(t, Text("Yoga"), row.Class)
	assert.Equal(t, Number(47649), row.Date)
	assert.Equal(t, Text("09:00"), row.StartTime)
	assert.True(t, row.BookingOpensAt.Blank())
	assert.True(t, ParseFlag(row.Holiday))

	out, err := json.Marshal(row.Date)
	require.NoError(t, err)
	assert.JSONEq(t, `47649`, string(out))
}
