package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	doc := "Class, Instructor Document, Studio, Date, Start Time, End Time, Capacity, Holiday\n" +
		"Yoga,012345,Sala A,15/06/2030,09:00,09:45,20,\n" +
		"\n" +
		"\"Yoga\",12345678,\"Sala A\",47649,0.4166666666666667,0.4583333333333333,12,1\n"

	rows, err := ReadCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, 2, first.Number)
	assert.Equal(t, Text("012345"), first.InstructorDocument)
	assert.Equal(t, Text("15/06/2030"), first.Date)
	assert.Equal(t, Number(20), first.Capacity)
	assert.True(t, first.BookingOpensAt.Blank())
	assert.False(t, ParseFlag(first.Holiday))

	second := rows[1]
	assert.Equal(t, 4, second.Number)
	assert.Equal(t, Number(47649), second.Date)
	assert.True(t, second.StartTime.Numeric)
	assert.True(t, ParseFlag(second.Holiday))
}

func TestReadCSVMissingColumns(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("class,studio,date\nYoga,Sala A,15/06/2030\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instructor_document")
	assert.Contains(t, err.Error(), "capacity")

	_, err = ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadCSVFeedsImport(t *testing.T) {
	f := newFixture(t)

	doc := "class,instructor,studio,date,start,end,capacity\n" +
		"Yoga,12345678,Sala A,2030-06-15,09:00,09:45,20\n" +
		"Yoga,12345678,Sala A,2030-06-15,10:00,10:20,20\n"

	rows, err := ReadCSV(strings.NewReader(doc))
	require.NoError(t, err)

	report, err := f.importer.Import(context.Background(), rows, Options{})
	require.ErrorIs(t, err, ErrRowsRejected)
	require.Len(t, report.Errors, 1)
	assert.True(t, strings.HasPrefix(report.Errors[0], "ROW 3: duration of 20 minutes"), report.Errors[0])
}

func TestReadCSVRejectsOutOfRangeNumbers(t *testing.T) {
	f := newFixture(t)

	doc := "class,instructor,studio,date,start,end,capacity\n" +
		"Yoga,12345678,Sala A,2030-06-15,NaN,Inf,20\n" +
		"Yoga,12345678,Sala A,1e9,09:00,09:45,20\n"

	rows, err := ReadCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Text("NaN"), rows[0].StartTime)
	assert.Equal(t, Number(1e9), rows[1].Date)

	report, err := f.importer.Import(context.Background(), rows, Options{})
	require.ErrorIs(t, err, ErrRowsRejected)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, `ROW 2: start_time "NaN": expected H:i or H:i:s`, report.Errors[0])
	assert.Equal(t, `ROW 3: date "1000000000": is not a date serial`, report.Errors[1])
	assert.Empty(t, f.sessions(t))
}
