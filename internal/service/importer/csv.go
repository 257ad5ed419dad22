package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var headerAliases = map[string]string{
	"class":                 "class",
	"class_name":            "class",
	"instructor":            "instructor_document",
	"instructor_document":   "instructor_document",
	"document_number":       "instructor_document",
	"studio":                "studio",
	"studio_name":           "studio",
	"date":                  "date",
	"start":                 "start_time",
	"start_time":            "start_time",
	"end":                   "end_time",
	"end_time":              "end_time",
	"capacity":              "capacity",
	"max_capacity":          "capacity",
	"booking_opens_at":      "booking_opens_at",
	"booking_closes_at":     "booking_closes_at",
	"cancellation_deadline": "cancellation_deadline",
	"holiday":               "holiday",
	"is_holiday":            "holiday",
}

var requiredColumns = []string{
	"class", "instructor_document", "studio", "date", "start_time", "end_time", "capacity",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.Fields(h), "_")
}

// cell turns numeric text into a numeric cell, as a spreadsheet export
// would have it. NaN and infinities stay text.
func cell(raw string) Cell {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Cell{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Number(f)
	}
	return Text(s)
}

// ReadCSV maps a CSV document with a header line onto rows. Rows are numbered
// by the line they start on, so the first data row is row 2. Reference
// columns stay text; other numeric cells become numbers.
func ReadCSV(r io.Reader) ([]Row, error) {
	const op = "importer.ReadCSV"

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty document", op)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	index := map[string]int{}
	for i, h := range header {
		if field, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing columns %s", op, strings.Join(missing, ", "))
	}

	var rows []Row

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if blankRecord(rec) {
			continue
		}

		raw := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		get := func(field string) Cell {
			return cell(raw(field))
		}

		line, _ := cr.FieldPos(0)

		rows = append(rows, Row{
			Number:               line,
			Class:                Text(raw("class")),
			InstructorDocument:   Text(raw("instructor_document")),
			Studio:               Text(raw("studio")),
			Date:                 get("date"),
			StartTime:            get("start_time"),
			EndTime:              get("end_time"),
			Capacity:             get("capacity"),
			BookingOpensAt:       get("booking_opens_at"),
			BookingClosesAt:      get("booking_closes_at"),
			CancellationDeadline: get("cancellation_deadline"),
			Holiday:              get("holiday"),
		})
	}

	return rows, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
