package domain

type AddressingMode string

const (
	AddressingRowMajor    AddressingMode = "row_major"
	AddressingColumnMajor AddressingMode = "column_major"
)

func (m AddressingMode) Valid() bool {
	switch m {
	case AddressingRowMajor, AddressingColumnMajor:
		return true
	}
	return false
}

// Layout describes how a studio's seat grid is generated. Capacity caps the
// number of generated seats; zero means Rows*Columns.
type Layout struct {
	Rows       int            `json:"rows"`
	Columns    int            `json:"columns"`
	Capacity   int            `json:"capacity"`
	Addressing AddressingMode `json:"addressing"`
}

// Equal compares every field that drives seat generation.
func (l Layout) Equal(o Layout) bool {
	return l.Rows == o.Rows &&
		l.Columns == o.Columns &&
		l.Capacity == o.Capacity &&
		l.Addressing == o.Addressing
}

// SeatCount is the number of seats BuildSeatGrid produces for l.
func (l Layout) SeatCount() int {
	if l.Rows <= 0 || l.Columns <= 0 {
		return 0
	}
	n := l.Rows * l.Columns
	if l.Capacity > 0 && l.Capacity < n {
		return l.Capacity
	}
	return n
}

// seatNumber maps a 1-based (row, column) to the printed seat number.
func (l Layout) seatNumber(row, col int) int {
	switch l.Addressing {
	case AddressingColumnMajor:
		return (col-1)*l.Rows + row
	case AddressingRowMajor:
		return (row-1)*l.Columns + col
	}
	return (row-1)*l.Columns + col
}

// BuildSeatGrid enumerates seats row by row, column by column, stopping once
// the layout capacity is reached. The result is deterministic for a layout.
func BuildSeatGrid(studioID int64, l Layout) []Seat {
	total := l.SeatCount()
	if total == 0 {
		return nil
	}

	seats := make([]Seat, 0, total)
	for r := 1; r <= l.Rows; r++ {
		for c := 1; c <= l.Columns; c++ {
			if len(seats) == total {
				return seats
			}
			seats = append(seats, Seat{
				StudioID: studioID,
				Row:      r,
				Column:   c,
				Number:   l.seatNumber(r, c),
				Active:   true,
			})
		}
	}

	return seats
}
