package domain

// DeriveSpots computes the session counters from the number of held seats
// and waiting users. Waiting users claim free spots ahead of new bookings, so
// available+booked+waitlist always equals maxCapacity.
func DeriveSpots(maxCapacity, held, waiting int) SpotCounters {
	if maxCapacity < 0 {
		maxCapacity = 0
	}

	booked := clamp(held, 0, maxCapacity)
	waitlist := clamp(waiting, 0, maxCapacity-booked)

	return SpotCounters{
		Available: maxCapacity - booked - waitlist,
		Booked:    booked,
		Waitlist:  waitlist,
	}
}

// SellableCapacity caps maxCapacity by the assignments a user can hold: the
// held ones plus the available ones still bound to a seat. A session sized
// above its studio's seats is full once every seat is held.
func SellableCapacity(maxCapacity, held, openSeats int) int {
	return min(maxCapacity, held+openSeats)
}

// Consistent reports whether the counters respect the session capacity.
func (c SpotCounters) Consistent(maxCapacity int) bool {
	if c.Available < 0 || c.Booked < 0 || c.Waitlist < 0 {
		return false
	}
	return c.Available+c.Booked+c.Waitlist <= maxCapacity
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
