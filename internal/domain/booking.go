package domain

import (
	"fmt"
	"time"
)

// DateFormat is the wire format for booking dates. Bookings carry a
// calendar date with no time-of-day component.
const DateFormat = "2006-01-02"

type Booking struct {
	ID            int64     `json:"id"`
	Date          time.Time `json:"date"`
	Desk          int       `json:"desk"`
	OwnerIdentity string    `json:"owner_identity"`
	CreatedAt     time.Time `json:"created_at"`
}

func (b *Booking) IsOwner(identity string) bool {
	return b.OwnerIdentity == identity
}

func (b *Booking) DateString() string {
	return b.Date.Format(DateFormat)
}

// ParseDate parses a YYYY-MM-DD date string and truncates it to midnight
// UTC. Returns ErrInvalidDate on anything else.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a valid date (expected YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return d, nil
}

// Today returns the given instant truncated to a calendar date in UTC, the
// granularity bookings are compared at.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WorkingDays returns the next n calendar dates starting at now, skipping
// Saturdays and Sundays when excludeWeekends is set.
func WorkingDays(now time.Time, n int, excludeWeekends bool) []time.Time {
	dates := make([]time.Time, 0, n)
	d := Today(now)
	for len(dates) < n {
		if excludeWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			d = d.AddDate(0, 0, 1)
			continue
		}
		dates = append(dates, d)
		d = d.AddDate(0, 0, 1)
	}
	return dates
}
