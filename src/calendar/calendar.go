// Package calendar holds the date arithmetic behind hold expiry display and
// the monthly anniversary notifications. Everything here is pure: no clocks,
// no storage, callers pass in whatever "now" they are working against.
package calendar

import "time"

type AnniversaryStatus string

const (
	// ANNIVERSARY_ENDED means the booking window is already over.
	ANNIVERSARY_ENDED AnniversaryStatus = "ended"
	// ANNIVERSARY_FIRST_PENDING means the first full month since the booking
	// started has not elapsed yet.
	ANNIVERSARY_FIRST_PENDING AnniversaryStatus = "first_pending"
	ANNIVERSARY_DUE_TODAY     AnniversaryStatus = "due_today"
	ANNIVERSARY_SCHEDULED     AnniversaryStatus = "scheduled"
)

type Anniversary struct {
	Date   time.Time
	Status AnniversaryStatus
}

func DaysInMonth(month time.Month, year int) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDayToMonth reduces a day-of-month to the last valid day of the given
// month. A booking anchored on the 31st keeps a valid anniversary in 30-day
// and 28/29-day months.
func ClampDayToMonth(day int, month time.Month, year int) int {
	if max := DaysInMonth(month, year); day > max {
		return max
	}
	return day
}

func monthsBetween(start, now time.Time) int {
	return (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HasOneFullMonthPassed reports whether at least one calendar month has
// elapsed between start and now, anchored on start's day-of-month rather than
// a naive 30-day count. The anchor day clamps in shorter months, so a booking
// started January 31st completes its first month on February 28th (or 29th).
func HasOneFullMonthPassed(start, now time.Time) bool {
	diff := monthsBetween(start, now)
	if diff > 1 {
		return true
	}
	if diff < 1 {
		return false
	}
	return now.UTC().Day() >= ClampDayToMonth(start.UTC().Day(), now.UTC().Month(), now.UTC().Year())
}

// anchorInMonth resolves the anchor day inside an arbitrary month offset from
// base. Month arithmetic is explicit on year/month pairs; time.AddDate would
// normalize Jan 31 + 1 month into March and drift the schedule.
func anchorInMonth(anchor int, base time.Time, offset int) time.Time {
	y := base.UTC().Year()
	m := int(base.UTC().Month()) + offset
	y += (m - 1) / 12
	m = (m-1)%12 + 1
	month := time.Month(m)
	return time.Date(y, month, ClampDayToMonth(anchor, month, y), 0, 0, 0, 0, time.UTC)
}

// NextAnniversary computes when the next monthly check-in for a booking
// should fire, relative to now. The anchor day is the booking's start
// day-of-month, clamped per month, so anniversaries land on the last day of
// shorter months and return to the true anchor afterwards with no drift.
func NextAnniversary(start, end, now time.Time) Anniversary {
	today := dateOnly(now)
	if today.After(dateOnly(end)) {
		return Anniversary{Status: ANNIVERSARY_ENDED}
	}
	anchor := start.UTC().Day()
	if !HasOneFullMonthPassed(start, now) {
		return Anniversary{
			Date:   anchorInMonth(anchor, start, 1),
			Status: ANNIVERSARY_FIRST_PENDING,
		}
	}
	candidate := anchorInMonth(anchor, now, 0)
	if candidate.Equal(today) {
		return Anniversary{Date: candidate, Status: ANNIVERSARY_DUE_TODAY}
	}
	if candidate.Before(today) {
		return Anniversary{
			Date:   anchorInMonth(anchor, now, 1),
			Status: ANNIVERSARY_SCHEDULED,
		}
	}
	return Anniversary{Date: candidate, Status: ANNIVERSARY_SCHEDULED}
}

// SameDay reports whether a and b fall on the same calendar day in UTC.
func SameDay(a, b time.Time) bool {
	return dateOnly(a).Equal(dateOnly(b))
}
