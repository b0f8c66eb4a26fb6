package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 31, DaysInMonth(time.January, 2025))
	assert.Equal(t, 28, DaysInMonth(time.February, 2025))
	assert.Equal(t, 29, DaysInMonth(time.February, 2024))
	assert.Equal(t, 30, DaysInMonth(time.April, 2025))
	assert.Equal(t, 31, DaysInMonth(time.December, 2025))
}

func TestClampDayToMonth(t *testing.T) {
	assert.Equal(t, 28, ClampDayToMonth(31, time.February, 2025))
	assert.Equal(t, 29, ClampDayToMonth(31, time.February, 2024))
	assert.Equal(t, 30, ClampDayToMonth(31, time.April, 2025))
	assert.Equal(t, 15, ClampDayToMonth(15, time.February, 2025))
	assert.Equal(t, 1, ClampDayToMonth(1, time.February, 2025))
}

func TestHasOneFullMonthPassed(t *testing.T) {
	start := date(2025, time.January, 15)

	assert.False(t, HasOneFullMonthPassed(start, date(2025, time.January, 20)))
	assert.False(t, HasOneFullMonthPassed(start, date(2025, time.February, 14)))
	assert.True(t, HasOneFullMonthPassed(start, date(2025, time.February, 15)))
	assert.True(t, HasOneFullMonthPassed(start, date(2025, time.March, 1)))

	// anchor day 31 clamps against February
	jan31 := date(2025, time.January, 31)
	assert.False(t, HasOneFullMonthPassed(jan31, date(2025, time.February, 27)))
	assert.True(t, HasOneFullMonthPassed(jan31, date(2025, time.February, 28)))
	assert.True(t, HasOneFullMonthPassed(date(2023, time.January, 31), date(2024, time.February, 1)))
}

func TestNextAnniversaryEnded(t *testing.T) {
	start := date(2025, time.January, 15)
	end := date(2025, time.June, 15)
	got := NextAnniversary(start, end, date(2025, time.July, 1))
	assert.Equal(t, ANNIVERSARY_ENDED, got.Status)
}

func TestNextAnniversaryFirstPending(t *testing.T) {
	start := date(2025, time.January, 15)
	end := date(2026, time.January, 15)
	got := NextAnniversary(start, end, date(2025, time.February, 1))
	assert.Equal(t, ANNIVERSARY_FIRST_PENDING, got.Status)
	assert.Equal(t, date(2025, time.February, 15), got.Date)

	// first pending for a day-31 start clamps into February
	got = NextAnniversary(date(2025, time.January, 31), end, date(2025, time.February, 10))
	assert.Equal(t, ANNIVERSARY_FIRST_PENDING, got.Status)
	assert.Equal(t, date(2025, time.February, 28), got.Date)
}

func TestNextAnniversaryDueToday(t *testing.T) {
	start := date(2025, time.January, 15)
	end := date(2026, time.January, 15)
	got := NextAnniversary(start, end, date(2025, time.February, 15))
	assert.Equal(t, ANNIVERSARY_DUE_TODAY, got.Status)
	assert.Equal(t, date(2025, time.February, 15), got.Date)

	// clock component of now must not matter
	got = NextAnniversary(start, end, time.Date(2025, time.March, 15, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, ANNIVERSARY_DUE_TODAY, got.Status)
}

func TestNextAnniversaryRollsToNextMonth(t *testing.T) {
	start := date(2025, time.January, 15)
	end := date(2026, time.January, 15)
	got := NextAnniversary(start, end, date(2025, time.March, 20))
	assert.Equal(t, ANNIVERSARY_SCHEDULED, got.Status)
	assert.Equal(t, date(2025, time.April, 15), got.Date)

	got = NextAnniversary(start, end, date(2025, time.March, 10))
	assert.Equal(t, ANNIVERSARY_SCHEDULED, got.Status)
	assert.Equal(t, date(2025, time.March, 15), got.Date)
}

func TestNextAnniversaryDay31NoDrift(t *testing.T) {
	start := date(2025, time.January, 31)
	end := date(2026, time.January, 31)

	// April anniversary lands on the 30th
	got := NextAnniversary(start, end, date(2025, time.April, 10))
	assert.Equal(t, ANNIVERSARY_SCHEDULED, got.Status)
	assert.Equal(t, date(2025, time.April, 30), got.Date)

	got = NextAnniversary(start, end, date(2025, time.April, 30))
	assert.Equal(t, ANNIVERSARY_DUE_TODAY, got.Status)

	// May returns to the true anchor, no drift accumulated
	got = NextAnniversary(start, end, date(2025, time.May, 1))
	assert.Equal(t, ANNIVERSARY_SCHEDULED, got.Status)
	assert.Equal(t, date(2025, time.May, 31), got.Date)

	// February of a leap year clamps to the 29th
	got = NextAnniversary(start, date(2026, time.December, 31), date(2026, time.February, 1))
	assert.Equal(t, date(2026, time.February, 28), got.Date)
	got = NextAnniversary(date(2023, time.October, 31), date(2024, time.December, 31), date(2024, time.February, 1))
	assert.Equal(t, date(2024, time.February, 29), got.Date)
}

func TestNextAnniversaryRollPastShortMonth(t *testing.T) {
	// after the clamped February date passed, March rolls back to the 31st
	start := date(2025, time.January, 31)
	end := date(2026, time.January, 31)
	got := NextAnniversary(start, end, date(2025, time.March, 1))
	assert.Equal(t, ANNIVERSARY_SCHEDULED, got.Status)
	assert.Equal(t, date(2025, time.March, 31), got.Date)
}

func TestSameDay(t *testing.T) {
	assert.True(t, SameDay(
		time.Date(2025, time.February, 15, 1, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 15, 23, 59, 0, 0, time.UTC),
	))
	assert.False(t, SameDay(date(2025, time.February, 15), date(2025, time.February, 16)))
}
