package discovery

import "time"

// usEasternLocation loads America/New_York, the timezone the signed-
// header venue's ticker naming is anchored to. Returns time.UTC if the
// tzdata database isn't available in the runtime environment (e.g. a
// scratch container); ToEastern below computes Eastern time from
// isEasternDST without the IANA database.
func usEasternLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// isEasternDST reports whether t (interpreted in UTC) falls within US
// Eastern daylight saving time: from 2:00 AM on the second Sunday of
// March to 2:00 AM on the first Sunday of November.
func isEasternDST(t time.Time) bool {
	t = t.UTC()
	year := t.Year()

	dstStart := nthSundayOfMonth(year, time.March, 2).Add(7 * time.Hour)    // 2AM EST == 7AM UTC
	dstEnd := nthSundayOfMonth(year, time.November, 1).Add(6 * time.Hour) // 2AM EDT == 6AM UTC

	return !t.Before(dstStart) && t.Before(dstEnd)
}

// nthSundayOfMonth returns midnight UTC on the n-th Sunday of the given
// month/year (n=1 is the first Sunday, n=2 the second).
func nthSundayOfMonth(year int, month time.Month, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (7 - int(first.Weekday())) % 7
	firstSunday := first.AddDate(0, 0, offset)
	return firstSunday.AddDate(0, 0, 7*(n-1))
}

// EasternOffset returns the current UTC offset for US Eastern time
// (-4h during daylight saving, -5h standard) without depending on
// tzdata being installed, used when constructing deterministic venue
// ticker strings that embed an Eastern-local date/time component.
func EasternOffset(t time.Time) time.Duration {
	if isEasternDST(t) {
		return -4 * time.Hour
	}
	return -5 * time.Hour
}

// ToEastern converts t to its US Eastern wall-clock time using the
// manual DST calculation, independent of the IANA database.
// TickerResolver uses it to build ticker strings.
func ToEastern(t time.Time) time.Time {
	return t.UTC().Add(EasternOffset(t))
}
