package domain

import "time"

// ExtendedExpiry computes the expiry that results from granting
// durationDays on top of an existing expiry.
//
// A still-active expiry is extended cumulatively: unused time is
// preserved, not forfeited. A missing or lapsed expiry restarts the
// clock from now.
func ExtendedExpiry(current *time.Time, durationDays int, now time.Time) time.Time {
	if current != nil && current.After(now) {
		return current.AddDate(0, 0, durationDays)
	}
	return now.AddDate(0, 0, durationDays)
}
