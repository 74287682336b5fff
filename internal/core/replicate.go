package core

import "time"

// ReplicaDates returns the forward series of monthly dates for a fixed
// (recurring) expense: one per month from the month after the base date
// through December of the same year. The series never wraps into the next
// year.
//
// Day-of-month policy: a base purchase on its month's last day pins every
// replica to that month's own last day; otherwise each replica uses the base
// day clamped to the replica month's length (31 Jan -> 28/29 Feb, 31 Mar...).
func ReplicaDates(base time.Time) []time.Time {
	base = dateOnly(base)
	year := base.Year()
	month := int(base.Month())
	day := base.Day()
	monthEnd := day == LastDayOfMonth(year, month)

	var out []time.Time
	for m := month + 1; m <= 12; m++ {
		last := LastDayOfMonth(year, m)
		d := day
		if monthEnd || d > last {
			d = last
		}
		out = append(out, time.Date(year, time.Month(m), d, 0, 0, 0, 0, time.UTC))
	}
	return out
}
