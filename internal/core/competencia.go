package core

import (
	"fmt"
	"time"
)

// DefaultCloseDaysBefore is used when a card has no closing window stored.
const DefaultCloseDaysBefore = 10

// Competencia identifies the billing period a credit-card charge belongs to.
// It is derived from the card's closing date, not from the purchase's
// calendar month.
type Competencia struct {
	Mes int
	Ano int
}

func (c Competencia) String() string {
	return fmt.Sprintf("%02d/%d", c.Mes, c.Ano)
}

// clampDueDay keeps due dates constructible in every month. Cards configured
// with due day 29-31 are treated as due on the 28th.
func clampDueDay(dueDay int) int {
	if dueDay > 28 {
		return 28
	}
	if dueDay < 1 {
		return 1
	}
	return dueDay
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CalculateCompetencia maps a purchase date plus the card's billing config to
// the billing period the charge accrues in.
//
// The cycle due on nextDue closes closeDaysBefore days earlier; a purchase on
// or after the closing date already belongs to nextDue's period, anything
// earlier belongs to the period before it.
func CalculateCompetencia(purchase time.Time, dueDay, closeDaysBefore int) Competencia {
	if closeDaysBefore <= 0 {
		closeDaysBefore = DefaultCloseDaysBefore
	}
	day := clampDueDay(dueDay)
	purchase = dateOnly(purchase)

	thisMonthDue := time.Date(purchase.Year(), purchase.Month(), day, 0, 0, 0, 0, time.UTC)
	nextDue := thisMonthDue
	if purchase.After(thisMonthDue) {
		nextDue = thisMonthDue.AddDate(0, 1, 0)
	}

	closeDate := nextDue.AddDate(0, 0, -closeDaysBefore)
	if !purchase.Before(closeDate) {
		return Competencia{Mes: int(nextDue.Month()), Ano: nextDue.Year()}
	}
	prev := nextDue.AddDate(0, -1, 0)
	return Competencia{Mes: int(prev.Month()), Ano: prev.Year()}
}

// DueDate returns the invoice due date of a competência.
func DueDate(c Competencia, dueDay int) time.Time {
	return time.Date(c.Ano, time.Month(c.Mes), clampDueDay(dueDay), 0, 0, 0, 0, time.UTC)
}

// CloseDate returns the date the competência's invoice closes.
func CloseDate(c Competencia, dueDay, closeDaysBefore int) time.Time {
	if closeDaysBefore <= 0 {
		closeDaysBefore = DefaultCloseDaysBefore
	}
	return DueDate(c, dueDay).AddDate(0, 0, -closeDaysBefore)
}

// CurrentCompetencia returns the competência whose due date is the soonest
// one on or after now, falling back to next month when this month's due date
// already passed. Used when an invoice payment omits mes/ano.
func CurrentCompetencia(now time.Time, dueDay int) Competencia {
	now = dateOnly(now)
	due := time.Date(now.Year(), now.Month(), clampDueDay(dueDay), 0, 0, 0, 0, time.UTC)
	if now.After(due) {
		due = due.AddDate(0, 1, 0)
	}
	return Competencia{Mes: int(due.Month()), Ano: due.Year()}
}

// AddMonthsClamped advances t by months whole months, clamping the day to the
// target month's length (Jan 31 + 1 month = Feb 28/29). time.AddDate is not
// used because it overflows short months instead of clamping.
func AddMonthsClamped(t time.Time, months int) time.Time {
	t = dateOnly(t)
	year := t.Year()
	month := int(t.Month()) + months
	year += (month - 1) / 12
	month = (month-1)%12 + 1
	if month < 1 {
		month += 12
		year--
	}
	day := t.Day()
	if last := LastDayOfMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// LastDayOfMonth returns the number of days in (year, month).
func LastDayOfMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
