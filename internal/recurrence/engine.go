// Package recurrence computes future calendar occurrences for recurring
// schedules. The engine is pure: no I/O, no shared state, safe to call
// concurrently. Dates are calendar days; no timezone conversion happens here.
package recurrence

import (
	"fmt"

	"tally/internal/core"
)

// Rule describes how a schedule repeats. Interval means "every N units" and
// must be at least 1. The optional day fields constrain where within the
// computed period the occurrence lands.
type Rule struct {
	Frequency   core.Frequency
	Interval    int
	DayOfWeek   *int // 0 (Sunday) - 6 (Saturday), weekly only
	DayOfMonth  *int // 1-31, monthly and yearly
	MonthOfYear *int // 1-12, yearly only
}

// RuleFor extracts the recurrence rule of a schedule.
func RuleFor(s core.RecurringSchedule) Rule {
	return Rule{
		Frequency:   s.Frequency,
		Interval:    s.Interval,
		DayOfWeek:   s.DayOfWeek,
		DayOfMonth:  s.DayOfMonth,
		MonthOfYear: s.MonthOfYear,
	}
}

// Validate rejects rules the engine is not defined for. An interval below 1
// is an invalid rule, not a fallback to 1.
func (r Rule) Validate() error {
	switch r.Frequency {
	case core.Daily, core.Weekly, core.Monthly, core.Yearly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", core.ErrInvalidRecurrenceRule, r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", core.ErrInvalidRecurrenceRule, r.Interval)
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < 0 || *r.DayOfWeek > 6) {
		return fmt.Errorf("%w: day of week must be 0-6, got %d", core.ErrInvalidRecurrenceRule, *r.DayOfWeek)
	}
	if r.DayOfMonth != nil && (*r.DayOfMonth < 1 || *r.DayOfMonth > 31) {
		return fmt.Errorf("%w: day of month must be 1-31, got %d", core.ErrInvalidRecurrenceRule, *r.DayOfMonth)
	}
	if r.MonthOfYear != nil && (*r.MonthOfYear < 1 || *r.MonthOfYear > 12) {
		return fmt.Errorf("%w: month of year must be 1-12, got %d", core.ErrInvalidRecurrenceRule, *r.MonthOfYear)
	}
	return nil
}

// Next returns the occurrence following current under the rule. The result is
// strictly after current for any valid rule.
//
//   - daily: advance by Interval days.
//   - weekly: advance by Interval weeks, then shift forward within [0,6] days
//     to land on DayOfWeek when given. Never shifts backward.
//   - monthly: advance by Interval months, then clamp the day to the target
//     month's length (DayOfMonth=31 on a 30-day month lands on day 30).
//   - yearly: advance by Interval years; when both MonthOfYear and DayOfMonth
//     are given, set the month and clamp the day the same way. A Feb 29
//     anchor clamps to Feb 28 in non-leap years.
func (r Rule) Next(current core.Date) (core.Date, error) {
	if err := r.Validate(); err != nil {
		return core.Date{}, err
	}

	switch r.Frequency {
	case core.Daily:
		return current.AddDays(r.Interval), nil

	case core.Weekly:
		next := current.AddDays(7 * r.Interval)
		if r.DayOfWeek != nil {
			shift := (*r.DayOfWeek - next.Weekday() + 7) % 7
			next = next.AddDays(shift)
		}
		return next, nil

	case core.Monthly:
		year, month := addMonths(current.Year(), current.Month(), r.Interval)
		day := current.Day()
		if r.DayOfMonth != nil {
			day = *r.DayOfMonth
		}
		return core.NewDate(year, month, clampDay(day, year, month)), nil

	case core.Yearly:
		year := current.Year() + r.Interval
		month := current.Month()
		day := current.Day()
		if r.MonthOfYear != nil && r.DayOfMonth != nil {
			month = *r.MonthOfYear
			day = *r.DayOfMonth
		}
		return core.NewDate(year, month, clampDay(day, year, month)), nil
	}

	// Unreachable after Validate.
	return core.Date{}, fmt.Errorf("%w: unknown frequency %q", core.ErrInvalidRecurrenceRule, r.Frequency)
}

// addMonths advances a year/month pair without the day-overflow normalization
// time.AddDate would apply (Jan 31 + 1 month must target February, not March).
func addMonths(year, month, n int) (int, int) {
	total := year*12 + (month - 1) + n
	return total / 12, total%12 + 1
}

func clampDay(day, year, month int) int {
	if max := core.DaysInMonth(year, month); day > max {
		return max
	}
	return day
}
