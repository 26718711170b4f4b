package core

import (
	"errors"
	"time"
)

// Date is a calendar day with no time-of-day component. All dates are treated
// as calendar dates in a single reference timezone (UTC); no conversion is
// performed anywhere in the engine.
type Date struct {
	time.Time
}

// DateFormat is the canonical string representation of a Date.
const DateFormat = "2006-01-02"

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a Date from its canonical YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

// Weekday returns the day of the week, 0 (Sunday) through 6 (Saturday).
func (d Date) Weekday() int {
	return int(d.Time.Weekday())
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year(), d.Month(), d.Day()+n)
}

// IsEmpty returns true if the date is zero (used for optional dates such as a
// schedule's end date).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date in its canonical form.
func (d Date) String() string {
	return d.Time.Format(DateFormat)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// DaysInMonth returns the number of days in the given month of the given year.
// month is 1-12.
func DaysInMonth(year, month int) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
