// Package schedule implements cron-based recurring workflow submission:
// parsing a 5-field cron expression and running scheduled tasks on it.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is a single parsed component of a cron expression.
type field struct {
	any   bool
	value *uint32
	list  []uint32
	lo    *uint32
	hi    *uint32
	step  *uint32
}

func (f field) matches(v uint32) bool {
	switch {
	case f.any:
		return true
	case f.value != nil:
		return *f.value == v
	case f.list != nil:
		for _, x := range f.list {
			if x == v {
				return true
			}
		}
		return false
	case f.lo != nil:
		return v >= *f.lo && v <= *f.hi
	case f.step != nil:
		return v%*f.step == 0
	default:
		return false
	}
}

// Expression is a parsed `minute hour day month weekday` cron expression.
type Expression struct {
	minute, hour, day, month, weekday field
}

// Parse parses a standard 5-field cron expression: minute (0-59), hour
// (0-23), day of month (1-31), month (1-12), weekday (0-6, Sunday = 0).
// Supports `*`, a single integer, `a-b` ranges, `a,b,c` lists, and `*/n`
// steps.
func Parse(expr string) (Expression, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Expression{}, fmt.Errorf("schedule: cron expression must have 5 fields: %q", expr)
	}

	minute, err := parseField(parts[0], 0, 59)
	if err != nil {
		return Expression{}, fmt.Errorf("schedule: invalid minute field: %w", err)
	}
	hour, err := parseField(parts[1], 0, 23)
	if err != nil {
		return Expression{}, fmt.Errorf("schedule: invalid hour field: %w", err)
	}
	day, err := parseField(parts[2], 1, 31)
	if err != nil {
		return Expression{}, fmt.Errorf("schedule: invalid day field: %w", err)
	}
	month, err := parseField(parts[3], 1, 12)
	if err != nil {
		return Expression{}, fmt.Errorf("schedule: invalid month field: %w", err)
	}
	weekday, err := parseField(parts[4], 0, 6)
	if err != nil {
		return Expression{}, fmt.Errorf("schedule: invalid weekday field: %w", err)
	}

	return Expression{minute: minute, hour: hour, day: day, month: month, weekday: weekday}, nil
}

func parseField(s string, lo, hi uint32) (field, error) {
	if s == "*" {
		return field{any: true}, nil
	}

	if step, ok := strings.CutPrefix(s, "*/"); ok {
		n, err := strconv.ParseUint(step, 10, 32)
		if err != nil {
			return field{}, fmt.Errorf("invalid step value: %w", err)
		}
		if n == 0 || uint32(n) > hi {
			return field{}, fmt.Errorf("step value must be 1-%d", hi)
		}
		v := uint32(n)
		return field{step: &v}, nil
	}

	if strings.Contains(s, "-") {
		parts := strings.SplitN(s, "-", 2)
		if len(parts) != 2 {
			return field{}, fmt.Errorf("invalid range format: %q", s)
		}
		start, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return field{}, fmt.Errorf("invalid range start: %w", err)
		}
		end, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return field{}, fmt.Errorf("invalid range end: %w", err)
		}
		if uint32(start) < lo || uint32(start) > hi || uint32(end) < lo || uint32(end) > hi || start > end {
			return field{}, fmt.Errorf("range values must be %d-%d with start <= end", lo, hi)
		}
		s32, e32 := uint32(start), uint32(end)
		return field{lo: &s32, hi: &e32}, nil
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		values := make([]uint32, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.ParseUint(p, 10, 32)
			if err != nil {
				return field{}, fmt.Errorf("invalid list value: %w", err)
			}
			if uint32(n) < lo || uint32(n) > hi {
				return field{}, fmt.Errorf("value must be %d-%d", lo, hi)
			}
			values = append(values, uint32(n))
		}
		return field{list: values}, nil
	}

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return field{}, fmt.Errorf("invalid numeric value: %w", err)
	}
	if uint32(n) < lo || uint32(n) > hi {
		return field{}, fmt.Errorf("value must be %d-%d", lo, hi)
	}
	v := uint32(n)
	return field{value: &v}, nil
}

// Matches reports whether t (interpreted in UTC) satisfies every field of
// the expression.
func (e Expression) Matches(t time.Time) bool {
	t = t.UTC()
	return e.minute.matches(uint32(t.Minute())) &&
		e.hour.matches(uint32(t.Hour())) &&
		e.day.matches(uint32(t.Day())) &&
		e.month.matches(uint32(t.Month())) &&
		e.weekday.matches(uint32(t.Weekday()))
}

// maxLookahead bounds the brute-force simulation in NextAfter.
const maxLookahead = 365 * 24 * 60

// NextAfter returns the first minute-aligned instant strictly after after
// that matches the expression, searching up to one year ahead. It returns
// the zero time and false if no match is found in that window (an
// expression with self-contradictory day/month/weekday fields can do
// this, e.g. a February 30th).
func (e Expression) NextAfter(after time.Time) (time.Time, bool) {
	current := after.UTC().Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < maxLookahead; i++ {
		if e.Matches(current) {
			return current, true
		}
		current = current.Add(time.Minute)
	}
	return time.Time{}, false
}
