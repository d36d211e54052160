// Package timeofday converts between "HH:MM" wall-clock strings and minutes since midnight.
// Values never roll over midnight: the valid range is 00:00 through 23:59.
package timeofday

import (
	"errors"
	"fmt"
)

const (
	// MinutesPerDay is the exclusive upper bound of a Clock.
	MinutesPerDay = 24 * 60
	// LastMinute is 23:59.
	LastMinute Clock = MinutesPerDay - 1
)

// ErrFormat is matched by every FormatError.
var ErrFormat = errors.New("malformed time of day")

// ErrOutOfRange is returned when a minute offset falls outside a single day.
var ErrOutOfRange = errors.New("time of day out of range")

// FormatError reports an input that is not a zero-padded "HH:MM" within one day.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid time %q: %s", e.Input, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// Clock is a time of day in minutes since midnight.
type Clock int

// Parse reads a strict "HH:MM": two digits, a colon, two digits, hours 0-23, minutes 0-59.
func Parse(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, &FormatError{Input: s, Reason: "want HH:MM"}
	}
	h, ok := twoDigits(s[0], s[1])
	if !ok {
		return 0, &FormatError{Input: s, Reason: "hours are not numeric"}
	}
	m, ok := twoDigits(s[3], s[4])
	if !ok {
		return 0, &FormatError{Input: s, Reason: "minutes are not numeric"}
	}
	if h > 23 {
		return 0, &FormatError{Input: s, Reason: "hours must be 00-23"}
	}
	if m > 59 {
		return 0, &FormatError{Input: s, Reason: "minutes must be 00-59"}
	}
	return Clock(h*60 + m), nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Clock {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ToMinutes is Parse returning a plain int.
func ToMinutes(s string) (int, error) {
	c, err := Parse(s)
	return int(c), err
}

// FromMinutes renders a minute offset in [0, 1439] as "HH:MM".
func FromMinutes(minutes int) (string, error) {
	c, err := FromInt(minutes)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// FromInt range-checks minutes and returns it as a Clock.
func FromInt(minutes int) (Clock, error) {
	if minutes < 0 || minutes >= MinutesPerDay {
		return 0, fmt.Errorf("%w: %d minutes", ErrOutOfRange, minutes)
	}
	return Clock(minutes), nil
}

// AddMinutes returns t+duration as "HH:MM". A result past 23:59 is an error.
func AddMinutes(t string, duration int) (string, error) {
	c, err := Parse(t)
	if err != nil {
		return "", err
	}
	next, err := c.Add(duration)
	if err != nil {
		return "", err
	}
	return next.String(), nil
}

// Add returns c advanced by minutes, failing if the result leaves the day.
func (c Clock) Add(minutes int) (Clock, error) {
	return FromInt(int(c) + minutes)
}

func (c Clock) Minutes() int { return int(c) }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	if c < 0 || c > LastMinute {
		return nil, fmt.Errorf("%w: %d minutes", ErrOutOfRange, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}
