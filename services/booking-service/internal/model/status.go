package model

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// forward order of the lifecycle; cancelled sits outside it.
var statusRank = map[Status]int{
	StatusPending:   1,
	StatusConfirmed: 2,
	StatusScheduled: 3,
	StatusCompleted: 4,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st == StatusCancelled {
		return st, nil
	}
	if _, ok := statusRank[st]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrFormat, s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo allows strictly forward moves, or cancelling anything not yet terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	return okFrom && okTo && to > from
}
