package model

import "time"

// RepoPollResult records how one repository was handled during a poll.
type RepoPollResult struct {
	Repository  TrackedRepository
	Outcome     PollOutcome
	PreviousTag string
	Tag         string
	Notified    int
	FailedChats []int64
	Err         error
}

// CycleReport aggregates the results of one poll cycle. Partial failures are
// reported here rather than returned as errors.
type CycleReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Results   []RepoPollResult
}

// Count returns the number of repositories that ended in outcome.
func (r CycleReport) Count(outcome PollOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// FailedDeliveries returns the total number of failed notifications in the cycle.
func (r CycleReport) FailedDeliveries() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.FailedChats)
	}
	return n
}
