package driven

import (
	"time"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

// Cycle results reported to PollMetrics.
const (
	CycleCompleted = "completed"
	CycleAborted   = "aborted"
	CycleSkipped   = "skipped"
)

// PollMetrics receives observability signals from the poll cycle.
type PollMetrics interface {
	ObserveCycle(result string, duration time.Duration)
	ObserveRepository(outcome model.PollOutcome)
	ObserveFetchError(kind string)
	ObserveDelivery(ok bool)
}
