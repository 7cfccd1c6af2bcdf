package model

// PollOutcome is the terminal state of one repository within one poll cycle.
type PollOutcome string

const (
	PollOutcomeUnchanged          PollOutcome = "unchanged"
	PollOutcomeBaselineRecorded   PollOutcome = "baseline_recorded"
	PollOutcomeNotifiedAndUpdated PollOutcome = "notified_and_updated"
	PollOutcomeFetchFailed        PollOutcome = "fetch_failed"
	PollOutcomePersistenceFailed  PollOutcome = "persistence_failed"
)

// AllPollOutcomes lists every outcome, in reporting order.
var AllPollOutcomes = []PollOutcome{
	PollOutcomeUnchanged,
	PollOutcomeBaselineRecorded,
	PollOutcomeNotifiedAndUpdated,
	PollOutcomeFetchFailed,
	PollOutcomePersistenceFailed,
}

// TrackStatus describes what Track did for a chat.
type TrackStatus string

const (
	TrackStatusCreated         TrackStatus = "created"          // New tracked repository and subscription.
	TrackStatusSubscribed      TrackStatus = "subscribed"       // Existing repository, new subscription.
	TrackStatusAlreadyTracking TrackStatus = "already_tracking" // Chat was already subscribed.
)
