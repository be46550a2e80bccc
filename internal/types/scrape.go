package types

import "time"

// Outcome is the terminal state of one scrape attempt.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailure        Outcome = "failure"
)

// ScrapeLog is one row per scrape attempt. Created when the scrape starts,
// mutated only by its owning scrape, closed at the end.
type ScrapeLog struct {
	ID             int64
	OrganizationID int64
	CorrelationID  string
	StartedAt      time.Time
	EndedAt        *time.Time
	Outcome        Outcome

	DogsFound          int
	DogsSkipped        int
	DogsAdded          int
	DogsUpdated        int
	DogsUnchanged      int
	ImagesUploaded     int
	ImagesFailed       int
	ProcessingFailures int

	CollectionSeconds float64
	ProcessingSeconds float64
	DurationSeconds   float64

	DataQualityScore float64
	ErrorDetail      string
}

// Completed returns true once the log has been closed with an outcome.
func (l *ScrapeLog) Completed() bool {
	return l.EndedAt != nil && l.Outcome != ""
}
