package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated session metrics.
// Owner isolation: OwnerID is required.

type CallsSummaryRequest struct {
	OwnerID string    `json:"owner_id"`
	Range   TimeRange `json:"range"`
}

type CallsSummary struct {
	OwnerID string `json:"owner_id"`

	TotalCalls       int `json:"total_calls"`
	CompletedCalls   int `json:"completed_calls"`
	FailedCalls      int `json:"failed_calls"`
	InProgressCalls  int `json:"in_progress_calls"`
	AICompletedCalls int `json:"ai_completed_calls"`
	InitiatingCalls  int `json:"initiating_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls    int `json:"recorded_calls"`
	TranscribedCalls int `json:"transcribed_calls"`
}
