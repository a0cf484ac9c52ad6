package models

import "time"

// JobUpdateEvent is the snapshot broadcast after each pipeline stage
type JobUpdateEvent struct {
	ID        string     `json:"id"`
	Status    JobStatus  `json:"status"`
	Logs      []string   `json:"logs"`
	PrDetails *PrDetails `json:"prDetails,omitempty"`
	Plan      *string    `json:"plan,omitempty"`
	At        time.Time  `json:"at"`
}

// LogFailed is the sentinel line closing the log of a failed job.
const LogFailed = "Job Failed."

// PollLogLine returns the fixed progress line for a polled status, or "" when
// the status carries no line of its own.
func PollLogLine(status JobStatus) string {
	switch status {
	case JobStatusPlanning:
		return "Agent is thinking..."
	case JobStatusWorking:
		return "Agent is working on code..."
	case JobStatusWaitingApproval:
		return "Plan ready for review."
	case JobStatusPrReady:
		return "Pull Request created."
	}
	return ""
}
