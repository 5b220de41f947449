package domain

import "strings"

// RunStatus is the lifecycle state of a training run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

var runStatusLabels = map[RunStatus]string{
	RunStatusPending:    "Pending",
	RunStatusProcessing: "Training",
	RunStatusCompleted:  "Completed",
	RunStatusFailed:     "Failed",
}

// RunStatusLabel returns a human-readable label for a run status.
func RunStatusLabel(status RunStatus) string {
	if label, ok := runStatusLabels[status]; ok {
		return label
	}

	return "Unknown"
}

// ParseRunStatus returns the status for a given label (case-insensitive).
func ParseRunStatus(label string) (RunStatus, bool) {
	status := RunStatus(strings.ToLower(strings.TrimSpace(label)))
	_, ok := runStatusLabels[status]

	return status, ok
}

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}
