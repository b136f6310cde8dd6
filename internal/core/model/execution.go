package model

import "time"

type RunKind string

const (
	RunIncremental RunKind = "incremental"
	RunFull        RunKind = "full"
)

func ParseRunKind(s string) (RunKind, error) {
	switch RunKind(s) {
	case RunIncremental, RunFull:
		return RunKind(s), nil
	default:
		return "", ErrUnknownRunKind
	}
}

type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// ExecutionRecord is one scheduler-owned entry in the capped run log.
type ExecutionRecord struct {
	UUID        string     `json:"uuid"`
	Kind        RunKind    `json:"kind"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Stats       *PassStats `json:"stats,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// PassStats aggregates one resolution pass. Per-pair failures land in
// Errors; they never abort the pass.
type PassStats struct {
	Entities     int           `json:"entities"`
	Malformed    int           `json:"malformed"`
	Pairs        int           `json:"pairs"`
	AutoMerged   int           `json:"auto_merged"`
	Flagged      int           `json:"flagged"`
	Distinct     int           `json:"distinct"`
	Merged       int           `json:"merged"`
	EdgesRewired int           `json:"edges_rewired"`
	Escalated    int           `json:"escalated"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
}
