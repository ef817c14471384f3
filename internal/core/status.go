package core

import "time"

// TaskStatus is the runtime state of a plan step during execution.
// Transitions are restricted to:
//
//	PENDING -> RUNNABLE -> RUNNING -> SUCCESS | FAILED
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunnable
	TaskRunning
	TaskSuccess
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskRunnable:
		return "RUNNABLE"
	case TaskRunning:
		return "RUNNING"
	case TaskSuccess:
		return "SUCCESS"
	case TaskFailed:
		return "FAILED"
	case TaskPending:
		fallthrough
	default:
		return "PENDING"
	}
}

// IsTerminal reports whether the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailed
}

// TaskState is the bookkeeping record the scheduler keeps per step.
type TaskState struct {
	Status            TaskStatus `json:"status"`
	UnmetDependencies int        `json:"unmet_dependencies"`
	Dependencies      []string   `json:"dependencies"`
	Attempts          int        `json:"attempts"`
	Error             string     `json:"error,omitempty"`
	StartTime         time.Time  `json:"start_time,omitzero"`
	EndTime           time.Time  `json:"end_time,omitzero"`
}

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunSuccess        RunStatus = "SUCCESS"
	RunFailed         RunStatus = "FAILED"
	RunPartialSuccess RunStatus = "PARTIAL_SUCCESS"
)
