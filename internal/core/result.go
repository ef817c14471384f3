package core

import "time"

// ColumnSchema describes one column of an input or output relation.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// StepExecutionResult is the immutable record produced when a step
// completes. It is handed to the observability manager and the caller.
type StepExecutionResult struct {
	StepID       string         `json:"step_id"`
	StepType     PlanStepType   `json:"step_type"`
	Status       TaskStatus     `json:"status"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Duration     time.Duration  `json:"duration"`
	RowsAffected int64          `json:"rows_affected"`
	BytesRead    int64          `json:"bytes_processed"`
	InputSchema  []ColumnSchema `json:"input_schema,omitempty"`
	OutputSchema []ColumnSchema `json:"output_schema,omitempty"`
	Error        *ErrorDetail   `json:"error,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	Lineage      []string       `json:"lineage,omitempty"`
}

// ErrorDetail is the structured form of a step failure.
type ErrorDetail struct {
	Kind             string            `json:"kind"`
	Message          string            `json:"message"`
	Context          map[string]string `json:"context,omitempty"`
	SuggestedActions []string          `json:"suggested_actions,omitempty"`
}

// RunRecord is the durable record of one execution.
type RunRecord struct {
	RunID       string                `json:"run_id"`
	Pipeline    string                `json:"pipeline,omitempty"`
	StartTime   time.Time             `json:"start_time"`
	EndTime     time.Time             `json:"end_time,omitzero"`
	Status      RunStatus             `json:"status"`
	StepResults []StepExecutionResult `json:"step_results"`
	Metrics     map[string]float64    `json:"metrics,omitempty"`
}

// RunResult is the structured value returned to the caller after a run.
// Successful runs expose the same shape with no failed step.
type RunResult struct {
	Status         string                `json:"status"`
	RunID          string                `json:"run_id"`
	FailedStep     string                `json:"failed_step,omitempty"`
	FailedStepType PlanStepType          `json:"failed_step_type,omitempty"`
	// FailedAtIndex is nil on success; a pointer keeps a failure at
	// index 0 visible in the serialized form.
	FailedAtIndex *int `json:"failed_at_step_index,omitempty"`
	ExecutedSteps  []string              `json:"executed_steps"`
	StepResults    []StepExecutionResult `json:"step_results"`
	ExecutionTime  time.Duration         `json:"execution_time"`
	Error          string                `json:"error,omitempty"`
}
