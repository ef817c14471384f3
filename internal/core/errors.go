package core

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes surfaced by the CLI.
const (
	ExitOK         = 0
	ExitPlanning   = 1
	ExitExecution  = 2
	ExitValidation = 3
	ExitIO         = 4
)

// Sentinel errors for the error taxonomy. Concrete errors wrap these so
// callers can classify with errors.Is.
var (
	ErrVariableSubstitution = errors.New("variable substitution error")
	ErrPlanning             = errors.New("planning error")
	ErrEvaluation           = errors.New("evaluation error")
	ErrConnector            = errors.New("connector error")
	ErrDatabase             = errors.New("database error")
	ErrStepExecution        = errors.New("step execution error")
)

// PlanningError aggregates one or more problems found while building an
// execution plan. It is never recovered locally.
type PlanningError struct {
	Problems []string
}

func (e *PlanningError) Error() string {
	if len(e.Problems) == 1 {
		return "planning error: " + e.Problems[0]
	}
	return fmt.Sprintf("planning error (%d problems):\n  %s",
		len(e.Problems), strings.Join(e.Problems, "\n  "))
}

func (e *PlanningError) Unwrap() error { return ErrPlanning }

// NewPlanningError builds a PlanningError from the given problems.
func NewPlanningError(problems ...string) *PlanningError {
	return &PlanningError{Problems: problems}
}

// EvaluationError reports a condition expression that could not be
// evaluated under the restricted grammar.
type EvaluationError struct {
	Expression string
	Reason     string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error in %q: %s", e.Expression, e.Reason)
}

func (e *EvaluationError) Unwrap() error { return ErrEvaluation }

// SubstitutionError reports an unresolvable variable reference under
// strict substitution.
type SubstitutionError struct {
	Name string
	Text string
}

func (e *SubstitutionError) Error() string {
	return fmt.Sprintf("variable %q is not defined and has no default in %q", e.Name, e.Text)
}

func (e *SubstitutionError) Unwrap() error { return ErrVariableSubstitution }

// ConnectorError wraps a connector failure with its transience class.
type ConnectorError struct {
	Connector string
	Op        string
	Err       error
	Transient bool
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.Connector, e.Op, e.Err)
}

func (e *ConnectorError) Unwrap() error { return ErrConnector }

// IsTransient reports whether err is a connector error worth retrying.
func IsTransient(err error) bool {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return false
}

// StepError carries the structured context of a failed step.
type StepError struct {
	StepID           string
	StepType         PlanStepType
	Err              error
	Context          map[string]string
	SuggestedActions []string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Detail converts the error into its serializable form.
func (e *StepError) Detail() *ErrorDetail {
	return &ErrorDetail{
		Kind:             errorKind(e.Err),
		Message:          e.Err.Error(),
		Context:          e.Context,
		SuggestedActions: e.SuggestedActions,
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrVariableSubstitution):
		return "VariableSubstitutionError"
	case errors.Is(err, ErrPlanning):
		return "PlanningError"
	case errors.Is(err, ErrEvaluation):
		return "EvaluationError"
	case errors.Is(err, ErrConnector):
		return "ConnectorError"
	case errors.Is(err, ErrDatabase):
		return "DatabaseError"
	default:
		return "StepExecutionError"
	}
}

// ErrorList collects errors and joins their messages.
type ErrorList struct {
	errors []error
}

func (e *ErrorList) Add(err error) {
	if err != nil {
		e.errors = append(e.errors, err)
	}
}

func (e *ErrorList) HasErrors() bool {
	return len(e.errors) > 0
}

func (e *ErrorList) Error() string {
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// ExitCode maps an error to the CLI exit code contract.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPlanning), errors.Is(err, ErrEvaluation),
		errors.Is(err, ErrVariableSubstitution):
		return ExitPlanning
	case errors.Is(err, ErrConnector), errors.Is(err, ErrDatabase),
		errors.Is(err, ErrStepExecution):
		return ExitExecution
	default:
		return ExitExecution
	}
}
