package domain

import "time"

// ExecutionStatus enumerates the states of one automation run.
// An execution is created running and transitions exactly once to a
// terminal state; it is never re-entered (a re-run creates a fresh row).
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionType records what started an execution.
type ExecutionType string

const (
	ExecutionManual    ExecutionType = "manual"
	ExecutionAutomatic ExecutionType = "automatic"
)

// Execution is one concrete run of an automation with aggregate outcome
// counts. Invariant: once status is terminal, SuccessCount+FailureCount
// equals the number of log rows written for it.
type Execution struct {
	ID            string          `json:"id" db:"id"`
	AutomationID  string          `json:"automation_id" db:"automation_id"`
	ExecutedBy    *string         `json:"executed_by,omitempty" db:"executed_by"`
	ExecutionType ExecutionType   `json:"execution_type" db:"execution_type"`
	Status        ExecutionStatus `json:"status" db:"status"`
	TargetCount   int             `json:"target_count" db:"target_count"`
	SuccessCount  int             `json:"success_count" db:"success_count"`
	FailureCount  int             `json:"failure_count" db:"failure_count"`
	ErrorMessage  string          `json:"error_message,omitempty" db:"error_message"`
	ExecutedAt    time.Time       `json:"executed_at" db:"executed_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// LogStatus is the outcome of one recipient within an execution.
type LogStatus string

const (
	LogSent   LogStatus = "sent"
	LogFailed LogStatus = "failed"
)

// ExecutionLog is one per-recipient outcome row. Rows are append-only and
// owned by the parent execution (cascade delete, no independent lifecycle).
type ExecutionLog struct {
	ID           string    `json:"id" db:"id"`
	ExecutionID  string    `json:"execution_id" db:"execution_id"`
	TargetPhone  string    `json:"target_phone" db:"target_phone"`
	TargetName   string    `json:"target_name" db:"target_name"`
	Status       LogStatus `json:"status" db:"status"`
	MessageID    string    `json:"message_id,omitempty" db:"message_id"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
