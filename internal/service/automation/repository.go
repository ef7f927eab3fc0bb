package automation

import (
	"context"
	"time"

	"github.com/itgabriell/audicare-engine/internal/domain"
)

// Repository defines the data access contract for automations.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single automation. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, clinicID, id string) (*domain.Automation, error)

	// List returns a clinic's automations ordered by created_at DESC.
	List(ctx context.Context, clinicID string, f ListFilter) ([]domain.Automation, error)

	// ListActive returns every active automation, across clinics.
	ListActive(ctx context.Context) ([]domain.Automation, error)

	// ListCandidates returns active automations whose trigger_type is not
	// manual — the consideration set for automatic execution.
	ListCandidates(ctx context.Context) ([]domain.Automation, error)

	// Create inserts a new automation and returns its ID.
	Create(ctx context.Context, a *domain.Automation) (string, error)

	// Update modifies an automation. Only non-nil fields are applied.
	Update(ctx context.Context, clinicID, id string, u UpdateFields) error

	// Delete removes an automation and, by cascade, its executions.
	Delete(ctx context.Context, clinicID, id string) error

	// UpdateStatus transitions between active and paused.
	UpdateStatus(ctx context.Context, clinicID, id string, status domain.AutomationStatus) error
}

// ExecutionRepository persists executions and their per-recipient logs.
type ExecutionRepository interface {
	// Create inserts an execution row with status=running and zero counts.
	Create(ctx context.Context, e *domain.Execution) error

	// Complete performs the single terminal update to status=completed.
	Complete(ctx context.Context, id string, target, success, failure int, completedAt time.Time) error

	// Fail performs the single terminal update to status=failed.
	Fail(ctx context.Context, id, errorMessage string, completedAt time.Time) error

	// List returns the most recent executions for an automation, newest first.
	List(ctx context.Context, automationID string, limit int) ([]domain.Execution, error)

	// AppendLog inserts one per-recipient outcome row.
	AppendLog(ctx context.Context, l *domain.ExecutionLog) error

	// Logs returns an execution's log rows in insertion order. The execution
	// must belong to the given automation.
	Logs(ctx context.Context, automationID, executionID string) ([]domain.ExecutionLog, error)

	// AutomaticExecutionInWindow reports whether an automatic execution for
	// the automation was started inside [from, to). Used by the trigger
	// evaluator as the fired marker.
	AutomaticExecutionInWindow(ctx context.Context, automationID string, from, to time.Time) (bool, error)
}

// RecipientRepository loads the read-only recipient projections.
type RecipientRepository interface {
	// Contacts returns a clinic's contacts as recipients without patient data.
	Contacts(ctx context.Context, clinicID string) ([]domain.Recipient, error)

	// ContactsWithPatients returns contacts joined with patient and
	// appointment rows, for patient-linked filter clauses.
	ContactsWithPatients(ctx context.Context, clinicID string) ([]domain.Recipient, error)

	// PatientCreatedSince reports whether any patient row was created in the
	// clinic at or after the given time.
	PatientCreatedSince(ctx context.Context, clinicID string, since time.Time) (bool, error)
}

// ListFilter controls filtering for automation lists.
type ListFilter struct {
	Status      string
	TriggerType string
}

// UpdateFields holds the mutable fields for an automation update.
// Nil fields are not applied.
type UpdateFields struct {
	Name          *string
	TriggerType   *domain.TriggerType
	TriggerConfig *domain.TriggerConfig
	ActionType    *domain.ActionType
	ActionConfig  *domain.ActionConfig
	FilterConfig  *[]domain.FilterClause
}
