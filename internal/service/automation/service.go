package automation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/itgabriell/audicare-engine/internal/domain"
	"github.com/itgabriell/audicare-engine/internal/filter"
	"github.com/itgabriell/audicare-engine/internal/pkg/distlock"
	"github.com/itgabriell/audicare-engine/internal/tmpl"
	"github.com/itgabriell/audicare-engine/internal/trigger"
	"github.com/itgabriell/audicare-engine/internal/whatsapp"
)

// LockFactory builds the per-automation distributed lock that keeps two
// overlapping invocations from double-dispatching the same automation.
type LockFactory func(key string) distlock.DistLock

// lockExtendEvery is the recipient interval at which the execution lock's
// TTL is re-armed, so long runs keep the lock past its initial lease.
const lockExtendEvery = 50

// Service implements the automation execution engine. It coordinates the
// repositories, the recipient filter, the template renderer and the
// messaging bridge. All public methods are safe for concurrent use if the
// underlying repositories are concurrency-safe.
type Service struct {
	autos      Repository
	execs      ExecutionRepository
	recipients RecipientRepository
	sender     whatsapp.Sender
	renderer   *tmpl.Renderer
	locks      LockFactory
}

// NewService creates an automation service.
func NewService(autos Repository, execs ExecutionRepository, recipients RecipientRepository, sender whatsapp.Sender, locks LockFactory) *Service {
	return &Service{
		autos:      autos,
		execs:      execs,
		recipients: recipients,
		sender:     sender,
		renderer:   tmpl.NewRenderer(),
		locks:      locks,
	}
}

// Result is the caller-visible outcome of one execution. NoRecipients
// distinguishes the empty-target path from a genuine failure.
type Result struct {
	Execution    domain.Execution `json:"execution"`
	NoRecipients bool             `json:"no_recipients,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// Execute runs one automation end to end: filter recipients, dispatch the
// action to each sequentially, and record the execution with one log row
// per recipient. Per-recipient dispatch failures are recorded and do not
// abort the run; errors outside that boundary mark the execution failed
// and are returned to the caller.
func (s *Service) Execute(ctx context.Context, clinicID, automationID string, executedBy *string, execType domain.ExecutionType) (*Result, error) {
	a, err := s.autos.Get(ctx, clinicID, automationID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.AutomationActive {
		return nil, ErrInactive
	}
	if a.ActionType != domain.ActionMessage {
		// email and sms are accepted in configuration but have no dispatch
		// path; rejecting here replaces the legacy always-succeeds stubs.
		return nil, fmt.Errorf("%w: %s", ErrActionNotImplemented, a.ActionType)
	}

	clauses, err := filter.ParseAll(a.FilterConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	lock := s.locks("automation:" + automationID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire automation lock: %w", err)
	}
	if !acquired {
		return nil, ErrExecutionInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[automation.Service] release lock for %s: %v", automationID, err)
		}
	}()

	now := time.Now().UTC()
	exec := &domain.Execution{
		ID:            uuid.New().String(),
		AutomationID:  a.ID,
		ExecutedBy:    executedBy,
		ExecutionType: execType,
		Status:        domain.ExecutionRunning,
		ExecutedAt:    now,
	}
	if err := s.execs.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	targets, err := s.loadTargets(ctx, a.ClinicID, clauses, now)
	if err != nil {
		return nil, s.failExecution(ctx, exec, fmt.Errorf("load recipients: %w", err))
	}

	if len(targets) == 0 {
		completedAt := time.Now().UTC()
		if err := s.execs.Complete(ctx, exec.ID, 0, 0, 0, completedAt); err != nil {
			return nil, fmt.Errorf("complete execution: %w", err)
		}
		exec.Status = domain.ExecutionCompleted
		exec.CompletedAt = &completedAt
		return &Result{Execution: *exec, NoRecipients: true, Message: "no recipients matched"}, nil
	}

	success, failure := 0, 0
	for i, r := range targets {
		if i > 0 && i%lockExtendEvery == 0 {
			if err := lock.Extend(ctx); err != nil {
				log.Printf("[automation.Service] Lock extend failed for %s: %v", a.ID, err)
			}
		}
		outcome := &domain.ExecutionLog{
			ID:          uuid.New().String(),
			ExecutionID: exec.ID,
			TargetPhone: r.Contact.Phone,
			TargetName:  r.Contact.Name,
			CreatedAt:   time.Now().UTC(),
		}

		rendered := s.renderer.Render(a.ActionConfig.MessageTemplate, r)
		messageID, sendErr := s.sender.Send(ctx, r.Contact.Phone, rendered, r.Contact.Name)
		if sendErr != nil {
			failure++
			outcome.Status = domain.LogFailed
			outcome.ErrorMessage = sendErr.Error()
		} else {
			success++
			outcome.Status = domain.LogSent
			outcome.MessageID = messageID
		}

		if err := s.execs.AppendLog(ctx, outcome); err != nil {
			return nil, s.failExecution(ctx, exec, fmt.Errorf("append execution log: %w", err))
		}
	}

	completedAt := time.Now().UTC()
	if err := s.execs.Complete(ctx, exec.ID, len(targets), success, failure, completedAt); err != nil {
		return nil, fmt.Errorf("complete execution: %w", err)
	}

	exec.Status = domain.ExecutionCompleted
	exec.TargetCount = len(targets)
	exec.SuccessCount = success
	exec.FailureCount = failure
	exec.CompletedAt = &completedAt

	log.Printf("[automation.Service] Automation %s: %d targets, %d sent, %d failed",
		a.ID, len(targets), success, failure)
	return &Result{Execution: *exec}, nil
}

// loadTargets loads the recipient projection the clauses require and applies
// them all. Generic field clauses and patient-linked clauses are applied
// together; the legacy behavior of dropping field clauses when a
// patient-linked clause was present is gone.
func (s *Service) loadTargets(ctx context.Context, clinicID string, clauses []filter.Clause, now time.Time) ([]domain.Recipient, error) {
	var (
		recipients []domain.Recipient
		err        error
	)
	if filter.NeedsPatientData(clauses) {
		recipients, err = s.recipients.ContactsWithPatients(ctx, clinicID)
	} else {
		recipients, err = s.recipients.Contacts(ctx, clinicID)
	}
	if err != nil {
		return nil, err
	}
	return filter.Evaluate(recipients, clauses, now), nil
}

// failExecution records the terminal failed state and returns the original
// error for the HTTP layer.
func (s *Service) failExecution(ctx context.Context, exec *domain.Execution, cause error) error {
	if err := s.execs.Fail(context.WithoutCancel(ctx), exec.ID, cause.Error(), time.Now().UTC()); err != nil {
		log.Printf("[automation.Service] mark execution %s failed: %v", exec.ID, err)
	}
	return cause
}

// RunSummary aggregates one pass over all due automations.
type RunSummary struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Details    []RunDetail `json:"details"`
}

// RunDetail is the outcome of one automation within a RunSummary.
type RunDetail struct {
	AutomationID string `json:"automation_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	TargetCount  int    `json:"target_count"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	Error        string `json:"error,omitempty"`
}

// RunDue executes every candidate automation whose trigger is currently
// satisfied. One automation's failure never stops the sweep.
func (s *Service) RunDue(ctx context.Context, eval *trigger.Evaluator, now time.Time) (*RunSummary, error) {
	candidates, err := s.autos.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	summary := &RunSummary{Details: []RunDetail{}}
	for _, a := range candidates {
		due, err := eval.Due(ctx, a, now)
		if err != nil {
			summary.Total++
			summary.Failed++
			summary.Details = append(summary.Details, RunDetail{
				AutomationID: a.ID, Name: a.Name, Status: "failed", Error: err.Error(),
			})
			continue
		}
		if !due {
			continue
		}

		summary.Total++
		res, err := s.Execute(ctx, a.ClinicID, a.ID, nil, domain.ExecutionAutomatic)
		if err != nil {
			summary.Failed++
			summary.Details = append(summary.Details, RunDetail{
				AutomationID: a.ID, Name: a.Name, Status: "failed", Error: err.Error(),
			})
			continue
		}

		summary.Successful++
		status := "completed"
		if res.NoRecipients {
			status = "no_recipients"
		}
		summary.Details = append(summary.Details, RunDetail{
			AutomationID: a.ID,
			Name:         a.Name,
			Status:       status,
			TargetCount:  res.Execution.TargetCount,
			SuccessCount: res.Execution.SuccessCount,
			FailureCount: res.Execution.FailureCount,
		})
	}
	return summary, nil
}

// Executions returns an automation's most recent executions, newest first.
// The automation must belong to the clinic.
func (s *Service) Executions(ctx context.Context, clinicID, automationID string, limit int) ([]domain.Execution, error) {
	if _, err := s.autos.Get(ctx, clinicID, automationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return s.execs.List(ctx, automationID, limit)
}

// ExecutionLogs returns the per-recipient log rows of one execution.
func (s *Service) ExecutionLogs(ctx context.Context, clinicID, automationID, executionID string) ([]domain.ExecutionLog, error) {
	if _, err := s.autos.Get(ctx, clinicID, automationID); err != nil {
		return nil, err
	}
	return s.execs.Logs(ctx, automationID, executionID)
}

// PreviewResult reports what an automation's filter would match right now.
type PreviewResult struct {
	Count  int              `json:"count"`
	Sample []domain.Contact `json:"sample"`
}

// Preview evaluates an automation's filter without dispatching anything.
func (s *Service) Preview(ctx context.Context, clinicID, automationID string) (*PreviewResult, error) {
	a, err := s.autos.Get(ctx, clinicID, automationID)
	if err != nil {
		return nil, err
	}
	clauses, err := filter.ParseAll(a.FilterConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	targets, err := s.loadTargets(ctx, a.ClinicID, clauses, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	res := &PreviewResult{Count: len(targets), Sample: []domain.Contact{}}
	for i, r := range targets {
		if i == 10 {
			break
		}
		res.Sample = append(res.Sample, r.Contact)
	}
	return res, nil
}
