// Package trigger decides whether an automation's trigger condition is
// currently satisfied. Only active, non-manual automations are candidates;
// the caller fetches that set before consulting the evaluator.
package trigger

import (
	"context"
	"time"

	"github.com/itgabriell/audicare-engine/internal/domain"
)

// ExecutionChecker answers whether an automatic execution already happened
// inside a time window. It is the fired marker that keeps a trigger from
// firing twice in one window, regardless of how often the cron caller hits
// the endpoint.
type ExecutionChecker interface {
	AutomaticExecutionInWindow(ctx context.Context, automationID string, from, to time.Time) (bool, error)
}

// PatientEvents answers whether a clinic gained a patient since a given time.
type PatientEvents interface {
	PatientCreatedSince(ctx context.Context, clinicID string, since time.Time) (bool, error)
}

// Evaluator evaluates scheduled and event triggers against "now".
type Evaluator struct {
	execs           ExecutionChecker
	events          PatientEvents
	scheduledWindow time.Duration
	eventWindow     time.Duration
}

// NewEvaluator creates a trigger evaluator. scheduledWindow is the half-width
// of the scheduled-trigger window (fires while |now−scheduled_at| < window);
// eventWindow is the lookback for event triggers.
func NewEvaluator(execs ExecutionChecker, events PatientEvents, scheduledWindow, eventWindow time.Duration) *Evaluator {
	if scheduledWindow <= 0 {
		scheduledWindow = 5 * time.Minute
	}
	if eventWindow <= 0 {
		eventWindow = 60 * time.Minute
	}
	return &Evaluator{
		execs:           execs,
		events:          events,
		scheduledWindow: scheduledWindow,
		eventWindow:     eventWindow,
	}
}

// Due reports whether the automation should run now. Manual or paused
// automations are never due; an unknown trigger/event combination is never
// due. A trigger that already fired inside its window is not due again.
func (e *Evaluator) Due(ctx context.Context, a domain.Automation, now time.Time) (bool, error) {
	if a.Status != domain.AutomationActive || a.TriggerType == domain.TriggerManual {
		return false, nil
	}

	switch a.TriggerType {
	case domain.TriggerScheduled:
		at := a.TriggerConfig.ScheduledAt
		if at == nil {
			return false, nil
		}
		diff := now.Sub(*at)
		if diff < 0 {
			diff = -diff
		}
		if diff >= e.scheduledWindow {
			return false, nil
		}
		fired, err := e.execs.AutomaticExecutionInWindow(ctx, a.ID, at.Add(-e.scheduledWindow), at.Add(e.scheduledWindow))
		if err != nil {
			return false, err
		}
		return !fired, nil

	case domain.TriggerEvent:
		if a.TriggerConfig.EventType != domain.EventPatientCreated {
			return false, nil
		}
		since := now.Add(-e.eventWindow)
		created, err := e.events.PatientCreatedSince(ctx, a.ClinicID, since)
		if err != nil {
			return false, err
		}
		if !created {
			return false, nil
		}
		fired, err := e.execs.AutomaticExecutionInWindow(ctx, a.ID, since, now)
		if err != nil {
			return false, err
		}
		return !fired, nil
	}

	return false, nil
}
