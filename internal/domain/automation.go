package domain

import (
	"fmt"
	"time"
)

// AutomationStatus enumerates the lifecycle states of an automation.
type AutomationStatus string

const (
	AutomationActive AutomationStatus = "active"
	AutomationPaused AutomationStatus = "paused"
)

// TriggerType identifies how an automation is started.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerEvent     TriggerType = "event"
)

// EventPatientCreated is the only event trigger currently recognized.
const EventPatientCreated = "patient_created"

// ActionType identifies what an automation does to each recipient.
type ActionType string

const (
	ActionMessage ActionType = "message"
	ActionEmail   ActionType = "email"
	ActionSMS     ActionType = "sms"
)

// TriggerConfig carries the trigger parameters for scheduled and event
// automations. Manual automations leave it empty.
type TriggerConfig struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	EventType   string     `json:"event_type,omitempty" db:"event_type"`
}

// ActionConfig carries the action parameters. MessageTemplate supports the
// placeholders nome, telefone, data_consulta and horario.
type ActionConfig struct {
	MessageTemplate string `json:"message_template" db:"message_template"`
	UseTemplate     bool   `json:"use_template" db:"use_template"`
}

// Automation pairs a trigger condition, a recipient filter and an action.
// It is created and edited by clinic operators; the execution engine reads it
// but never mutates it.
type Automation struct {
	ID            string           `json:"id" db:"id"`
	ClinicID      string           `json:"clinic_id" db:"clinic_id"`
	Name          string           `json:"name" db:"name"`
	Status        AutomationStatus `json:"status" db:"status"`
	TriggerType   TriggerType      `json:"trigger_type" db:"trigger_type"`
	TriggerConfig TriggerConfig    `json:"trigger_config"`
	ActionType    ActionType       `json:"action_type" db:"action_type"`
	ActionConfig  ActionConfig     `json:"action_config"`
	FilterConfig  []FilterClause   `json:"filter_config"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// Validate checks the automation's enum fields and trigger/action coherence.
func (a Automation) Validate() error {
	switch a.Status {
	case AutomationActive, AutomationPaused:
	default:
		return fmt.Errorf("invalid status %q", a.Status)
	}
	switch a.TriggerType {
	case TriggerManual:
	case TriggerScheduled:
		if a.TriggerConfig.ScheduledAt == nil {
			return fmt.Errorf("scheduled trigger requires scheduled_at")
		}
	case TriggerEvent:
		if a.TriggerConfig.EventType == "" {
			return fmt.Errorf("event trigger requires event_type")
		}
	default:
		return fmt.Errorf("invalid trigger_type %q", a.TriggerType)
	}
	switch a.ActionType {
	case ActionMessage, ActionEmail, ActionSMS:
	default:
		return fmt.Errorf("invalid action_type %q", a.ActionType)
	}
	return nil
}

// FilterOperator is a comparison operator in a filter clause.
type FilterOperator string

const (
	OpEquals    FilterOperator = "equals"
	OpNotEquals FilterOperator = "not_equals"
	OpGreater   FilterOperator = "greater"
	OpLess      FilterOperator = "less"
	OpContains  FilterOperator = "contains"
)

// FilterClause is one predicate of an automation's recipient filter.
// Clauses are combined with logical AND; there is no OR or grouping.
// A clause is immutable once stored on the automation.
type FilterClause struct {
	Type     string         `json:"type"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
}
