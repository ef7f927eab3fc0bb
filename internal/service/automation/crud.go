package automation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/itgabriell/audicare-engine/internal/domain"
	"github.com/itgabriell/audicare-engine/internal/filter"
)

// CreateInput holds the fields for creating a new automation.
type CreateInput struct {
	Name          string                `json:"name"`
	TriggerType   domain.TriggerType    `json:"trigger_type"`
	TriggerConfig domain.TriggerConfig  `json:"trigger_config"`
	ActionType    domain.ActionType     `json:"action_type"`
	ActionConfig  domain.ActionConfig   `json:"action_config"`
	FilterConfig  []domain.FilterClause `json:"filter_config"`
}

// Get returns a single automation.
func (s *Service) Get(ctx context.Context, clinicID, id string) (*domain.Automation, error) {
	return s.autos.Get(ctx, clinicID, id)
}

// List returns a clinic's automations matching the filter.
func (s *Service) List(ctx context.Context, clinicID string, f ListFilter) ([]domain.Automation, error) {
	return s.autos.List(ctx, clinicID, f)
}

// ListActive returns every active automation.
func (s *Service) ListActive(ctx context.Context) ([]domain.Automation, error) {
	return s.autos.ListActive(ctx)
}

// Create validates and persists a new automation in active status.
func (s *Service) Create(ctx context.Context, clinicID string, input CreateInput) (*domain.Automation, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if input.ActionType == domain.ActionMessage && input.ActionConfig.MessageTemplate == "" {
		return nil, fmt.Errorf("%w: message_template is required for message actions", ErrValidation)
	}

	a := &domain.Automation{
		ID:            uuid.New().String(),
		ClinicID:      clinicID,
		Name:          input.Name,
		Status:        domain.AutomationActive,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		ActionType:    input.ActionType,
		ActionConfig:  input.ActionConfig,
		FilterConfig:  input.FilterConfig,
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	// Reject unknown clause kinds at write time, not at execution time.
	if _, err := filter.ParseAll(a.FilterConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	id, err := s.autos.Create(ctx, a)
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}

// Update modifies mutable automation fields.
func (s *Service) Update(ctx context.Context, clinicID, id string, u UpdateFields) error {
	if u.FilterConfig != nil {
		if _, err := filter.ParseAll(*u.FilterConfig); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
	}
	return s.autos.Update(ctx, clinicID, id, u)
}

// Delete removes an automation and its execution history.
func (s *Service) Delete(ctx context.Context, clinicID, id string) error {
	return s.autos.Delete(ctx, clinicID, id)
}

// Pause transitions an automation to paused.
func (s *Service) Pause(ctx context.Context, clinicID, id string) error {
	return s.autos.UpdateStatus(ctx, clinicID, id, domain.AutomationPaused)
}

// Activate transitions an automation to active.
func (s *Service) Activate(ctx context.Context, clinicID, id string) error {
	return s.autos.UpdateStatus(ctx, clinicID, id, domain.AutomationActive)
}
