package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/itgabriell/audicare-engine/internal/domain"
	"github.com/itgabriell/audicare-engine/internal/service/automation"
)

// AutomationRepo implements automation.Repository against PostgreSQL.
// trigger_config, action_config and filter_config are stored as JSONB.
type AutomationRepo struct{ db *sql.DB }

// NewAutomationRepo creates a Postgres-backed automation repository.
func NewAutomationRepo(db *sql.DB) *AutomationRepo { return &AutomationRepo{db: db} }

const automationColumns = `id, clinic_id, name, status, trigger_type,
	trigger_config, action_type, action_config, filter_config,
	created_at, updated_at`

func scanAutomation(scan func(...interface{}) error) (*domain.Automation, error) {
	a := &domain.Automation{}
	var triggerCfg, actionCfg, filterCfg []byte
	err := scan(
		&a.ID, &a.ClinicID, &a.Name, &a.Status, &a.TriggerType,
		&triggerCfg, &a.ActionType, &actionCfg, &filterCfg,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(triggerCfg) > 0 {
		if err := json.Unmarshal(triggerCfg, &a.TriggerConfig); err != nil {
			return nil, fmt.Errorf("decode trigger_config: %w", err)
		}
	}
	if len(actionCfg) > 0 {
		if err := json.Unmarshal(actionCfg, &a.ActionConfig); err != nil {
			return nil, fmt.Errorf("decode action_config: %w", err)
		}
	}
	if len(filterCfg) > 0 {
		if err := json.Unmarshal(filterCfg, &a.FilterConfig); err != nil {
			return nil, fmt.Errorf("decode filter_config: %w", err)
		}
	}
	return a, nil
}

func (r *AutomationRepo) Get(ctx context.Context, clinicID, id string) (*domain.Automation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+automationColumns+`
		FROM automations
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)

	a, err := scanAutomation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, automation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get automation: %w", err)
	}
	return a, nil
}

func (r *AutomationRepo) List(ctx context.Context, clinicID string, f automation.ListFilter) ([]domain.Automation, error) {
	q := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE clinic_id = $1`

	args := []interface{}{clinicID}
	idx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.TriggerType != "" {
		q += fmt.Sprintf(" AND trigger_type = $%d", idx)
		args = append(args, f.TriggerType)
		idx++
	}
	q += " ORDER BY created_at DESC"

	return r.queryAutomations(ctx, q, args...)
}

func (r *AutomationRepo) ListActive(ctx context.Context) ([]domain.Automation, error) {
	return r.queryAutomations(ctx, `
		SELECT `+automationColumns+`
		FROM automations
		WHERE status = 'active'
		ORDER BY created_at DESC
	`)
}

func (r *AutomationRepo) ListCandidates(ctx context.Context) ([]domain.Automation, error) {
	return r.queryAutomations(ctx, `
		SELECT `+automationColumns+`
		FROM automations
		WHERE status = 'active' AND trigger_type <> 'manual'
		ORDER BY created_at DESC
	`)
}

func (r *AutomationRepo) queryAutomations(ctx context.Context, q string, args ...interface{}) ([]domain.Automation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	var out []domain.Automation
	for rows.Next() {
		a, err := scanAutomation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AutomationRepo) Create(ctx context.Context, a *domain.Automation) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	triggerCfg, err := json.Marshal(a.TriggerConfig)
	if err != nil {
		return "", fmt.Errorf("encode trigger_config: %w", err)
	}
	actionCfg, err := json.Marshal(a.ActionConfig)
	if err != nil {
		return "", fmt.Errorf("encode action_config: %w", err)
	}
	filterCfg, err := json.Marshal(a.FilterConfig)
	if err != nil {
		return "", fmt.Errorf("encode filter_config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automations
			(id, clinic_id, name, status, trigger_type, trigger_config,
			 action_type, action_config, filter_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, a.ID, a.ClinicID, a.Name, a.Status, a.TriggerType, triggerCfg,
		a.ActionType, actionCfg, filterCfg)
	if err != nil {
		return "", fmt.Errorf("create automation: %w", err)
	}
	return a.ID, nil
}

func (r *AutomationRepo) Update(ctx context.Context, clinicID, id string, u automation.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.TriggerType != nil {
		add("trigger_type", *u.TriggerType)
	}
	if u.TriggerConfig != nil {
		data, err := json.Marshal(*u.TriggerConfig)
		if err != nil {
			return fmt.Errorf("encode trigger_config: %w", err)
		}
		add("trigger_config", data)
	}
	if u.ActionType != nil {
		add("action_type", *u.ActionType)
	}
	if u.ActionConfig != nil {
		data, err := json.Marshal(*u.ActionConfig)
		if err != nil {
			return fmt.Errorf("encode action_config: %w", err)
		}
		add("action_config", data)
	}
	if u.FilterConfig != nil {
		data, err := json.Marshal(*u.FilterConfig)
		if err != nil {
			return fmt.Errorf("encode filter_config: %w", err)
		}
		add("filter_config", data)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = NOW()")
	q := fmt.Sprintf("UPDATE automations SET %s WHERE id = $%d AND clinic_id = $%d",
		joinComma(sets), idx, idx+1)
	args = append(args, id, clinicID)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update automation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return automation.ErrNotFound
	}
	return nil
}

func (r *AutomationRepo) Delete(ctx context.Context, clinicID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM automations
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID)
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return automation.ErrNotFound
	}
	return nil
}

func (r *AutomationRepo) UpdateStatus(ctx context.Context, clinicID, id string, status domain.AutomationStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automations SET status = $1, updated_at = NOW()
		WHERE id = $2 AND clinic_id = $3
	`, status, id, clinicID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return automation.ErrNotFound
	}
	return nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
