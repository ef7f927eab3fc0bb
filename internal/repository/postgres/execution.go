package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/itgabriell/audicare-engine/internal/domain"
	"github.com/itgabriell/audicare-engine/internal/service/automation"
)

// ExecutionRepo implements automation.ExecutionRepository against PostgreSQL.
type ExecutionRepo struct{ db *sql.DB }

// NewExecutionRepo creates a Postgres-backed execution repository.
func NewExecutionRepo(db *sql.DB) *ExecutionRepo { return &ExecutionRepo{db: db} }

func (r *ExecutionRepo) Create(ctx context.Context, e *domain.Execution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_executions
			(id, automation_id, executed_by, execution_type, status,
			 target_count, success_count, failure_count, executed_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6)
	`, e.ID, e.AutomationID, e.ExecutedBy, e.ExecutionType, e.Status, e.ExecutedAt)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepo) Complete(ctx context.Context, id string, target, success, failure int, completedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_executions
		SET status = 'completed', target_count = $1, success_count = $2,
		    failure_count = $3, completed_at = $4
		WHERE id = $5 AND status = 'running'
	`, target, success, failure, completedAt, id)
	if err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return automation.ErrExecutionNotFound
	}
	return nil
}

func (r *ExecutionRepo) Fail(ctx context.Context, id, errorMessage string, completedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_executions
		SET status = 'failed', error_message = $1, completed_at = $2
		WHERE id = $3 AND status = 'running'
	`, errorMessage, completedAt, id)
	if err != nil {
		return fmt.Errorf("fail execution: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return automation.ErrExecutionNotFound
	}
	return nil
}

func (r *ExecutionRepo) List(ctx context.Context, automationID string, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, automation_id, executed_by, execution_type, status,
		       target_count, success_count, failure_count,
		       COALESCE(error_message,''), executed_at, completed_at
		FROM automation_executions
		WHERE automation_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, automationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		var e domain.Execution
		if err := rows.Scan(
			&e.ID, &e.AutomationID, &e.ExecutedBy, &e.ExecutionType, &e.Status,
			&e.TargetCount, &e.SuccessCount, &e.FailureCount,
			&e.ErrorMessage, &e.ExecutedAt, &e.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ExecutionRepo) AppendLog(ctx context.Context, l *domain.ExecutionLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_execution_logs
			(id, execution_id, target_phone, target_name, status,
			 message_id, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, l.ID, l.ExecutionID, l.TargetPhone, l.TargetName, l.Status,
		l.MessageID, l.ErrorMessage, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	return nil
}

func (r *ExecutionRepo) Logs(ctx context.Context, automationID, executionID string) ([]domain.ExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.execution_id, l.target_phone, l.target_name, l.status,
		       COALESCE(l.message_id,''), COALESCE(l.error_message,''), l.created_at
		FROM automation_execution_logs l
		JOIN automation_executions e ON e.id = l.execution_id
		WHERE l.execution_id = $1 AND e.automation_id = $2
		ORDER BY l.created_at ASC
	`, executionID, automationID)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionLog
	for rows.Next() {
		var l domain.ExecutionLog
		if err := rows.Scan(
			&l.ID, &l.ExecutionID, &l.TargetPhone, &l.TargetName, &l.Status,
			&l.MessageID, &l.ErrorMessage, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *ExecutionRepo) AutomaticExecutionInWindow(ctx context.Context, automationID string, from, to time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM automation_executions
			WHERE automation_id = $1 AND execution_type = 'automatic'
			  AND executed_at >= $2 AND executed_at < $3
		)
	`, automationID, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check execution window: %w", err)
	}
	return exists, nil
}
