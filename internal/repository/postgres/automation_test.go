package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/itgabriell/audicare-engine/internal/domain"
	"github.com/itgabriell/audicare-engine/internal/service/automation"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func automationRows(t *testing.T, a domain.Automation) *sqlmock.Rows {
	t.Helper()
	triggerCfg, _ := json.Marshal(a.TriggerConfig)
	actionCfg, _ := json.Marshal(a.ActionConfig)
	filterCfg, _ := json.Marshal(a.FilterConfig)
	return sqlmock.NewRows([]string{
		"id", "clinic_id", "name", "status", "trigger_type",
		"trigger_config", "action_type", "action_config", "filter_config",
		"created_at", "updated_at",
	}).AddRow(
		a.ID, a.ClinicID, a.Name, a.Status, a.TriggerType,
		triggerCfg, a.ActionType, actionCfg, filterCfg,
		a.CreatedAt, a.UpdatedAt,
	)
}

func TestAutomationGet(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	want := domain.Automation{
		ID:          "a1",
		ClinicID:    "c1",
		Name:        "Lembrete de consulta",
		Status:      domain.AutomationActive,
		TriggerType: domain.TriggerManual,
		ActionType:  domain.ActionMessage,
		ActionConfig: domain.ActionConfig{
			MessageTemplate: "Oi {{nome}}, sua consulta é {{data_consulta}}",
		},
		FilterConfig: []domain.FilterClause{
			{Type: "has_phone", Operator: domain.OpEquals, Value: "true"},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}

	mock.ExpectQuery("SELECT (.+) FROM automations").
		WithArgs("a1", "c1").
		WillReturnRows(automationRows(t, want))

	repo := NewAutomationRepo(db)
	got, err := repo.Get(context.Background(), "c1", "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != want.Name || got.ActionConfig.MessageTemplate != want.ActionConfig.MessageTemplate {
		t.Errorf("unexpected automation: %+v", got)
	}
	if len(got.FilterConfig) != 1 || got.FilterConfig[0].Type != "has_phone" {
		t.Errorf("filter_config not decoded: %+v", got.FilterConfig)
	}
}

func TestAutomationGetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM automations").
		WithArgs("missing", "c1").
		WillReturnError(sql.ErrNoRows)

	repo := NewAutomationRepo(db)
	_, err := repo.Get(context.Background(), "c1", "missing")
	if !errors.Is(err, automation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAutomationListCandidatesExcludesManual(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	sched := domain.Automation{
		ID: "a1", ClinicID: "c1", Name: "Agendada",
		Status:      domain.AutomationActive,
		TriggerType: domain.TriggerScheduled,
		ActionType:  domain.ActionMessage,
	}
	mock.ExpectQuery("FROM automations\\s+WHERE status = 'active' AND trigger_type <> 'manual'").
		WillReturnRows(automationRows(t, sched))

	repo := NewAutomationRepo(db)
	got, err := repo.ListCandidates(context.Background())
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAutomationCreateEncodesConfigs(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	at := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	a := &domain.Automation{
		ClinicID:      "c1",
		Name:          "Aniversariantes",
		Status:        domain.AutomationActive,
		TriggerType:   domain.TriggerScheduled,
		TriggerConfig: domain.TriggerConfig{ScheduledAt: &at},
		ActionType:    domain.ActionMessage,
		ActionConfig:  domain.ActionConfig{MessageTemplate: "Parabéns, {{nome}}!"},
		FilterConfig: []domain.FilterClause{
			{Type: "birthday_today", Operator: domain.OpEquals, Value: "true"},
		},
	}

	mock.ExpectExec("INSERT INTO automations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAutomationRepo(db)
	id, err := repo.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAutomationUpdateNoFields(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// No fields set: no query should run.
	repo := NewAutomationRepo(db)
	if err := repo.Update(context.Background(), "c1", "a1", automation.UpdateFields{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAutomationUpdateNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	name := "Novo nome"
	mock.ExpectExec("UPDATE automations SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAutomationRepo(db)
	err := repo.Update(context.Background(), "c1", "a1", automation.UpdateFields{Name: &name})
	if !errors.Is(err, automation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAutomationUpdateStatus(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE automations SET status").
		WithArgs(string(domain.AutomationPaused), "a1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAutomationRepo(db)
	if err := repo.UpdateStatus(context.Background(), "c1", "a1", domain.AutomationPaused); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAutomationDeleteNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM automations").
		WithArgs("missing", "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAutomationRepo(db)
	err := repo.Delete(context.Background(), "c1", "missing")
	if !errors.Is(err, automation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
