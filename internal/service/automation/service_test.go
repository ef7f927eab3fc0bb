package automation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/itgabriell/audicare-engine/internal/domain"
	"github.com/itgabriell/audicare-engine/internal/pkg/distlock"
	"github.com/itgabriell/audicare-engine/internal/service/automation"
	"github.com/itgabriell/audicare-engine/internal/trigger"
)

// memAutos is an in-memory automation repository for unit testing.
type memAutos struct {
	mu sync.Mutex
	m  map[string]*domain.Automation
}

func newMemAutos() *memAutos {
	return &memAutos{m: make(map[string]*domain.Automation)}
}

func (r *memAutos) Get(_ context.Context, clinicID, id string) (*domain.Automation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok || a.ClinicID != clinicID {
		return nil, automation.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAutos) List(_ context.Context, clinicID string, f automation.ListFilter) ([]domain.Automation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Automation
	for _, a := range r.m {
		if a.ClinicID != clinicID {
			continue
		}
		if f.Status != "" && string(a.Status) != f.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *memAutos) ListActive(_ context.Context) ([]domain.Automation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Automation
	for _, a := range r.m {
		if a.Status == domain.AutomationActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memAutos) ListCandidates(_ context.Context) ([]domain.Automation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Automation
	for _, a := range r.m {
		if a.Status == domain.AutomationActive && a.TriggerType != domain.TriggerManual {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memAutos) Create(_ context.Context, a *domain.Automation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		return "", fmt.Errorf("id required")
	}
	cp := *a
	r.m[cp.ID] = &cp
	return cp.ID, nil
}

func (r *memAutos) Update(_ context.Context, clinicID, id string, u automation.UpdateFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok || a.ClinicID != clinicID {
		return automation.ErrNotFound
	}
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.FilterConfig != nil {
		a.FilterConfig = *u.FilterConfig
	}
	return nil
}

func (r *memAutos) Delete(_ context.Context, clinicID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok || a.ClinicID != clinicID {
		return automation.ErrNotFound
	}
	delete(r.m, id)
	return nil
}

func (r *memAutos) UpdateStatus(_ context.Context, clinicID, id string, status domain.AutomationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok || a.ClinicID != clinicID {
		return automation.ErrNotFound
	}
	a.Status = status
	return nil
}

// memExecs is an in-memory execution repository.
type memExecs struct {
	mu    sync.Mutex
	execs map[string]*domain.Execution
	logs  []domain.ExecutionLog

	logErr error // injected AppendLog failure
}

func newMemExecs() *memExecs {
	return &memExecs{execs: make(map[string]*domain.Execution)}
}

func (r *memExecs) Create(_ context.Context, e *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.execs[cp.ID] = &cp
	return nil
}

func (r *memExecs) Complete(_ context.Context, id string, target, success, failure int, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return automation.ErrExecutionNotFound
	}
	e.Status = domain.ExecutionCompleted
	e.TargetCount = target
	e.SuccessCount = success
	e.FailureCount = failure
	e.CompletedAt = &completedAt
	return nil
}

func (r *memExecs) Fail(_ context.Context, id, errorMessage string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return automation.ErrExecutionNotFound
	}
	e.Status = domain.ExecutionFailed
	e.ErrorMessage = errorMessage
	e.CompletedAt = &completedAt
	return nil
}

func (r *memExecs) List(_ context.Context, automationID string, limit int) ([]domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Execution
	for _, e := range r.execs {
		if e.AutomationID == automationID {
			out = append(out, *e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memExecs) AppendLog(_ context.Context, l *domain.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logErr != nil {
		return r.logErr
	}
	r.logs = append(r.logs, *l)
	return nil
}

func (r *memExecs) Logs(_ context.Context, automationID, executionID string) ([]domain.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[executionID]
	if !ok || e.AutomationID != automationID {
		return nil, nil
	}
	var out []domain.ExecutionLog
	for _, l := range r.logs {
		if l.ExecutionID == executionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memExecs) AutomaticExecutionInWindow(_ context.Context, automationID string, from, to time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.execs {
		if e.AutomationID != automationID || e.ExecutionType != domain.ExecutionAutomatic {
			continue
		}
		if !e.ExecutedAt.Before(from) && e.ExecutedAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

// memRecipients serves a fixed recipient set.
type memRecipients struct {
	recipients []domain.Recipient
	err        error
	patients   bool // any patient created recently
}

func (r *memRecipients) Contacts(_ context.Context, _ string) ([]domain.Recipient, error) {
	return r.recipients, r.err
}

func (r *memRecipients) ContactsWithPatients(_ context.Context, _ string) ([]domain.Recipient, error) {
	return r.recipients, r.err
}

func (r *memRecipients) PatientCreatedSince(_ context.Context, _ string, _ time.Time) (bool, error) {
	return r.patients, nil
}

// fakeSender records gateway calls and can fail specific phones.
type fakeSender struct {
	mu    sync.Mutex
	calls []sentMessage
	fail  map[string]error
}

type sentMessage struct {
	phone, message, displayName string
}

func (f *fakeSender) Send(_ context.Context, phone, message, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[phone]; ok {
		return "", err
	}
	f.calls = append(f.calls, sentMessage{phone, message, displayName})
	return fmt.Sprintf("msg-%d", len(f.calls)), nil
}

// fakeLock is a process-local DistLock.
type fakeLock struct {
	mu      sync.Mutex
	held    bool
	extends int
}

func (l *fakeLock) Acquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Extend(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	return nil
}

func (l *fakeLock) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

const testClinic = "clinic-1"

type fixture struct {
	svc    *automation.Service
	autos  *memAutos
	execs  *memExecs
	recips *memRecipients
	sender *fakeSender
	lock   *fakeLock
}

func newFixture(recipients []domain.Recipient) *fixture {
	f := &fixture{
		autos:  newMemAutos(),
		execs:  newMemExecs(),
		recips: &memRecipients{recipients: recipients},
		sender: &fakeSender{fail: map[string]error{}},
		lock:   &fakeLock{},
	}
	f.svc = automation.NewService(f.autos, f.execs, f.recips, f.sender,
		func(string) distlock.DistLock { return f.lock })
	return f
}

func manualMessageAutomation(id, template string, filters []domain.FilterClause) *domain.Automation {
	return &domain.Automation{
		ID:           id,
		ClinicID:     testClinic,
		Name:         "Automation " + id,
		Status:       domain.AutomationActive,
		TriggerType:  domain.TriggerManual,
		ActionType:   domain.ActionMessage,
		ActionConfig: domain.ActionConfig{MessageTemplate: template},
		FilterConfig: filters,
	}
}

func TestExecuteZeroRecipients(t *testing.T) {
	f := newFixture(nil)
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi {{nome}}", nil))

	res, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !res.NoRecipients {
		t.Fatal("expected NoRecipients to be set")
	}
	if res.Message != "no recipients matched" {
		t.Fatalf("expected distinguishable message, got %q", res.Message)
	}
	e := res.Execution
	if e.Status != domain.ExecutionCompleted || e.TargetCount != 0 || e.SuccessCount != 0 || e.FailureCount != 0 {
		t.Fatalf("expected completed/0/0/0, got %s/%d/%d/%d", e.Status, e.TargetCount, e.SuccessCount, e.FailureCount)
	}
	if len(f.sender.calls) != 0 {
		t.Fatal("gateway must not be called with zero recipients")
	}
}

func TestExecuteExtendsLockOnLongRuns(t *testing.T) {
	var recipients []domain.Recipient
	for i := 0; i < 120; i++ {
		recipients = append(recipients, domain.Recipient{
			Contact: domain.Contact{Name: fmt.Sprintf("Contato %d", i), Phone: fmt.Sprintf("119%08d", i)},
		})
	}
	f := newFixture(recipients)
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi {{nome}}", nil))

	res, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Execution.SuccessCount != 120 {
		t.Fatalf("expected 120 sends, got %d", res.Execution.SuccessCount)
	}
	// 120 recipients at one extension per 50 means the TTL is re-armed twice.
	if f.lock.extends != 2 {
		t.Fatalf("expected 2 lock extensions, got %d", f.lock.extends)
	}
	if f.lock.held {
		t.Fatal("lock must be released after the run")
	}
}

func TestExecuteCountsWithGatewayFailures(t *testing.T) {
	recipients := []domain.Recipient{
		{Contact: domain.Contact{Name: "Maria", Phone: "11111111111"}},
		{Contact: domain.Contact{Name: "João", Phone: "22222222222"}},
		{Contact: domain.Contact{Name: "Ana", Phone: "33333333333"}},
		{Contact: domain.Contact{Name: "Caio", Phone: "44444444444"}},
	}
	f := newFixture(recipients)
	f.sender.fail["22222222222"] = errors.New("number not on whatsapp")
	f.sender.fail["44444444444"] = errors.New("bridge timeout")
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi {{nome}}", nil))

	res, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	e := res.Execution
	if e.TargetCount != 4 || e.SuccessCount != 2 || e.FailureCount != 2 {
		t.Fatalf("expected 4/2/2, got %d/%d/%d", e.TargetCount, e.SuccessCount, e.FailureCount)
	}

	logs, _ := f.execs.Logs(context.Background(), "a1", e.ID)
	if len(logs) != 4 {
		t.Fatalf("expected exactly one log row per recipient, got %d", len(logs))
	}
	var sent, failed int
	for _, l := range logs {
		switch l.Status {
		case domain.LogSent:
			sent++
			if l.MessageID == "" {
				t.Error("sent log row must carry a message id")
			}
		case domain.LogFailed:
			failed++
			if l.ErrorMessage == "" {
				t.Error("failed log row must carry the error message")
			}
		}
	}
	if sent != 2 || failed != 2 {
		t.Fatalf("expected 2 sent / 2 failed log rows, got %d/%d", sent, failed)
	}
}

func TestExecuteEndToEndRendersPerRecipient(t *testing.T) {
	recipients := []domain.Recipient{
		{Contact: domain.Contact{Name: "Maria", Phone: "11999998888"}},
		{Contact: domain.Contact{Name: "João", Phone: "11911112222"}},
	}
	f := newFixture(recipients)
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi {{nome}}", nil))

	res, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Execution.TargetCount != 2 {
		t.Fatalf("expected 2 targets, got %d", res.Execution.TargetCount)
	}

	if len(f.sender.calls) != 2 {
		t.Fatalf("expected 2 gateway calls, got %d", len(f.sender.calls))
	}
	want := map[string]string{
		"11999998888": "Oi Maria",
		"11911112222": "Oi João",
	}
	for _, call := range f.sender.calls {
		if call.message != want[call.phone] {
			t.Errorf("phone %s: expected message %q, got %q", call.phone, want[call.phone], call.message)
		}
	}
}

func TestExecuteFilterApplied(t *testing.T) {
	recipients := []domain.Recipient{
		{Contact: domain.Contact{Name: "Sem Telefone", Phone: ""}},
		{Contact: domain.Contact{Name: "Com Telefone", Phone: "11988887777"}},
	}
	f := newFixture(recipients)
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi {{nome}}", []domain.FilterClause{
		{Type: "has_phone", Operator: domain.OpEquals, Value: "true"},
	}))

	res, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Execution.TargetCount != 1 {
		t.Fatalf("expected 1 target, got %d", res.Execution.TargetCount)
	}
	if f.sender.calls[0].phone != "11988887777" {
		t.Fatalf("wrong recipient: %s", f.sender.calls[0].phone)
	}
}

func TestExecuteNotFound(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.Execute(context.Background(), testClinic, "missing", nil, domain.ExecutionManual)
	if !errors.Is(err, automation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutePaused(t *testing.T) {
	f := newFixture(nil)
	a := manualMessageAutomation("a1", "Oi", nil)
	a.Status = domain.AutomationPaused
	f.autos.Create(context.Background(), a)

	_, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if !errors.Is(err, automation.ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestExecuteEmailActionRejected(t *testing.T) {
	f := newFixture(nil)
	a := manualMessageAutomation("a1", "Oi", nil)
	a.ActionType = domain.ActionEmail
	f.autos.Create(context.Background(), a)

	_, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if !errors.Is(err, automation.ErrActionNotImplemented) {
		t.Fatalf("expected ErrActionNotImplemented, got %v", err)
	}
	if len(f.execs.execs) != 0 {
		t.Fatal("no execution row should be created for a rejected action")
	}
}

func TestExecuteLockHeld(t *testing.T) {
	f := newFixture(nil)
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi", nil))
	f.lock.held = true

	_, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if !errors.Is(err, automation.ErrExecutionInProgress) {
		t.Fatalf("expected ErrExecutionInProgress, got %v", err)
	}
	if len(f.execs.execs) != 0 {
		t.Fatal("no execution row should be created while locked")
	}
}

func TestExecuteRecipientFetchFailure(t *testing.T) {
	f := newFixture(nil)
	f.recips.err = errors.New("connection refused")
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi", nil))

	_, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	// The execution row exists and is terminally failed with the cause.
	var failed *domain.Execution
	for _, e := range f.execs.execs {
		failed = e
	}
	if failed == nil || failed.Status != domain.ExecutionFailed {
		t.Fatalf("expected failed execution row, got %+v", failed)
	}
	if failed.ErrorMessage == "" {
		t.Fatal("error_message must be populated")
	}
}

func TestExecuteLogWriteFailureEscalates(t *testing.T) {
	f := newFixture([]domain.Recipient{
		{Contact: domain.Contact{Name: "Maria", Phone: "11999998888"}},
	})
	f.execs.logErr = errors.New("disk full")
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi", nil))

	_, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual)
	if err == nil {
		t.Fatal("expected log write failure to escalate")
	}
}

func TestRunDueExecutesScheduledAutomations(t *testing.T) {
	f := newFixture([]domain.Recipient{
		{Contact: domain.Contact{Name: "Maria", Phone: "11999998888"}},
	})

	now := time.Now().UTC()
	at := now.Add(time.Minute)
	f.autos.Create(context.Background(), &domain.Automation{
		ID:            "sched-1",
		ClinicID:      testClinic,
		Name:          "Lembrete",
		Status:        domain.AutomationActive,
		TriggerType:   domain.TriggerScheduled,
		TriggerConfig: domain.TriggerConfig{ScheduledAt: &at},
		ActionType:    domain.ActionMessage,
		ActionConfig:  domain.ActionConfig{MessageTemplate: "Oi {{nome}}"},
	})
	f.autos.Create(context.Background(), manualMessageAutomation("manual-1", "Oi", nil))

	eval := trigger.NewEvaluator(f.execs, f.recips, 5*time.Minute, time.Hour)
	summary, err := f.svc.RunDue(context.Background(), eval, now)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}

	if summary.Total != 1 || summary.Successful != 1 || summary.Failed != 0 {
		t.Fatalf("expected 1/1/0, got %d/%d/%d", summary.Total, summary.Successful, summary.Failed)
	}

	// Second sweep inside the same window: the recorded automatic
	// execution acts as the fired marker, so nothing runs again.
	summary, err = f.svc.RunDue(context.Background(), eval, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("expected no due automations on second sweep, got %d", summary.Total)
	}
	if len(f.sender.calls) != 1 {
		t.Fatalf("expected exactly one dispatch across both sweeps, got %d", len(f.sender.calls))
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.Create(context.Background(), testClinic, automation.CreateInput{})
	if err == nil {
		t.Fatal("expected validation error for empty input")
	}

	_, err = f.svc.Create(context.Background(), testClinic, automation.CreateInput{
		Name:         "Bad filter",
		TriggerType:  domain.TriggerManual,
		ActionType:   domain.ActionMessage,
		ActionConfig: domain.ActionConfig{MessageTemplate: "Oi"},
		FilterConfig: []domain.FilterClause{{Type: "shoe_size", Operator: domain.OpEquals, Value: "42"}},
	})
	if !errors.Is(err, automation.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestCreateAndExecuteRoundTrip(t *testing.T) {
	f := newFixture([]domain.Recipient{
		{Contact: domain.Contact{Name: "Maria", Phone: "11999998888"}},
	})

	a, err := f.svc.Create(context.Background(), testClinic, automation.CreateInput{
		Name:         "Boas-vindas",
		TriggerType:  domain.TriggerManual,
		ActionType:   domain.ActionMessage,
		ActionConfig: domain.ActionConfig{MessageTemplate: "Bem-vinda, {{nome}}!"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.svc.Execute(context.Background(), testClinic, a.ID, nil, domain.ExecutionManual)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Execution.SuccessCount != 1 {
		t.Fatalf("expected 1 success, got %d", res.Execution.SuccessCount)
	}
	if f.sender.calls[0].message != "Bem-vinda, Maria!" {
		t.Fatalf("unexpected message: %q", f.sender.calls[0].message)
	}
}

func TestPauseBlocksExecution(t *testing.T) {
	f := newFixture(nil)
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi", nil))

	if err := f.svc.Pause(context.Background(), testClinic, "a1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual); !errors.Is(err, automation.ErrInactive) {
		t.Fatalf("expected ErrInactive after pause, got %v", err)
	}

	if err := f.svc.Activate(context.Background(), testClinic, "a1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := f.svc.Execute(context.Background(), testClinic, "a1", nil, domain.ExecutionManual); err != nil {
		t.Fatalf("expected execution after reactivation, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture([]domain.Recipient{
		{Contact: domain.Contact{Name: "Sem", Phone: ""}},
		{Contact: domain.Contact{Name: "Com", Phone: "11988887777"}},
	})
	f.autos.Create(context.Background(), manualMessageAutomation("a1", "Oi", []domain.FilterClause{
		{Type: "has_phone", Operator: domain.OpEquals, Value: "true"},
	}))

	res, err := f.svc.Preview(context.Background(), testClinic, "a1")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if res.Count != 1 || len(res.Sample) != 1 || res.Sample[0].Name != "Com" {
		t.Fatalf("unexpected preview: %+v", res)
	}
	if len(f.sender.calls) != 0 {
		t.Fatal("preview must not dispatch")
	}
}
