package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/itgabriell/audicare-engine/internal/domain"
	"github.com/itgabriell/audicare-engine/internal/pkg/httputil"
	"github.com/itgabriell/audicare-engine/internal/service/automation"
)

// AutomationAPI provides the HTTP handlers for the automation engine.
type AutomationAPI struct {
	svc *automation.Service
}

// NewAutomationAPI creates the automation API handler.
func NewAutomationAPI(svc *automation.Service) *AutomationAPI {
	return &AutomationAPI{svc: svc}
}

// RegisterRoutes registers the clinic-scoped automation routes.
func (api *AutomationAPI) RegisterRoutes(r chi.Router) {
	r.Route("/automations", func(r chi.Router) {
		r.Use(RequireClinic)

		r.Get("/", api.HandleList)
		r.Post("/", api.HandleCreate)
		r.Get("/active", api.HandleListActive)

		r.Route("/{automationID}", func(r chi.Router) {
			r.Get("/", api.HandleGet)
			r.Put("/", api.HandleUpdate)
			r.Delete("/", api.HandleDelete)
			r.Post("/pause", api.HandlePause)
			r.Post("/activate", api.HandleActivate)
			r.Post("/execute", api.HandleExecute)
			r.Post("/preview", api.HandlePreview)
			r.Get("/executions", api.HandleListExecutions)
			r.Get("/executions/{executionID}/logs", api.HandleExecutionLogs)
		})
	})
}

// HandleList returns the clinic's automations.
// GET /api/automations?status=&trigger_type=
func (api *AutomationAPI) HandleList(w http.ResponseWriter, r *http.Request) {
	f := automation.ListFilter{
		Status:      r.URL.Query().Get("status"),
		TriggerType: r.URL.Query().Get("trigger_type"),
	}
	autos, err := api.svc.List(r.Context(), clinicID(r), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if autos == nil {
		autos = []domain.Automation{}
	}
	httputil.OK(w, map[string]interface{}{
		"automations": autos,
		"total":       len(autos),
	})
}

// HandleListActive returns every active automation for the clinic's view.
// GET /api/automations/active
func (api *AutomationAPI) HandleListActive(w http.ResponseWriter, r *http.Request) {
	autos, err := api.svc.List(r.Context(), clinicID(r), automation.ListFilter{
		Status: string(domain.AutomationActive),
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if autos == nil {
		autos = []domain.Automation{}
	}
	httputil.OK(w, map[string]interface{}{
		"automations": autos,
		"total":       len(autos),
	})
}

// HandleGet returns a single automation.
// GET /api/automations/{automationID}
func (api *AutomationAPI) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, err := api.svc.Get(r.Context(), clinicID(r), chi.URLParam(r, "automationID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, a)
}

// HandleCreate creates a new automation in active status.
// POST /api/automations
func (api *AutomationAPI) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input automation.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	a, err := api.svc.Create(r.Context(), clinicID(r), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, a)
}

// HandleUpdate modifies an automation's mutable fields.
// PUT /api/automations/{automationID}
func (api *AutomationAPI) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name          *string                `json:"name"`
		TriggerType   *domain.TriggerType    `json:"trigger_type"`
		TriggerConfig *domain.TriggerConfig  `json:"trigger_config"`
		ActionType    *domain.ActionType     `json:"action_type"`
		ActionConfig  *domain.ActionConfig   `json:"action_config"`
		FilterConfig  *[]domain.FilterClause `json:"filter_config"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	err := api.svc.Update(r.Context(), clinicID(r), chi.URLParam(r, "automationID"), automation.UpdateFields{
		Name:          input.Name,
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		ActionType:    input.ActionType,
		ActionConfig:  input.ActionConfig,
		FilterConfig:  input.FilterConfig,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{})
}

// HandleDelete removes an automation and its execution history.
// DELETE /api/automations/{automationID}
func (api *AutomationAPI) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Delete(r.Context(), clinicID(r), chi.URLParam(r, "automationID")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// HandlePause transitions an automation to paused.
// POST /api/automations/{automationID}/pause
func (api *AutomationAPI) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Pause(r.Context(), clinicID(r), chi.URLParam(r, "automationID")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"status": domain.AutomationPaused})
}

// HandleActivate transitions an automation back to active.
// POST /api/automations/{automationID}/activate
func (api *AutomationAPI) HandleActivate(w http.ResponseWriter, r *http.Request) {
	if err := api.svc.Activate(r.Context(), clinicID(r), chi.URLParam(r, "automationID")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"status": domain.AutomationActive})
}

// HandleExecute runs an automation on demand. The caller must identify the
// acting user; executions started here are recorded as manual.
// POST /api/automations/{automationID}/execute
func (api *AutomationAPI) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var input struct {
		UserID string `json:"user_id"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.UserID == "" {
		httputil.BadRequest(w, "user_id is required")
		return
	}

	res, err := api.svc.Execute(r.Context(), clinicID(r), chi.URLParam(r, "automationID"),
		&input.UserID, domain.ExecutionManual)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandlePreview evaluates the automation's filter without sending anything.
// POST /api/automations/{automationID}/preview
func (api *AutomationAPI) HandlePreview(w http.ResponseWriter, r *http.Request) {
	res, err := api.svc.Preview(r.Context(), clinicID(r), chi.URLParam(r, "automationID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleListExecutions returns an automation's recent executions.
// GET /api/automations/{automationID}/executions?limit=
func (api *AutomationAPI) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	execs, err := api.svc.Executions(r.Context(), clinicID(r), chi.URLParam(r, "automationID"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	httputil.OK(w, map[string]interface{}{
		"executions": execs,
		"total":      len(execs),
	})
}

// HandleExecutionLogs returns the per-recipient log rows of one execution.
// GET /api/automations/{automationID}/executions/{executionID}/logs
func (api *AutomationAPI) HandleExecutionLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := api.svc.ExecutionLogs(r.Context(), clinicID(r),
		chi.URLParam(r, "automationID"), chi.URLParam(r, "executionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.ExecutionLog{}
	}
	httputil.OK(w, map[string]interface{}{
		"logs":  logs,
		"total": len(logs),
	})
}

// writeServiceError maps service errors onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrNotFound),
		errors.Is(err, automation.ErrExecutionNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, automation.ErrInactive),
		errors.Is(err, automation.ErrValidation),
		errors.Is(err, automation.ErrInvalidFilter),
		errors.Is(err, automation.ErrActionNotImplemented):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, automation.ErrExecutionInProgress):
		httputil.Error(w, http.StatusConflict, "execution_in_progress", err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
