package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/itgabriell/audicare-engine/internal/pkg/httputil"
	"github.com/itgabriell/audicare-engine/internal/service/automation"
	"github.com/itgabriell/audicare-engine/internal/trigger"
)

// CronAPI exposes the endpoint the external scheduler calls to run due
// automations. It is not clinic-scoped: one sweep covers every clinic.
type CronAPI struct {
	svc       *automation.Service
	eval      *trigger.Evaluator
	secretKey string
}

// NewCronAPI creates the cron API handler. secretKey may be empty, which
// leaves the endpoint open (logged loudly at registration).
func NewCronAPI(svc *automation.Service, eval *trigger.Evaluator, secretKey string) *CronAPI {
	return &CronAPI{svc: svc, eval: eval, secretKey: secretKey}
}

// RegisterRoutes registers the cron routes.
func (api *CronAPI) RegisterRoutes(r chi.Router) {
	if api.secretKey == "" {
		log.Printf("[api.Cron] WARNING: CRON_SECRET_KEY not set, /execute-automatic is unauthenticated")
	}
	r.With(api.requireCronKey).Post("/automations/execute-automatic", api.HandleExecuteAutomatic)
}

// requireCronKey checks the Bearer token against the configured secret.
// With no secret configured the request passes through.
func (api *CronAPI) requireCronKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.secretKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(api.secretKey)) != 1 {
			httputil.Unauthorized(w, "invalid cron key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleExecuteAutomatic runs every automation whose trigger is due.
// POST /api/automations/execute-automatic
func (api *CronAPI) HandleExecuteAutomatic(w http.ResponseWriter, r *http.Request) {
	summary, err := api.svc.RunDue(r.Context(), api.eval, time.Now().UTC())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, summary)
}
