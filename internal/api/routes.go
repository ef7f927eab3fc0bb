package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/itgabriell/audicare-engine/internal/pkg/httputil"
)

// Deps collects everything the router needs.
type Deps struct {
	Automations *AutomationAPI
	Cron        *CronAPI
	DB          *sql.DB
	Redis       *redis.Client // nil when Redis is not configured
}

// SetupRoutes builds the top-level router: middleware, CORS, the health
// endpoint and the /api route group.
func SetupRoutes(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*.audicare.app", "http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ClinicHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler(deps.DB, deps.Redis))

	r.Route("/api", func(r chi.Router) {
		deps.Cron.RegisterRoutes(r)
		deps.Automations.RegisterRoutes(r)
	})

	return r
}

// healthHandler reports process liveness plus dependency reachability.
// The endpoint stays 200 as long as the process serves; dependency state
// is informational.
func healthHandler(db *sql.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = "unreachable"
			} else {
				checks["database"] = "ok"
			}
		}
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unreachable"
			} else {
				checks["redis"] = "ok"
			}
		}

		httputil.OK(w, map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
			"checks": checks,
		})
	}
}
