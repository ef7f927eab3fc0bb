package api

import (
	"context"
	"net/http"

	"github.com/itgabriell/audicare-engine/internal/pkg/httputil"
)

// ClinicContextKey is the context key for the authenticated clinic ID.
type ClinicContextKey struct{}

// ClinicHeader carries the clinic scope on every tenant-bound request.
const ClinicHeader = "X-Clinic-ID"

// RequireClinic extracts the clinic ID from the request header and stores it
// in the context. Requests without a clinic scope are rejected.
func RequireClinic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clinicID := r.Header.Get(ClinicHeader)
		if clinicID == "" {
			httputil.Unauthorized(w, "clinic context required")
			return
		}
		ctx := context.WithValue(r.Context(), ClinicContextKey{}, clinicID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clinicID returns the clinic scope set by RequireClinic.
func clinicID(r *http.Request) string {
	id, _ := r.Context().Value(ClinicContextKey{}).(string)
	return id
}
