package auth

import (
	"net/http"

	"workflowai/internal/apperr"
)

// RequireActive rejects deactivated accounts. It must run after Authenticate.
func RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := FromContext(r.Context())
		if u == nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, apperr.Message(apperr.ErrAuthenticationFailed))
			return
		}
		if !u.IsActive {
			writeDetail(w, http.StatusBadRequest, apperr.Message(apperr.ErrInactiveUser))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin allows only active administrators through.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireActive(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).IsAdmin {
			writeDetail(w, http.StatusForbidden, apperr.Message(apperr.ErrPermissionDenied))
			return
		}
		next.ServeHTTP(w, r)
	}))
}
