package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"workflowai/internal/auth"
	"workflowai/internal/workflows"
)

// MyLogs returns the caller's execution logs, newest first.
func MyLogs(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageFrom(r)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		logs, err := svc.Logs(r.Context(), auth.FromContext(r.Context()).ID, page)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, logs)
	}
}

// GetLog returns one log, refreshed from the engine when possible.
func GetLog(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := svc.RefreshLog(r.Context(), auth.FromContext(r.Context()).ID, chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, l)
	}
}
