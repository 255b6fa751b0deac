package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/auth"
	"workflowai/internal/workflows"
)

func ListWorkflows(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageFrom(r)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		list, err := svc.List(r.Context(), auth.FromContext(r.Context()).ID, page)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, list)
	}
}

func CreateWorkflow(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in workflows.CreateInput
		if err := decodeJSON(r, &in); err != nil {
			respondError(w, r, lg, err)
			return
		}
		wf, err := svc.Create(r.Context(), auth.FromContext(r.Context()).ID, in)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, wf)
	}
}

func GetWorkflow(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wf, err := svc.Get(r.Context(), auth.FromContext(r.Context()).ID, chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, wf)
	}
}

func UpdateWorkflow(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in workflows.UpdateInput
		if err := decodeJSON(r, &in); err != nil {
			respondError(w, r, lg, err)
			return
		}
		wf, err := svc.Update(r.Context(), auth.FromContext(r.Context()).ID, chi.URLParam(r, "id"), in)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, wf)
	}
}

func DeleteWorkflow(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), auth.FromContext(r.Context()).ID, chi.URLParam(r, "id")); err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, map[string]string{"message": "Workflow deleted successfully"})
	}
}

// ExecuteWorkflow forwards the request body, if any, as the run payload.
func ExecuteWorkflow(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			respondError(w, r, lg, apperr.Validation("Invalid request body"))
			return
		}
		var payload json.RawMessage
		if len(body) > 0 {
			if !json.Valid(body) {
				respondError(w, r, lg, apperr.Validation("Request body must be JSON"))
				return
			}
			payload = body
		}
		res, err := svc.Execute(r.Context(), auth.FromContext(r.Context()).ID, chi.URLParam(r, "id"), payload)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, res)
	}
}

func WorkflowExecutions(svc *workflows.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageFrom(r)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		logs, err := svc.Executions(r.Context(), auth.FromContext(r.Context()).ID, chi.URLParam(r, "id"), page)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, logs)
	}
}
