package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/models"
	"workflowai/internal/store"
)

type templateReq struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	RemoteWorkflowID string `json:"n8n_workflow_id"`
	Category         string `json:"category"`
}

func (t *templateReq) validate() error {
	t.Name = strings.TrimSpace(t.Name)
	t.RemoteWorkflowID = strings.TrimSpace(t.RemoteWorkflowID)
	if t.Name == "" {
		return apperr.Validation("Template name is required")
	}
	if t.RemoteWorkflowID == "" {
		return apperr.Validation("n8n_workflow_id is required")
	}
	return nil
}

func ListTemplates(templates store.Templates, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageFrom(r)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		list, err := templates.List(r.Context(), page)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, list)
	}
}

func GetTemplate(templates store.Templates, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := templates.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, t)
	}
}

func CreateTemplate(templates store.Templates, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, lg, err)
			return
		}
		if err := req.validate(); err != nil {
			respondError(w, r, lg, err)
			return
		}
		t := models.Template{Name: req.Name, Description: req.Description, RemoteWorkflowID: req.RemoteWorkflowID, Category: req.Category}
		if err := templates.Create(r.Context(), &t); err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, t)
	}
}

func UpdateTemplate(templates store.Templates, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, lg, err)
			return
		}
		if err := req.validate(); err != nil {
			respondError(w, r, lg, err)
			return
		}
		t, err := templates.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		t.Name, t.Description, t.RemoteWorkflowID, t.Category = req.Name, req.Description, req.RemoteWorkflowID, req.Category
		if err := templates.Save(r.Context(), t); err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, t)
	}
}

func DeleteTemplate(templates store.Templates, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := templates.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, map[string]string{"message": "Template deleted successfully"})
	}
}
