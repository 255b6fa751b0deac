package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/auth"
	"workflowai/internal/store"
)

func ListUsers(users store.Users, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageFrom(r)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		list, err := users.List(r.Context(), page)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		respondJSON(w, list)
	}
}

// UpdateUser toggles is_active and is_admin. Deactivating a user also ends
// their session. Admins cannot change their own flags.
func UpdateUser(users store.Users, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req struct {
			IsActive *bool `json:"is_active"`
			IsAdmin  *bool `json:"is_admin"`
		}
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, lg, err)
			return
		}
		if id == auth.FromContext(r.Context()).ID {
			respondError(w, r, lg, apperr.Validation("Cannot change your own account flags"))
			return
		}
		u, err := users.ByID(r.Context(), id)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
			if !u.IsActive {
				u.Token = ""
			}
		}
		if req.IsAdmin != nil {
			u.IsAdmin = *req.IsAdmin
		}
		if err := users.Save(r.Context(), u); err != nil {
			respondError(w, r, lg, err)
			return
		}
		lg.Infow("user flags updated", "user_id", u.ID, "is_active", u.IsActive, "is_admin", u.IsAdmin,
			"by", auth.FromContext(r.Context()).ID)
		respondJSON(w, u)
	}
}
