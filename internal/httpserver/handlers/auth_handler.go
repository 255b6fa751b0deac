package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/auth"
)

func Root() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"message": "Welcome to WorkflowAI API"})
	}
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"status": "healthy"})
	}
}

// Login implements the OAuth2 password form: username carries the email.
func Login(svc *auth.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			respondDetail(w, http.StatusBadRequest, "Invalid form body")
			return
		}
		email, password := r.PostForm.Get("username"), r.PostForm.Get("password")
		if email == "" || password == "" {
			respondDetail(w, http.StatusBadRequest, "username and password are required")
			return
		}
		tok, u, err := svc.Login(r.Context(), email, password)
		if err != nil {
			if errors.Is(err, apperr.ErrAuthenticationFailed) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				respondDetail(w, http.StatusUnauthorized, "Incorrect username or password")
				return
			}
			respondError(w, r, lg, err)
			return
		}
		lg.Infow("login", "user_id", u.ID)
		respondJSON(w, map[string]string{"access_token": tok, "token_type": "bearer"})
	}
}

type signupReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func Signup(svc *auth.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, lg, err)
			return
		}
		u, err := svc.Signup(r.Context(), req.Email, req.Username, req.Password)
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		lg.Infow("user registered", "user_id", u.ID)
		respondJSON(w, u)
	}
}

func Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, auth.FromContext(r.Context()))
	}
}

// Logout empties the session slot and drops the browser cookies.
func Logout(svc *auth.Service, cookies CookieOptions, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := auth.FromContext(r.Context())
		if err := svc.Logout(r.Context(), u); err != nil {
			respondError(w, r, lg, err)
			return
		}
		cookies.clearSession(w)
		respondJSON(w, map[string]string{"message": "Logged out"})
	}
}
