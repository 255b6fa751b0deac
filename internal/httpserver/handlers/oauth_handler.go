package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/auth"
	"workflowai/internal/oauth"
)

const (
	stateCookie = "oauth_state"
	flagCookie  = "is_authenticated"
)

// CookieOptions controls the cookies set for browser sessions.
type CookieOptions struct {
	Secure     bool
	SessionTTL time.Duration
}

func (c CookieOptions) setSession(w http.ResponseWriter, token string) {
	maxAge := int(c.SessionTTL / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "Bearer " + token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	// readable by the frontend, carries no secret
	http.SetCookie(w, &http.Cookie{
		Name:     flagCookie,
		Value:    "true",
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieOptions) clearSession(w http.ResponseWriter) {
	for _, name := range []string{auth.SessionCookie, flagCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, Secure: c.Secure, SameSite: http.SameSiteLaxMode})
	}
}

func (c CookieOptions) setState(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int(oauth.StateTTL / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieOptions) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/api/auth/google", MaxAge: -1, HttpOnly: true, Secure: c.Secure, SameSite: http.SameSiteLaxMode})
}

func GoogleLogin(flow *oauth.Flow, cookies CookieOptions, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, redirect, err := flow.Begin(r.Context())
		if err != nil {
			respondError(w, r, lg, err)
			return
		}
		cookies.setState(w, state)
		http.Redirect(w, r, redirect, http.StatusFound)
	}
}

// GoogleCallback finishes sign-in, sets the session cookies and redirects to landing.
func GoogleCallback(flow *oauth.Flow, cookies CookieOptions, landing string, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" && q.Get("code") == "" {
			lg.Warnw("google returned an error", "error", e)
		}
		var cookieState string
		if c, err := r.Cookie(stateCookie); err == nil {
			cookieState = c.Value
		}

		_, tok, err := flow.Complete(r.Context(), q.Get("code"), q.Get("state"), cookieState)
		if err != nil {
			var ve *apperr.ValidationError
			if errors.As(err, &ve) {
				respondDetail(w, http.StatusBadRequest, ve.Msg)
				return
			}
			cookies.clearState(w)
			respondDetail(w, http.StatusUnauthorized, "Authentication failed")
			return
		}
		cookies.clearState(w)
		cookies.setSession(w, tok)
		http.Redirect(w, r, landing, http.StatusFound)
	}
}
