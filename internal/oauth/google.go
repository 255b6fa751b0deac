// Package oauth implements Google sign-in: authorization redirect, code
// exchange, and mapping the Google account to a local user.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"workflowai/internal/telemetry"
)

const (
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultTimeout     = 10 * time.Second
)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides, empty means Google's.
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// Timeout bounds each token and userinfo call when HTTPClient is nil.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// UserInfo is the subset of the Google profile used for account mapping.
type UserInfo struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	VerifiedEmail *bool  `json:"verified_email,omitempty"`
}

type Google struct {
	oc       *oauth2.Config
	userInfo string
	hc       *http.Client
}

func NewGoogle(cfg GoogleConfig) *Google {
	ep := endpoints.Google
	if cfg.AuthURL != "" {
		ep.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		ep.TokenURL = cfg.TokenURL
	}
	ep.AuthStyle = oauth2.AuthStyleInParams
	ui := cfg.UserInfoURL
	if ui == "" {
		ui = defaultUserInfoURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = telemetry.HTTPClient(&http.Client{Timeout: timeout})
	}
	return &Google{
		oc: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     ep,
		},
		userInfo: ui,
		hc:       hc,
	}
}

// AuthCodeURL is where the browser is sent to pick a Google account.
func (g *Google) AuthCodeURL(state string) string {
	return g.oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for the account's profile.
func (g *Google) Exchange(ctx context.Context, code string) (*UserInfo, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.hc)
	tok, err := g.oc.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("token endpoint: status %d: %s", re.Response.StatusCode, re.ErrorCode)
		}
		return nil, fmt.Errorf("token endpoint: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token endpoint returned no access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfo, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.oc.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo: status %d", resp.StatusCode)
	}
	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("userinfo: decode: %w", err)
	}
	info.Email = strings.ToLower(strings.TrimSpace(info.Email))
	if info.Email == "" {
		return nil, errors.New("userinfo: no email")
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return nil, errors.New("userinfo: email not verified")
	}
	return &info, nil
}
