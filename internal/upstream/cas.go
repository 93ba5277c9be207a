package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mybk-gateway/internal/config"
	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/markup"
)

var (
	// ErrFormUnavailable means the CAS form could not be loaded or was
	// missing its anti-forgery tokens. Distinct from bad credentials.
	ErrFormUnavailable = errors.New("upstream: sso login form unavailable")

	// ErrCredentialRejected means CAS bounced the submission back to
	// its own login page.
	ErrCredentialRejected = errors.New("upstream: credentials rejected")
)

// Gateway exchanges a username/password pair for upstream cookie
// sessions. It is stateless between invocations; every login flow gets
// a fresh automation context.
type Gateway struct {
	up        config.Upstream
	userAgent string
	timeout   time.Duration

	// api is the bare client used for JSON API calls, where cookies
	// are passed explicitly instead of through a jar.
	api *http.Client
}

func NewGateway(cfg config.Config) *Gateway {
	return &Gateway{
		up:        cfg.Upstream,
		userAgent: cfg.UserAgent,
		timeout:   cfg.UpstreamTimeout,
		api:       &http.Client{Timeout: cfg.UpstreamTimeout},
	}
}

// LoginResult carries everything a successful CAS login produced. The
// automation context holds the SSO ticket cookie and is reused for
// cross-service hand-offs (LMS).
type LoginResult struct {
	Cookie  string
	Bearer  string
	Profile json.RawMessage
	Actx    *Context
}

// Login drives the CAS form for the main portal service and verifies
// the harvested session against the student-info endpoint. A failed
// verification is recorded but does not fail the login; the cookies
// may still be valid for other sub-systems.
func (g *Gateway) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	actx, body, err := g.casSubmit(ctx, username, password, g.up.ServiceURL)
	if err != nil {
		return nil, err
	}

	var bearer string
	if tok, ok := markup.BearerToken(body); ok {
		bearer = "Bearer " + tok
	} else {
		logger.Info("no bearer token found on post-login page", nil)
	}

	cookie := actx.CookieString(g.up.ServiceURL)

	profile, refreshedBearer, err := g.fetchStudentInfo(ctx, cookie, bearer)
	if err != nil {
		logger.Warn("student-info verification failed", map[string]any{
			"error": err.Error(),
		})
	} else if refreshedBearer != "" {
		bearer = refreshedBearer
	}

	return &LoginResult{
		Cookie:  cookie,
		Bearer:  bearer,
		Profile: profile,
		Actx:    actx,
	}, nil
}

// casSubmit performs the shared CAS steps: load the form, extract the
// anti-forgery tokens, submit credentials, classify by final redirect
// location. Returns the live context and the post-login page body.
func (g *Gateway) casSubmit(ctx context.Context, username, password, serviceURL string) (*Context, string, error) {
	actx, err := NewContext(g.userAgent, g.timeout)
	if err != nil {
		return nil, "", err
	}

	loginURL := g.up.LoginPage + "?service=" + url.QueryEscape(serviceURL)

	html, _, err := actx.GetPage(ctx, loginURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("upstream: fetching login form: %w", err)
	}

	execution, lt, ok := markup.CASFormTokens(html)
	if !ok {
		logger.Warn("could not parse sso login form", map[string]any{
			"html_length": len(html),
		})
		return nil, "", ErrFormUnavailable
	}

	form := url.Values{
		"username":  {username},
		"password":  {password},
		"execution": {execution},
		"_eventId":  {"submit"},
		"lt":        {lt},
		"submit":    {"Login"},
	}

	body, finalURL, err := actx.PostForm(ctx, loginURL, form, nil)
	if err != nil {
		return nil, "", fmt.Errorf("upstream: submitting credentials: %w", err)
	}

	logger.Info("cas login submitted", map[string]any{
		"final_url": logger.MaskURL(finalURL),
	})

	if g.onLoginPage(finalURL) {
		return nil, "", ErrCredentialRejected
	}

	return actx, body, nil
}

// onLoginPage reports whether a final redirect location landed back on
// the CAS login page.
func (g *Gateway) onLoginPage(finalURL string) bool {
	marker := g.up.LoginPage
	marker = strings.TrimPrefix(marker, "https://")
	marker = strings.TrimPrefix(marker, "http://")
	return strings.Contains(finalURL, marker)
}

// fetchStudentInfo calls the lightweight who-am-I endpoint with the
// harvested credentials. It also picks up a bearer token the API may
// hand back in a response header.
func (g *Gateway) fetchStudentInfo(ctx context.Context, cookie, bearer string) (json.RawMessage, string, error) {
	infoURL := g.up.StudentAPI + "/v1/student/get-student-info?null"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, "", err
	}
	g.applyAPIHeaders(req, cookie, bearer)

	resp, err := g.api.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("upstream: student-info returned %d", resp.StatusCode)
	}

	var payload struct {
		Code json.RawMessage `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("upstream: student-info response not json: %w", err)
	}

	refreshed := resp.Header.Get("Authorization")

	if !codeOK(payload.Code) {
		return nil, refreshed, fmt.Errorf("upstream: student-info denied: %s", payload.Msg)
	}
	if payload.Data != nil {
		return payload.Data, refreshed, nil
	}
	return nil, refreshed, nil
}

func (g *Gateway) applyAPIHeaders(req *http.Request, cookie, bearer string) {
	origin := originOf(g.up.ServiceURL)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Referer", origin+"/app/")
	req.Header.Set("Origin", origin)
	req.Header.Set("Cookie", cookie)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
}

// FetchJSON proxies an authenticated GET against the student API and
// returns the raw JSON body.
func (g *Gateway) FetchJSON(ctx context.Context, rawURL, cookie, bearer string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	g.applyAPIHeaders(req, cookie, bearer)

	resp, err := g.api.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("upstream: invalid response: %w", err)
	}
	return data, nil
}

// StudentAPI exposes the configured API base for URL construction by
// callers.
func (g *Gateway) StudentAPI() string {
	return g.up.StudentAPI
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// codeOK accepts a missing code, "200" or 200 as success, matching
// the portal's inconsistent typing.
func codeOK(code json.RawMessage) bool {
	if len(code) == 0 {
		return true
	}
	var s string
	if json.Unmarshal(code, &s) == nil {
		return s == "200"
	}
	var n float64
	if json.Unmarshal(code, &n) == nil {
		return n == 200
	}
	return false
}
