package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/markup"
	"mybk-gateway/internal/session"
)

var (
	// ErrSSOExpired means the shared CAS ticket no longer
	// authenticates; the user must log in again.
	ErrSSOExpired = errors.New("upstream: sso session expired")

	// ErrLMSUnavailable covers a hand-off that completed but did not
	// yield a usable messaging session.
	ErrLMSUnavailable = errors.New("upstream: lms session not established")
)

// LoginLMS rides an existing SSO automation context through the LMS
// CAS service URL. The ticket cookie in the jar authenticates
// silently; the landing page carries the session key and user id the
// message API needs.
func (g *Gateway) LoginLMS(ctx context.Context, actx *Context) (*session.LMSSession, error) {
	loginURL := g.up.LoginPage + "?service=" + url.QueryEscape(g.up.LMS.ServiceURL)

	html, finalURL, err := actx.GetPage(ctx, loginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: lms hand-off: %w", err)
	}

	if g.onLoginPage(finalURL) {
		return nil, ErrSSOExpired
	}

	sesskey, userID, ok := markup.LMSSessionInfo(html)
	if !ok {
		logger.Warn("could not extract lms session key", map[string]any{
			"html_length": len(html),
		})
		return nil, ErrLMSUnavailable
	}

	cookie := actx.CookieString(g.up.LMS.BaseURL)
	if !strings.Contains(cookie, "MoodleSession") {
		logger.Warn("lms session cookie missing after hand-off", nil)
		return nil, ErrLMSUnavailable
	}

	logger.Info("lms session established", map[string]any{
		"sesskey": logger.MaskSensitive(sesskey),
	})

	return &session.LMSSession{
		Cookie:  cookie,
		Sesskey: sesskey,
		UserID:  userID,
	}, nil
}

// lmsCall invokes one method of the LMS ajax service and unwraps its
// single-element array envelope.
func (g *Gateway) lmsCall(ctx context.Context, lms *session.LMSSession, method string, args map[string]any) (json.RawMessage, error) {
	callURL := fmt.Sprintf("%s?sesskey=%s&info=%s", g.up.LMS.AjaxURL, url.QueryEscape(lms.Sesskey), method)

	payload, err := json.Marshal([]map[string]any{{
		"index":      0,
		"methodname": method,
		"args":       args,
	}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", lms.Cookie)
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Origin", g.up.LMS.BaseURL)
	req.Header.Set("Referer", g.up.LMS.BaseURL+"/message/")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := g.api.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: lms api returned %d", resp.StatusCode)
	}

	var envelope []struct {
		Error     bool `json:"error"`
		Exception *struct {
			Message string `json:"message"`
		} `json:"exception"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("upstream: lms response not json: %w", err)
	}
	if len(envelope) == 0 {
		return nil, fmt.Errorf("upstream: empty lms response")
	}
	if envelope[0].Error {
		msg := "unknown error"
		if envelope[0].Exception != nil {
			msg = envelope[0].Exception.Message
		}
		return nil, fmt.Errorf("upstream: lms error: %s", msg)
	}
	return envelope[0].Data, nil
}

func lmsUserID(lms *session.LMSSession) int {
	var id int
	fmt.Sscanf(lms.UserID, "%d", &id)
	return id
}

// Conversations lists private-message conversations for the session's
// user.
func (g *Gateway) Conversations(ctx context.Context, lms *session.LMSSession, limit, offset int) (json.RawMessage, error) {
	if lms.UserID == "" {
		return nil, ErrLMSUnavailable
	}
	return g.lmsCall(ctx, lms, "core_message_get_conversations", map[string]any{
		"userid":     lmsUserID(lms),
		"type":       1,
		"limitnum":   limit,
		"limitfrom":  offset,
		"favourites": false,
		"mergeself":  true,
	})
}

// ConversationMessages fetches one conversation's messages, newest
// first.
func (g *Gateway) ConversationMessages(ctx context.Context, lms *session.LMSSession, conversationID, limit, offset int) (json.RawMessage, error) {
	if lms.UserID == "" {
		return nil, ErrLMSUnavailable
	}
	return g.lmsCall(ctx, lms, "core_message_get_conversation_messages", map[string]any{
		"currentuserid": lmsUserID(lms),
		"convid":        conversationID,
		"newest":        true,
		"limitnum":      limit,
		"limitfrom":     offset,
	})
}

// UnreadCount returns the unread conversation counters.
func (g *Gateway) UnreadCount(ctx context.Context, lms *session.LMSSession) (json.RawMessage, error) {
	if lms.UserID == "" {
		return nil, ErrLMSUnavailable
	}
	return g.lmsCall(ctx, lms, "core_message_get_unread_conversation_counts", map[string]any{
		"userid": lmsUserID(lms),
	})
}
