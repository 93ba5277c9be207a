package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Session is the stored state for one authenticated portal identity.
// The token that addresses it is random and never derivable from any
// of these fields.
type Session struct {
	Username string `json:"username"`

	// Cookie is the MyBK app cookie string harvested at login.
	Cookie string `json:"cookie"`
	// BearerToken is the optional token scraped from the post-login
	// page, including the "Bearer " prefix.
	BearerToken string `json:"bearer_token,omitempty"`

	// Profile is the raw student-info record returned by the
	// verification call, when it succeeded.
	Profile json.RawMessage `json:"profile,omitempty"`

	// DKMHCookie is filled in by the background registration login.
	DKMHCookie   string `json:"dkmh_cookie,omitempty"`
	DKMHLoggedIn bool   `json:"dkmh_logged_in"`

	// LMS is populated lazily the first time a messaging feature is
	// used.
	LMS *LMSSession `json:"lms,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// LMSSession holds the learning-management sub-system credentials.
type LMSSession struct {
	Cookie  string `json:"cookie"`
	Sesskey string `json:"sesskey"`
	UserID  string `json:"user_id"`
}

// RefreshCredential lets a "remember me" caller re-authenticate
// without re-entering a password. It is stored sealed and consumed at
// most once per attempt.
type RefreshCredential struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateToken generates a cryptographically secure opaque token.
// 32 bytes = 256 bits of entropy.
func GenerateToken() (string, error) {

	const size = 32 // 256 bits

	b := make([]byte, size)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("session: failed to generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
