package logger

import "regexp"

// Masking helpers. Callers must reduce sensitive values with these
// before passing them to any log call; raw passwords, cookies and
// student identifiers never reach the log stream.

var (
	cookieValueRe = regexp.MustCompile(`=([^;]+)`)
	studentIDRe   = regexp.MustCompile(`masv=\d+`)
	jsessionRe    = regexp.MustCompile(`(?i)jsessionid=[^&;/]+`)
	sessionRe     = regexp.MustCompile(`(?i)SESSION=[^&;]+`)
)

// MaskSensitive keeps the first four characters of a secret and drops
// the rest.
func MaskSensitive(s string) string {
	const show = 4
	if len(s) <= show {
		return "***"
	}
	return s[:show] + "..."
}

// MaskStudentID keeps the first three and last two digits of a
// student identifier.
func MaskStudentID(id string) string {
	if len(id) <= 5 {
		return "***"
	}
	return id[:3] + "***" + id[len(id)-2:]
}

// MaskCookie hides cookie values while keeping cookie names visible.
func MaskCookie(cookie string) string {
	if cookie == "" {
		return "(empty)"
	}
	return cookieValueRe.ReplaceAllString(cookie, "=***")
}

// MaskURL scrubs query parameters that carry identifiers or session
// material.
func MaskURL(u string) string {
	if u == "" {
		return ""
	}
	u = studentIDRe.ReplaceAllString(u, "masv=***")
	u = jsessionRe.ReplaceAllString(u, "jsessionid=***")
	u = sessionRe.ReplaceAllString(u, "SESSION=***")
	return u
}
