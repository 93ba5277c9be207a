// Package markup holds the pattern matching the automation core needs
// to drive the portal: anti-forgery tokens on the CAS form, the bearer
// token buried in the post-login page, and the identifiers embedded in
// inline script calls. The upstream HTML is not contractually stable,
// so every extractor reports absence instead of failing.
package markup

import "regexp"

var (
	executionRe = regexp.MustCompile(`name="execution"\s+value="([^"]+)"`)
	ltRe        = regexp.MustCompile(`name="lt"\s+value="([^"]+)"`)

	hiddenTokenRe = regexp.MustCompile(`id="hid_Token"\s+value="([^"]+)"`)
	localStoreRe  = regexp.MustCompile(`localStorage\.setItem\(['"]token['"]\s*,\s*['"]([^'"]+)['"]`)
	windowTokenRe = regexp.MustCompile(`window\.token\s*=\s*['"]([^'"]+)['"]`)
	rawJWTRe      = regexp.MustCompile(`eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`)

	drawingPairRe = regexp.MustCompile(`getLichDangKyByDotDKId\s*\(\s*this\s*,\s*(\d+)\s*,\s*(\d+)`)

	sesskeyJSONRe = regexp.MustCompile(`"sesskey"\s*:\s*"([^"]+)"`)
	sesskeyAttrRe = regexp.MustCompile(`name="sesskey"\s+value="([^"]+)"`)
	useridJSONRe  = regexp.MustCompile(`"userid"\s*:\s*"?(\d+)"?`)
	useridAttrRe  = regexp.MustCompile(`data-userid="(\d+)"`)
)

// CASFormTokens pulls the anti-forgery "execution" and "lt" values off
// the CAS login form. Both must be present for the form to be usable.
func CASFormTokens(html string) (execution, lt string, ok bool) {
	em := executionRe.FindStringSubmatch(html)
	lm := ltRe.FindStringSubmatch(html)
	if em == nil || lm == nil {
		return "", "", false
	}
	return em[1], lm[1], true
}

// BearerToken scans a post-login page for an embedded token, trying
// the hidden-input pattern first and falling back to inline script
// assignments and finally a raw JWT literal. Not finding one is
// tolerated by callers.
func BearerToken(html string) (string, bool) {
	for _, re := range []*regexp.Regexp{hiddenTokenRe, localStoreRe, windowTokenRe} {
		if m := re.FindStringSubmatch(html); m != nil {
			return m[1], true
		}
	}
	if m := rawJWTRe.FindString(html); m != "" {
		return m, true
	}
	return "", false
}

// DrawingPair resolves the owner-id/drawing-id pair from the inline
// script call embedded in the drawing list for a period.
func DrawingPair(html string) (ownerID, drawingID string, ok bool) {
	m := drawingPairRe.FindStringSubmatch(html)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// LMSSessionInfo extracts the messaging session key and user id from
// the LMS landing page. The user id is optional.
func LMSSessionInfo(html string) (sesskey, userID string, ok bool) {
	if m := sesskeyJSONRe.FindStringSubmatch(html); m != nil {
		sesskey = m[1]
	} else if m := sesskeyAttrRe.FindStringSubmatch(html); m != nil {
		sesskey = m[1]
	}
	if sesskey == "" {
		return "", "", false
	}

	if m := useridJSONRe.FindStringSubmatch(html); m != nil {
		userID = m[1]
	} else if m := useridAttrRe.FindStringSubmatch(html); m != nil {
		userID = m[1]
	}
	return sesskey, userID, true
}
