package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCASFormTokens(t *testing.T) {
	html := `<form id="fm1" action="/cas/login" method="post">
		<input type="hidden" name="lt" value="LT-42-abcdef" />
		<input type="hidden" name="execution" value="e1s1" />
		<input type="hidden" name="_eventId" value="submit" />
	</form>`

	execution, lt, ok := CASFormTokens(html)
	assert.True(t, ok)
	assert.Equal(t, "e1s1", execution)
	assert.Equal(t, "LT-42-abcdef", lt)
}

func TestCASFormTokensMissing(t *testing.T) {
	cases := map[string]string{
		"empty page":     `<html><body>maintenance</body></html>`,
		"lt only":        `<input name="lt" value="LT-1" />`,
		"execution only": `<input name="execution" value="e1s1" />`,
	}
	for name, html := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, ok := CASFormTokens(html)
			assert.False(t, ok)
		})
	}
}

func TestBearerTokenHiddenInput(t *testing.T) {
	html := `<input type="hidden" id="hid_Token" value="tok-hidden" />`
	token, ok := BearerToken(html)
	assert.True(t, ok)
	assert.Equal(t, "tok-hidden", token)
}

func TestBearerTokenFallbacks(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{"localStorage", `<script>localStorage.setItem('token', 'tok-local');</script>`, "tok-local"},
		{"window assignment", `<script>window.token = "tok-window";</script>`, "tok-window"},
		{"raw jwt", `<script>var t = "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjMifQ.c2ln";</script>`, "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjMifQ.c2ln"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, ok := BearerToken(tc.html)
			assert.True(t, ok)
			assert.Equal(t, tc.want, token)
		})
	}
}

func TestBearerTokenPrefersHiddenInput(t *testing.T) {
	html := `<input id="hid_Token" value="tok-primary" />
		<script>localStorage.setItem('token', 'tok-fallback');</script>`
	token, ok := BearerToken(html)
	assert.True(t, ok)
	assert.Equal(t, "tok-primary", token)
}

func TestBearerTokenAbsent(t *testing.T) {
	_, ok := BearerToken(`<html><body>nothing here</body></html>`)
	assert.False(t, ok)
}

func TestDrawingPair(t *testing.T) {
	html := `<a href="#" onclick="getLichDangKyByDotDKId(this, 123, 4567)">xem lịch</a>`
	owner, drawing, ok := DrawingPair(html)
	assert.True(t, ok)
	assert.Equal(t, "123", owner)
	assert.Equal(t, "4567", drawing)
}

func TestDrawingPairAbsent(t *testing.T) {
	_, _, ok := DrawingPair(`<div>Chưa có lịch đăng ký</div>`)
	assert.False(t, ok)
}

func TestLMSSessionInfo(t *testing.T) {
	html := `<script>M.cfg = {"wwwroot":"https:\/\/lms.example.edu","sesskey":"AbCd1234","userid":"98765"};</script>`
	sesskey, userID, ok := LMSSessionInfo(html)
	assert.True(t, ok)
	assert.Equal(t, "AbCd1234", sesskey)
	assert.Equal(t, "98765", userID)
}

func TestLMSSessionInfoAttrFallback(t *testing.T) {
	html := `<form><input type="hidden" name="sesskey" value="FormKey99" /></form>
		<div data-userid="4242"></div>`
	sesskey, userID, ok := LMSSessionInfo(html)
	assert.True(t, ok)
	assert.Equal(t, "FormKey99", sesskey)
	assert.Equal(t, "4242", userID)
}

func TestLMSSessionInfoMissingUserID(t *testing.T) {
	sesskey, userID, ok := LMSSessionInfo(`{"sesskey":"OnlyKey"}`)
	assert.True(t, ok)
	assert.Equal(t, "OnlyKey", sesskey)
	assert.Empty(t, userID)
}

func TestLMSSessionInfoAbsent(t *testing.T) {
	_, _, ok := LMSSessionInfo(`<html>logged out</html>`)
	assert.False(t, ok)
}
