package upstream

import (
	"context"
	"errors"
	"fmt"

	"mybk-gateway/internal/logger"
)

// ErrRegistrationUnavailable means the registration sub-system bounced
// one of the warm-up hops back to SSO; the session never became
// usable.
var ErrRegistrationUnavailable = errors.New("upstream: registration sub-system unavailable")

// RegistrationLogin is the outcome of the registration-flavoured SSO
// flow. The automation context must stay live for the workflow driver
// to reuse.
type RegistrationLogin struct {
	Cookie string
	Actx   *Context
}

// LoginRegistration repeats the CAS exchange against the registration
// service URL and walks the three warm-up hops (entry, home, form)
// that establish server-side state before the registration form is
// usable. Redirecting back to SSO on any hop is a hard failure.
func (g *Gateway) LoginRegistration(ctx context.Context, username, password string) (*RegistrationLogin, error) {
	actx, _, err := g.casSubmit(ctx, username, password, g.up.DKMH.ServiceURL)
	if err != nil {
		return nil, err
	}

	hops := []struct {
		url     string
		referer string
	}{
		{g.up.DKMH.EntryURL, g.up.DKMH.ServiceURL},
		{g.up.DKMH.HomeURL, g.up.DKMH.EntryURL},
		{g.up.DKMH.FormURL, g.up.DKMH.HomeURL},
	}

	for _, hop := range hops {
		_, finalURL, err := actx.GetPage(ctx, hop.url, map[string]string{
			"Accept":  "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Referer": hop.referer,
		})
		if err != nil {
			return nil, fmt.Errorf("upstream: registration warm-up: %w", err)
		}
		if g.onLoginPage(finalURL) {
			logger.Warn("registration warm-up redirected to sso", map[string]any{
				"hop": logger.MaskURL(hop.url),
			})
			return nil, ErrRegistrationUnavailable
		}
	}

	cookie := actx.CookieString(g.up.LoginPage, g.up.DKMH.EntryURL, originOf(g.up.DKMH.EntryURL))

	return &RegistrationLogin{
		Cookie: cookie,
		Actx:   actx,
	}, nil
}
