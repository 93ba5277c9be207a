// Package upstream automates the portal's cookie-stateful HTML flows:
// CAS login, the registration sub-system warm-up, the LMS hand-off and
// the student JSON API.
package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Context is an automation context: a cookie-jar-bound HTTP client
// scoped to one authenticated identity. It lives only in process
// memory and is never serialized; after a restart callers must
// re-establish it.
type Context struct {
	client    *http.Client
	jar       http.CookieJar
	userAgent string
}

func NewContext(userAgent string, timeout time.Duration) (*Context, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Context{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		jar:       jar,
		userAgent: userAgent,
	}, nil
}

// GetPage fetches a page following redirects and returns the body and
// the final URL after all redirects.
func (c *Context) GetPage(ctx context.Context, rawURL string, headers map[string]string) (body, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	c.apply(req, headers)
	return c.do(req)
}

// PostForm submits an urlencoded form following redirects.
func (c *Context) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (body, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.apply(req, headers)
	return c.do(req)
}

// PostRaw posts a pre-encoded body, as the registration actions
// expect.
func (c *Context) PostRaw(ctx context.Context, rawURL, payload string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	c.apply(req, headers)
	body, _, err := c.do(req)
	return body, err
}

func (c *Context) apply(req *http.Request, headers map[string]string) {
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func (c *Context) do(req *http.Request) (string, string, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	return string(b), resp.Request.URL.String(), nil
}

// SeedCookies loads a stored "name=value; name=value" cookie string
// into the jar for the given origin, so a context can be rebuilt from
// a persisted session.
func (c *Context) SeedCookies(rawURL, cookie string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	var cookies []*http.Cookie
	for _, part := range strings.Split(cookie, ";") {
		name, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	c.jar.SetCookies(u, cookies)
	return nil
}

// CookieString joins the jar's cookies for the given URLs into a
// single header value, later URLs overriding earlier ones by name.
func (c *Context) CookieString(rawURLs ...string) string {
	seen := make(map[string]string)
	var order []string
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for _, ck := range c.jar.Cookies(u) {
			if _, ok := seen[ck.Name]; !ok {
				order = append(order, ck.Name)
			}
			seen[ck.Name] = ck.Value
		}
	}

	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, name+"="+seen[name])
	}
	return strings.Join(parts, "; ")
}

// ContextRegistry keys live automation contexts by an opaque string.
// It is intentionally not durable; callers must re-establish contexts
// after a process restart.
type ContextRegistry struct {
	mu sync.RWMutex
	m  map[string]*Context
}

func NewContextRegistry() *ContextRegistry {
	return &ContextRegistry{m: make(map[string]*Context)}
}

func (r *ContextRegistry) Get(key string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[key]
	return c, ok
}

func (r *ContextRegistry) Put(key string, c *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = c
}

func (r *ContextRegistry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, key)
}
