// Package registration drives the course-registration sub-system's
// implicit protocol: period selection, drawing resolution, schedule
// priming, search, register and cancel. The upstream speaks HTML and
// inline script, so every parsed value degrades to empty rather than
// failing when the markup drifts.
package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mybk-gateway/internal/config"
	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/markup"
	"mybk-gateway/internal/upstream"
)

// ErrNoLiveContext is the caller-visible signal to restart the
// workflow at period resolution.
var ErrNoLiveContext = errors.New("registration: resolve period first")

// Parsers are the injected page-to-record collaborators. A nil parser
// or a parser returning nothing is a normal outcome.
type Parsers struct {
	Results func(html string) any
	Window  func(html string, now time.Time) *markup.Window
	Search  func(html string) any
	Groups  func(html string) any
}

// DefaultParsers wires the bundled scrapers.
func DefaultParsers() Parsers {
	return Parsers{
		Results: func(html string) any { return markup.ResultRows(html) },
		Window:  markup.RegistrationWindow,
		Search:  func(html string) any { return markup.SearchRows(html) },
		Groups:  func(html string) any { return markup.ClassGroups(html) },
	}
}

// Driver walks the registration protocol on behalf of sessions,
// keeping resolved flows live in its registry.
type Driver struct {
	dkmh        config.DKMH
	userAgent   string
	timeout     time.Duration
	successCode string

	registry *Registry
	parsers  Parsers
	now      func() time.Time
}

func NewDriver(cfg config.Config, registry *Registry, parsers Parsers) *Driver {
	return &Driver{
		dkmh:        cfg.Upstream.DKMH,
		userAgent:   cfg.UserAgent,
		timeout:     cfg.UpstreamTimeout,
		successCode: cfg.RegisterSuccessCode,
		registry:    registry,
		parsers:     parsers,
		now:         time.Now,
	}
}

func (d *Driver) action(name string) string {
	return d.dkmh.ActionBase + "/" + name
}

func (d *Driver) baseHeaders() map[string]string {
	return map[string]string{
		"Origin":  originOf(d.dkmh.EntryURL),
		"Referer": d.dkmh.FormURL,
	}
}

// contextFromCookie rebuilds an automation context from a stored
// cookie string, seeding the jar for the registration origin.
func (d *Driver) contextFromCookie(cookie string) (*upstream.Context, error) {
	actx, err := upstream.NewContext(d.userAgent, d.timeout)
	if err != nil {
		return nil, err
	}
	if err := actx.SeedCookies(d.dkmh.EntryURL, cookie); err != nil {
		return nil, err
	}
	return actx, nil
}

// PeriodDetails is the outcome of resolving a period.
type PeriodDetails struct {
	PeriodID  string         `json:"periodId"`
	DrawingID string         `json:"drawingId"`
	Courses   any            `json:"courses"`
	Window    *markup.Window `json:"schedule,omitempty"`
}

// ResolvePeriod walks the resolution sequence for one period and
// retains the flow for subsequent search/register/cancel calls. When
// the drawing list carries no recognizable identifier pair, the period
// id itself serves as both, a degraded mode the upstream tolerates.
func (d *Driver) ResolvePeriod(ctx context.Context, token, dkmhCookie, periodID string) (*PeriodDetails, error) {
	actx, err := d.contextFromCookie(dkmhCookie)
	if err != nil {
		return nil, err
	}
	headers := d.baseHeaders()

	// Priming call; the upstream insists on seeing the period viewed
	// before it answers anything else.
	if _, err := actx.PostRaw(ctx, d.action("ketQuaDangKyView.action"), "hocKyId="+url.QueryEscape(periodID), headers); err != nil {
		return nil, fmt.Errorf("registration: priming period view: %w", err)
	}

	drawingHTML, err := actx.PostRaw(ctx, d.action("getDanhSachDotDK.action"), "hocKyId="+url.QueryEscape(periodID), headers)
	if err != nil {
		return nil, fmt.Errorf("registration: fetching drawing list: %w", err)
	}

	ownerID, drawingID, ok := markup.DrawingPair(drawingHTML)
	if !ok {
		logger.Warn("drawing pair not found, falling back to period id", map[string]any{
			"period": periodID,
		})
		ownerID, drawingID = periodID, periodID
	}

	scheduleHTML, err := actx.PostRaw(ctx, d.action("getLichDangKy.action"),
		"dotDKId="+url.QueryEscape(drawingID)+"&dotDKHocVienId="+url.QueryEscape(ownerID), headers)
	if err != nil {
		return nil, fmt.Errorf("registration: fetching schedule: %w", err)
	}

	var window *markup.Window
	if d.parsers.Window != nil {
		window = d.parsers.Window(scheduleHTML, d.now())
	}

	// Warm the course-list endpoint before asking for results.
	if _, err := actx.PostRaw(ctx, d.action("getDanhSachMonHocDangKy.action"), "dotDKId="+url.QueryEscape(drawingID), headers); err != nil {
		return nil, fmt.Errorf("registration: warming course list: %w", err)
	}

	resultsHTML, err := actx.PostRaw(ctx, d.action("getKetQuaDangKy.action"), "", headers)
	if err != nil {
		return nil, fmt.Errorf("registration: fetching results: %w", err)
	}

	flow := &Flow{
		Actx:      actx,
		PeriodID:  periodID,
		DrawingID: drawingID,
		OwnerID:   ownerID,
		Window:    window,
	}
	d.registry.Put(token, periodID, flow)

	return &PeriodDetails{
		PeriodID:  periodID,
		DrawingID: drawingID,
		Courses:   d.parseResults(resultsHTML),
		Window:    window,
	}, nil
}

// Search runs a free-text course search inside a resolved flow. Force
// mode skips the priming refresh when the caller knows upstream state
// is current.
func (d *Driver) Search(ctx context.Context, token, periodID, query string, force bool) (any, error) {
	flow, ok := d.registry.Get(token, periodID)
	if !ok {
		return nil, ErrNoLiveContext
	}
	headers := d.baseHeaders()

	if !force {
		if _, err := flow.Actx.PostRaw(ctx, d.action("getKetQuaDangKy.action"), "", headers); err != nil {
			return nil, fmt.Errorf("registration: priming search: %w", err)
		}
	}

	html, err := flow.Actx.PostRaw(ctx, d.action("searchMonHocDangKy.action"), "msmh="+url.QueryEscape(query), headers)
	if err != nil {
		return nil, fmt.Errorf("registration: searching: %w", err)
	}

	if d.parsers.Search == nil {
		return nil, nil
	}
	return d.parsers.Search(html), nil
}

// ClassGroups looks up the offered groups of one course.
func (d *Driver) ClassGroups(ctx context.Context, token, periodID, courseID string) (any, error) {
	flow, ok := d.registry.Get(token, periodID)
	if !ok {
		return nil, ErrNoLiveContext
	}

	html, err := flow.Actx.PostRaw(ctx, d.action("getThongTinNhomLopMonHoc.action"), "monHocId="+url.QueryEscape(courseID), d.baseHeaders())
	if err != nil {
		return nil, fmt.Errorf("registration: fetching class groups: %w", err)
	}

	if d.parsers.Groups == nil {
		return nil, nil
	}
	return d.parsers.Groups(html), nil
}

// Outcome is the structured result of a registration post. A non-nil
// Outcome with Success=false carries the upstream's own code and
// message.
type Outcome struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Register posts a registration for a class group. The response may
// open with a byte-order mark and is decoded defensively; the
// configured success code or force mode both count as success.
func (d *Driver) Register(ctx context.Context, token, periodID, groupID, courseID string, force bool) (*Outcome, error) {
	flow, ok := d.registry.Get(token, periodID)
	if !ok {
		return nil, ErrNoLiveContext
	}
	headers := d.baseHeaders()

	if courseID != "" && !force {
		if _, err := flow.Actx.PostRaw(ctx, d.action("getThongTinNhomLopMonHoc.action"), "monHocId="+url.QueryEscape(courseID), headers); err != nil {
			return nil, fmt.Errorf("registration: priming group info: %w", err)
		}
	}

	body, err := flow.Actx.PostRaw(ctx, d.action("dangKy.action"), "NLMHId="+url.QueryEscape(groupID), headers)
	if err != nil {
		return nil, fmt.Errorf("registration: registering: %w", err)
	}

	code, msg := decodeUpstreamResult(body)

	if code == d.successCode || force {
		if !force {
			// Refresh the result list so the next read reflects the
			// new registration.
			if _, err := flow.Actx.PostRaw(ctx, d.action("getKetQuaDangKy.action"), "", headers); err != nil {
				logger.Warn("result refresh after register failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
		return &Outcome{Success: true, Code: code, Message: msg}, nil
	}

	return &Outcome{Success: false, Code: code, Message: msg}, nil
}

// Result fetches and parses the current registration result set.
func (d *Driver) Result(ctx context.Context, token, periodID string) (any, error) {
	flow, ok := d.registry.Get(token, periodID)
	if !ok {
		return nil, ErrNoLiveContext
	}

	html, err := flow.Actx.PostRaw(ctx, d.action("getKetQuaDangKy.action"), "", d.baseHeaders())
	if err != nil {
		return nil, fmt.Errorf("registration: fetching results: %w", err)
	}
	return d.parseResults(html), nil
}

// Cancel removes one registration result row.
func (d *Driver) Cancel(ctx context.Context, token, periodID, resultID string) error {
	flow, ok := d.registry.Get(token, periodID)
	if !ok {
		return ErrNoLiveContext
	}

	if _, err := flow.Actx.PostRaw(ctx, d.action("xoaKetQuaDangKy.action"), "ketquaId="+url.QueryEscape(resultID), d.baseHeaders()); err != nil {
		return fmt.Errorf("registration: cancelling: %w", err)
	}
	return nil
}

// Periods lists the registration rounds visible on the form page.
// This needs only the stored cookie, not a resolved flow.
func (d *Driver) Periods(ctx context.Context, dkmhCookie string) ([]markup.Period, error) {
	actx, err := d.contextFromCookie(dkmhCookie)
	if err != nil {
		return nil, err
	}

	html, _, err := actx.GetPage(ctx, d.dkmh.FormURL, map[string]string{
		"Referer": d.dkmh.HomeURL,
		"Accept":  "text/html,application/xhtml+xml",
	})
	if err != nil {
		return nil, fmt.Errorf("registration: fetching periods: %w", err)
	}

	periods := markup.Periods(html, d.now())
	if len(periods) > 10 {
		periods = periods[:10]
	}
	return periods, nil
}

func (d *Driver) parseResults(html string) any {
	if d.parsers.Results == nil {
		return nil
	}
	return d.parsers.Results(html)
}

// decodeUpstreamResult strips an optional BOM and pulls code/msg out
// of the registration response. Unparseable bodies yield empty values,
// which read as failure unless force mode applies.
func decodeUpstreamResult(body string) (code, msg string) {
	body = strings.TrimPrefix(body, "\uFEFF")

	var result struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return "", ""
	}
	return result.Code, result.Msg
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
