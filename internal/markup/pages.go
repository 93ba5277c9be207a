package markup

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Page scrapers for the registration sub-system. These are thin and
// deliberately forgiving: markup that does not match the expected
// shape yields empty or partial results, never an error.

// Period is one registration round row from the form page.
type Period struct {
	ID          int    `json:"id"`
	STT         int    `json:"stt"`
	Code        string `json:"code"`
	Description string `json:"description"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Status      string `json:"status"`
	HasResult   bool   `json:"hasResult"`
}

// Window is the open/close window resolved for a drawing.
type Window struct {
	Open bool   `json:"open"`
	From string `json:"from"`
	To   string `json:"to"`
}

// ClassGroup is one offered group of a course.
type ClassGroup struct {
	Code       string `json:"code"`
	Registered int    `json:"registered"`
	Capacity   int    `json:"capacity"`
	NLMHID     string `json:"nlmhId"`
}

// CourseRow is one table row of a result or search listing, with any
// action identifier the row's inline handlers expose.
type CourseRow struct {
	Cells    []string `json:"cells"`
	ActionID string   `json:"actionId,omitempty"`
}

var (
	periodRowRe = regexp.MustCompile(
		`<tr[^>]*onclick="ketQuaDangKyView\((\d+)[^"]*"[^>]*>\s*<td>(\d+)</td>\s*<td[^>]*>([^<]+)</td>\s*<td>([\s\S]*?)</td>\s*<td>([^<]+)</td>\s*<td>([^<]+)</td>`)

	tagRe      = regexp.MustCompile(`<[^>]+>`)
	trRe       = regexp.MustCompile(`(?i)<tr[^>]*>([\s\S]*?)</tr>`)
	itemCellRe = regexp.MustCompile(`(?i)<td class='item_list'[^>]*>([\s\S]*?)</td>`)
	hrRe       = regexp.MustCompile(`(?i)<hr\s*/?>`)

	cancelIDRe   = regexp.MustCompile(`xoaKetQuaDangKy\s*\(\s*(?:this\s*,\s*)?(\d+)`)
	courseIDRe   = regexp.MustCompile(`getThongTinNhomLopMonHoc\s*\(\s*(?:this\s*,\s*)?(\d+)`)
	groupBtnRe   = regexp.MustCompile(`dangKyNhomLopMonHoc\s*\(\s*this\s*,\s*(\d+)\s*,\s*(\d+)\s*\)`)
	slotsRe      = regexp.MustCompile(`(\d+)/(\d+)`)
	vnDateTimeRe = regexp.MustCompile(`\d{2}/\d{2}/\d{4}(?: \d{2}:\d{2})?`)
)

// ParseVNDate parses DD/MM/YYYY with an optional HH:mm part.
func ParseVNDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"02/01/2006 15:04", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Periods lists the registration rounds on the form page, newest
// first as the portal renders them.
func Periods(html string, now time.Time) []Period {
	var periods []Period
	for _, m := range periodRowRe.FindAllStringSubmatch(html, -1) {
		id, _ := strconv.Atoi(m[1])
		stt, _ := strconv.Atoi(m[2])
		desc := strings.TrimSpace(tagRe.ReplaceAllString(m[4], ""))
		startTime := strings.TrimSpace(m[5])
		endTime := strings.TrimSpace(m[6])

		status := "upcoming"
		start, okStart := ParseVNDate(startTime)
		end, okEnd := ParseVNDate(endTime)
		if okStart && okEnd {
			switch {
			case now.After(end):
				status = "closed"
			case !now.Before(start):
				status = "open"
			}
		}

		periods = append(periods, Period{
			ID:          id,
			STT:         stt,
			Code:        strings.TrimSpace(m[3]),
			Description: desc,
			StartTime:   startTime,
			EndTime:     endTime,
			Status:      status,
			HasResult:   strings.Contains(strings.ToLower(m[4]), "kết quả"),
		})
	}
	return periods
}

// RegistrationWindow reads the first two timestamps off the drawing
// schedule fragment and decides whether the window is open.
func RegistrationWindow(html string, now time.Time) *Window {
	stamps := vnDateTimeRe.FindAllString(tagRe.ReplaceAllString(html, " "), 2)
	if len(stamps) < 2 {
		return nil
	}
	w := &Window{From: stamps[0], To: stamps[1]}
	from, okFrom := ParseVNDate(w.From)
	to, okTo := ParseVNDate(w.To)
	if okFrom && okTo {
		w.Open = !now.Before(from) && !now.After(to)
	}
	return w
}

// tableRows yields the item_list cell values of every row carrying
// them, together with the raw row for action-id extraction.
func tableRows(html string) [][2]any {
	var out [][2]any
	for _, tr := range trRe.FindAllStringSubmatch(html, -1) {
		var cells []string
		for _, td := range itemCellRe.FindAllStringSubmatch(tr[1], -1) {
			cells = append(cells, strings.TrimSpace(tagRe.ReplaceAllString(td[1], "")))
		}
		if len(cells) > 0 {
			out = append(out, [2]any{cells, tr[0]})
		}
	}
	return out
}

// ResultRows lists currently registered courses; the action id is the
// result-row id used for cancellation.
func ResultRows(html string) []CourseRow {
	var rows []CourseRow
	for _, r := range tableRows(html) {
		row := CourseRow{Cells: r[0].([]string)}
		if m := cancelIDRe.FindStringSubmatch(r[1].(string)); m != nil {
			row.ActionID = m[1]
		}
		rows = append(rows, row)
	}
	return rows
}

// SearchRows lists course search matches; the action id is the course
// id used to look up class groups.
func SearchRows(html string) []CourseRow {
	var rows []CourseRow
	for _, r := range tableRows(html) {
		row := CourseRow{Cells: r[0].([]string)}
		if m := courseIDRe.FindStringSubmatch(r[1].(string)); m != nil {
			row.ActionID = m[1]
		}
		rows = append(rows, row)
	}
	return rows
}

// ClassGroups lists the offered groups of one course. Sections are
// separated by <hr> tags; a section without a recognizable header is
// skipped.
func ClassGroups(html string) []ClassGroup {
	var groups []ClassGroup
	for _, section := range hrRe.Split(html, -1) {
		cells := itemCellRe.FindAllStringSubmatch(section, -1)
		if len(cells) < 2 {
			continue
		}

		g := ClassGroup{Code: strings.TrimSpace(tagRe.ReplaceAllString(cells[0][1], ""))}

		if m := slotsRe.FindStringSubmatch(cells[1][1]); m != nil {
			g.Registered, _ = strconv.Atoi(m[1])
			g.Capacity, _ = strconv.Atoi(m[2])
		}
		if m := groupBtnRe.FindStringSubmatch(section); m != nil {
			g.NLMHID = m[1]
		}
		groups = append(groups, g)
	}
	return groups
}
