package portal

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Period identifies an academic year (its starting calendar year) and term.
type Period struct {
	Year int `json:"year"`
	Term int `json:"term"`
}

// TermSummer is the July-August term. The portal has no documented summer
// term, so requests for it may come back empty.
const TermSummer = 3

// AcademicPeriodAt derives the portal year/term for t observed in loc.
// September..December is term 1 of the current year, January..June term 2 of
// the previous year and July..August the summer term of the previous year.
func AcademicPeriodAt(t time.Time, loc *time.Location) Period {
	if loc != nil {
		t = t.In(loc)
	}
	month := t.Month()
	switch {
	case month >= time.September:
		return Period{Year: t.Year(), Term: 1}
	case month <= time.June:
		return Period{Year: t.Year() - 1, Term: 2}
	default:
		return Period{Year: t.Year() - 1, Term: TermSummer}
	}
}

// FetchTimetable posts the schedule request for period with the session
// cookies and returns the raw body whatever the status. A transport failure
// yields an empty string, which the parser reports as "table not found".
func (c *Client) FetchTimetable(ctx context.Context, cookies map[string]string, period Period) string {
	form := url.Values{
		"mod":     {"schedule"},
		"ajx":     {"1"},
		"action":  {"showSchedule"},
		"year":    {strconv.Itoa(period.Year)},
		"term":    {strconv.Itoa(period.Term)},
		"type":    {c.cfg.ScheduleType},
		"details": {strconv.Itoa(c.cfg.ScheduleDetails)},
	}
	// cache buster: the field name is the timestamp, the value is empty
	form.Set(strconv.FormatInt(c.now().UnixMilli(), 10), "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ScheduleURL, strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Sugar().Warnw("build timetable request", "error", err)
		return ""
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setBrowserHeaders(req)
	if c.cfg.Origin != "" {
		req.Header.Set("Origin", c.cfg.Origin)
	}
	if c.cfg.ProbeURL != "" {
		req.Header.Set("Referer", c.cfg.ProbeURL)
	}
	addCookies(req, cookies)

	start := time.Now()
	resp, err := c.httpClient(nil, false).Do(req)
	if err != nil {
		c.observe("timetable", 0, start)
		c.logger.Sugar().Warnw("portal timetable request failed", "year", period.Year, "term", period.Term, "error", err)
		return ""
	}
	defer resp.Body.Close()
	c.observe("timetable", resp.StatusCode, start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Sugar().Warnw("read timetable response", "status", resp.StatusCode, "error", err)
		return ""
	}
	c.logger.Sugar().Debugw("portal timetable fetched", "status", resp.StatusCode, "bytes", len(body), "year", period.Year, "term", period.Term)
	return string(body)
}
