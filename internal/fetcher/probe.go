package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ProbeTarget is one page the cookie probe loads.
type ProbeTarget struct {
	Name string
	URL  string
	// Search pages must show result cards to count as healthy.
	Search bool
}

// DefaultProbeTargets checks search, hot list and home pages.
func DefaultProbeTargets() []ProbeTarget {
	return []ProbeTarget{
		{Name: "search", URL: DefaultSearchURL + "?q=" + url.QueryEscape("测试"), Search: true},
		{Name: "hot", URL: "https://s.weibo.com/top/summary"},
		{Name: "home", URL: "https://weibo.com"},
	}
}

// ProbeResult reports what one target returned.
type ProbeResult struct {
	Target     ProbeTarget
	FinalURL   string
	Status     int
	Length     int
	HasCards   bool
	NeedsLogin bool
	HasCaptcha bool
	Err        error
}

// Issue describes why the result is unhealthy, or "" when it is fine.
func (r ProbeResult) Issue() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("request failed: %v", r.Err)
	case r.NeedsLogin:
		return "login required"
	case r.HasCaptcha:
		return "captcha triggered"
	case r.Target.Search && !r.HasCards:
		return "no posts visible"
	case r.Status != http.StatusOK:
		return fmt.Sprintf("status %d", r.Status)
	}
	return ""
}

// Healthy reports whether every result is free of issues.
func Healthy(results []ProbeResult) bool {
	for _, r := range results {
		if r.Issue() != "" {
			return false
		}
	}
	return true
}

// Probe loads each target once, without retries, and inspects the page for
// result cards, login walls and captchas.
func (c *Client) Probe(ctx context.Context, targets []ProbeTarget) []ProbeResult {
	results := make([]ProbeResult, 0, len(targets))
	for _, t := range targets {
		results = append(results, c.probeOne(ctx, t))
	}
	return results
}

func (c *Client) probeOne(ctx context.Context, t ProbeTarget) ProbeResult {
	res := ProbeResult{Target: t}

	req, err := c.request(http.MethodGet, t.URL)(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	resp, err := c.http.HTTP.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		res.Err = err
		return res
	}
	text := string(body)
	lower := strings.ToLower(text)

	res.Status = resp.StatusCode
	res.FinalURL = resp.Request.URL.String()
	res.Length = len(body)
	res.HasCards = strings.Contains(text, "card-wrap")
	res.NeedsLogin = containsAny(strings.ToLower(res.FinalURL), "passport.weibo", "/login") ||
		containsAny(lower, lowerAll(LoginMarkers)...)
	res.HasCaptcha = containsAny(lower, lowerAll(CaptchaMarkers)...)
	return res
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
