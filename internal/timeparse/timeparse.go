// Package timeparse turns the relative and absolute timestamps shown on Weibo
// search results into absolute times.
package timeparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Sentinels the fetcher emits when a card had no timestamp.
const (
	UnknownTime   = "未知时间"
	UnknownTimeEN = "unknown time"
)

const (
	dateLayout   = "2006-01-02 15:04"
	clockLayout  = "15:04"
	shortDateLen = len("05-23 12:34")
	fullDateLen  = len("2024-05-23 12:34")
)

var (
	minutesAgoEN = regexp.MustCompile(`(?i)^(\S+)\s+minutes?\s+ago$`)
	hoursAgoEN   = regexp.MustCompile(`(?i)^(\S+)\s+hours?\s+ago$`)
)

// Normalize resolves raw against ref. It returns false when the string is
// empty, a sentinel, or not in a recognized format. It never reads the clock.
func Normalize(raw string, ref time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == UnknownTime || strings.EqualFold(s, UnknownTimeEN) {
		return time.Time{}, false
	}

	if n, ok, matched := relative(s, "分钟前", minutesAgoEN); matched {
		if !ok {
			return time.Time{}, false
		}
		return ago(ref, n, time.Minute)
	}

	if n, ok, matched := relative(s, "小时前", hoursAgoEN); matched {
		if !ok {
			return time.Time{}, false
		}
		return ago(ref, n, time.Hour)
	}

	if rest, ok := cutDayPrefix(s, "今天", "today"); ok {
		return atClock(ref, rest)
	}

	if rest, ok := cutDayPrefix(s, "昨天", "yesterday"); ok {
		t, ok := atClock(ref, rest)
		if !ok {
			return time.Time{}, false
		}
		return t.AddDate(0, 0, -1), true
	}

	if strings.Contains(s, "-") {
		switch utf8.RuneCountInString(s) {
		case shortDateLen:
			return parseDate(strconv.Itoa(ref.Year())+"-"+s, ref.Location())
		case fullDateLen:
			return parseDate(s, ref.Location())
		}
	}

	return time.Time{}, false
}

// relative matches "N<suffix>" or the English pattern. matched reports whether
// the input was of this form at all; ok reports whether N parsed.
func relative(s, suffix string, en *regexp.Regexp) (n int, ok bool, matched bool) {
	var digits string
	if rest, found := strings.CutSuffix(s, suffix); found {
		digits = strings.TrimSpace(rest)
	} else if m := en.FindStringSubmatch(s); m != nil {
		digits = m[1]
	} else {
		return 0, false, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false, true
	}
	return n, true, true
}

// ago subtracts n units from ref. Counts whose duration does not fit in a
// time.Duration are rejected.
func ago(ref time.Time, n int, unit time.Duration) (time.Time, bool) {
	if int64(n) > math.MaxInt64/int64(unit) {
		return time.Time{}, false
	}
	return ref.Add(-time.Duration(n) * unit), true
}

func cutDayPrefix(s, zh, en string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, zh); ok {
		return strings.TrimSpace(rest), true
	}
	if len(s) >= len(en) && strings.EqualFold(s[:len(en)], en) {
		return strings.TrimSpace(s[len(en):]), true
	}
	return "", false
}

// atClock places HH:MM on ref's calendar day with seconds zeroed.
func atClock(ref time.Time, clock string) (time.Time, bool) {
	c, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := ref.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, ref.Location()), true
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
