package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = time.Date(2024, 5, 23, 12, 0, 0, 0, time.UTC)

func TestNormalize_RelativeOffsets(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"chinese minutes", "5分钟前", 5 * time.Minute},
		{"chinese minutes padded", " 45 分钟前 ", 45 * time.Minute},
		{"english minutes", "5 minutes ago", 5 * time.Minute},
		{"english singular minute", "1 minute ago", time.Minute},
		{"chinese hours", "3小时前", 3 * time.Hour},
		{"english hours", "23 hours ago", 23 * time.Hour},
		{"zero minutes", "0分钟前", 0},
		{"largest hour count", "2562047小时前", 2562047 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.input, ref)
			require.True(t, ok)
			assert.Equal(t, ref.Add(-tt.want), got)
		})
	}
}

func TestNormalize_FiveMinutesScenario(t *testing.T) {
	got, ok := Normalize("5分钟前", ref)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 23, 11, 55, 0, 0, time.UTC), got)
}

func TestNormalize_TodayYesterdayZeroSeconds(t *testing.T) {
	refWithSeconds := time.Date(2024, 5, 23, 12, 0, 37, 123456789, time.UTC)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"今天 09:15", time.Date(2024, 5, 23, 9, 15, 0, 0, time.UTC)},
		{"Today 09:15", time.Date(2024, 5, 23, 9, 15, 0, 0, time.UTC)},
		{"昨天 23:59", time.Date(2024, 5, 22, 23, 59, 0, 0, time.UTC)},
		{"yesterday 00:01", time.Date(2024, 5, 22, 0, 1, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := Normalize(tt.input, refWithSeconds)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, got.Second())
			assert.Zero(t, got.Nanosecond())
		})
	}
}

func TestNormalize_YesterdayAcrossMonthBoundary(t *testing.T) {
	first := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	got, ok := Normalize("昨天 10:30", first)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 29, 10, 30, 0, 0, time.UTC), got)
}

func TestNormalize_AbsoluteDates(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	local := time.Date(2024, 5, 23, 12, 0, 0, 0, shanghai)

	got, ok := Normalize("05-21 08:30", local)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 21, 8, 30, 0, 0, shanghai), got)

	got, ok = Normalize("2023-12-31 23:45", local)
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 45, 0, 0, shanghai), got)
}

func TestNormalize_Unrecognized(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		UnknownTime,
		"unknown time",
		"Unknown Time",
		"刚刚",
		"abc分钟前",
		"many minutes ago",
		"x小时前",
		"今天 25:00",
		"昨天 noon",
		"5-21 08:30",
		"2024/05/23 12:34",
		"2024-05-23T12:34",
		"02-30 10:00",
		"2024-05-23 12:34:56",
		"153722867280分钟前",
		"307445735分钟前",
		"2562048小时前",
		"9999999999999 hours ago",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, ok := Normalize(in, ref)
			assert.False(t, ok)
			assert.True(t, got.IsZero())
		})
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	a, okA := Normalize("3小时前", ref)
	b, okB := Normalize("3小时前", ref)
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a, b)
}
