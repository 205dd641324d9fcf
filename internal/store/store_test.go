package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/trendscout/internal/types"
)

func TestEncodeCSVWritesBOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeCSV(&buf, []string{"keyword", "content"}, [][]string{{"猫", "a, b"}}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\ufeff"), "missing byte-order mark")
	assert.Equal(t, "\ufeffkeyword,content\n猫,\"a, b\"\n", out)
}

func TestWriteCSVCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "x.csv")
	require.NoError(t, WriteCSV(path, []string{"a"}, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\ufeffa\n", string(data))
}

func TestAnalysisRoundTrip(t *testing.T) {
	third := 1.0 / 3
	tenths := 0.1 + 0.2
	in := &types.AnalysisResult{
		Keyword:       "演唱会",
		OriginalCount: 3,
		FilteredCount: 2,
		FilteredPosts: []types.Post{
			{ID: "1", Content: "<b>现场</b>", ContentScore: &third},
			{ID: "2", Content: "返场", ContentScore: &tenths},
		},
		TrendingTopics: []types.TrendingTopic{
			{Label: "周杰伦", Score: 200.0 / 3, PostCount: 1},
			{Label: "返场", Score: 0.1 + 0.7, PostCount: 2},
		},
	}
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, WriteAnalysis(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<b>现场</b>")
	assert.Contains(t, string(raw), "\n  \"original_count\": 3")
	assert.Contains(t, string(raw), `"keyword": "周杰伦"`)

	out, err := ReadAnalysis(path)
	require.NoError(t, err)
	assert.Equal(t, in.TrendingTopics, out.TrendingTopics)
	require.Len(t, out.FilteredPosts, 2)
	assert.Equal(t, third, *out.FilteredPosts[0].ContentScore)
	assert.Equal(t, tenths, *out.FilteredPosts[1].ContentScore)
	assert.Equal(t, in, out)
}

func TestResultPaths(t *testing.T) {
	p := ResultPaths{Dir: "results", Stamp: Stamp(time.Date(2024, 5, 23, 9, 4, 5, 0, time.UTC))}
	assert.Equal(t, "20240523_090405", p.Stamp)
	assert.Equal(t, filepath.Join("results", "a_b_20240523_090405.csv"), p.KeywordCSV("a/b"))
	assert.Equal(t, filepath.Join("results", "猫_analysis_20240523_090405.json"), p.KeywordAnalysis("猫"))
	assert.Equal(t, filepath.Join("results", "all_results_20240523_090405.csv"), p.Aggregate(ModeKeywords))
	assert.Equal(t, filepath.Join("results", "gallery_20240523_090405.html"), p.Gallery(ModeKeywords))
	assert.Equal(t, filepath.Join("results", "metrics_20240523_090405.prom"), p.Metrics(ModeKeywords))
}

func TestResultPaths_ModesDoNotShareFiles(t *testing.T) {
	p := ResultPaths{Dir: "results", Stamp: "20240523_090405"}
	assert.Equal(t, filepath.Join("results", "all_results_users_20240523_090405.csv"), p.Aggregate(ModeUsers))
	assert.Equal(t, filepath.Join("results", "gallery_users_20240523_090405.html"), p.Gallery(ModeUsers))
	assert.Equal(t, filepath.Join("results", "metrics_users_20240523_090405.prom"), p.Metrics(ModeUsers))

	assert.NotEqual(t, p.Aggregate(ModeKeywords), p.Aggregate(ModeUsers))
	assert.NotEqual(t, p.Gallery(ModeKeywords), p.Gallery(ModeUsers))
	assert.NotEqual(t, p.Metrics(ModeKeywords), p.Metrics(ModeUsers))
}

func TestSafeName(t *testing.T) {
	for in, want := range map[string]string{
		"猫":        "猫",
		"AC/DC":    "AC_DC",
		` a\b:c `: "a_b_c",
		".":        "_",
		"..":       "__",
		"../..":    ".._..",
		"...":      "___",
		"":         "_",
		"v1.2":     "v1.2",
	} {
		got := SafeName(in)
		assert.Equal(t, want, got, "SafeName(%q)", in)
		assert.Equal(t, got, filepath.Base(got), "SafeName(%q) is not a single element", in)
		assert.NotEqual(t, "..", got)
	}
}

func TestStepCache(t *testing.T) {
	c := NewStepCache(t.TempDir())
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	_, err := SaveStepOutput(c, StepFetched, "cats", []string{"old"})
	require.NoError(t, err)
	path, err := SaveStepOutput(c, StepFetched, "cats", []string{"new"})
	require.NoError(t, err)

	got, from, err := LoadLatestStepOutput[[]string](c, StepFetched)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, got)
	assert.Equal(t, path, from)

	_, _, err = LoadLatestStepOutput[[]string](c, StepAnalysis)
	assert.Error(t, err)
}

func TestNilStepCache(t *testing.T) {
	var c *StepCache
	path, err := SaveStepOutput(c, StepFetched, "x", 1)
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = SaveLLMExchange(c, LLMExchange{Provider: "claude"})
	require.NoError(t, err)
	assert.Empty(t, path)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunHistory(t *testing.T) {
	s := openTestStore(t)
	started := time.Date(2024, 5, 23, 9, 0, 0, 0, time.UTC)

	first, err := s.StartRun(ModeKeywords, "20240523_090000", started)
	require.NoError(t, err)
	assert.Len(t, first.ID, 36)

	second, err := s.StartRun(ModeUsers, "20240523_100000", started.Add(time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	require.NoError(t, s.RecordUnit(UnitRecord{RunID: first.ID, Unit: "cats", Status: "ok", Posts: 4, Duration: 1500 * time.Millisecond}))
	require.NoError(t, s.RecordUnit(UnitRecord{RunID: first.ID, Unit: "dogs", Status: "failed", Reason: "boom"}))

	first.Units, first.OK, first.Failed, first.Posts = 2, 1, 1, 4
	first.FinishedAt = started.Add(time.Minute)
	require.NoError(t, s.FinishRun(first))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.True(t, runs[0].FinishedAt.IsZero())

	got := runs[1]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, ModeKeywords, got.Mode)
	assert.Equal(t, 2, got.Units)
	assert.Equal(t, 1, got.Failed)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(first.FinishedAt))

	units, err := s.RunUnits(first.ID)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "cats", units[0].Unit)
	assert.Equal(t, 1500*time.Millisecond, units[0].Duration)
	assert.Equal(t, "boom", units[1].Reason)
}

func TestSavePostsUpserts(t *testing.T) {
	s := openTestStore(t)
	score := 85.0

	require.NoError(t, s.SavePosts("run-1", []types.Post{{ID: "p1", Keyword: "cats", Attitudes: 10, ContentScore: &score}}))
	require.NoError(t, s.SavePosts("run-1", []types.Post{{ID: "p1", Keyword: "cats", Attitudes: 11}}))
	require.NoError(t, s.SavePosts("run-2", []types.Post{{ID: "p1", Keyword: "cats", Attitudes: 20}}))

	rec, err := s.GetPost("p1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 20, rec.Attitudes)
	assert.Equal(t, 2, rec.TimesSeen)
	assert.Equal(t, "run-2", rec.LastRunID)
	require.NotNil(t, rec.ContentScore)
	assert.InDelta(t, 85, *rec.ContentScore, 1e-9)

	exists, err := s.PostExists("p1")
	require.NoError(t, err)
	assert.True(t, exists)

	missing, err := s.GetPost("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMediaStats(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string, n int) {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, make([]byte, n), 0644))
	}
	write("cats/image_1_100.jpg", 10)
	write("cats/image_2_100.png", 5)
	write("cats/video_1_100.mp4", 100)
	write("dogs/notes.txt", 1)
	write("stray.jpg", 1)

	stats, err := MediaStats(dir)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, MediaStat{Keyword: "cats", Images: 2, Videos: 1, Bytes: 115}, stats[0])
	assert.Equal(t, 3, stats[0].Files())
	assert.Equal(t, 1, stats[1].Other)

	none, err := MediaStats(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
