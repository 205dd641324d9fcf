package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Units.WithLabelValues("keywords", "ok").Inc()
	m.Units.WithLabelValues("keywords", "ok").Inc()
	m.Units.WithLabelValues("keywords", "failed").Inc()
	m.Posts.WithLabelValues(StageFetched).Add(20)
	m.MediaDownloads.Add(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Units.WithLabelValues("keywords", "ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Units.WithLabelValues("keywords", "failed")), 1e-9)
	assert.InDelta(t, 20, testutil.ToFloat64(m.Posts.WithLabelValues(StageFetched)), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(m.MediaDownloads), 1e-9)
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Posts.WithLabelValues(StageRetained).Add(4)
	m.LastRun.Set(1716465600)

	path := filepath.Join(t.TempDir(), "results", "metrics_20240523_120000.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `trendscout_posts_total{stage="retained"} 4`)
	assert.Contains(t, string(data), "# TYPE trendscout_last_run_timestamp_seconds gauge")
}
