package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trendscout.log")

	l, closer, err := NewLogger("debug", path)
	require.NoError(t, err)
	l.WithField("keyword", "A").Info("unit done")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "unit done")
	assert.Contains(t, string(data), "keyword=A")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestNewLogger_NoFile(t *testing.T) {
	l, closer, err := NewLogger("info", "")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.NoError(t, closer.Close())
}
