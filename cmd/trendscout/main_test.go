package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/trendscout/internal/app"
	"github.com/ibeckermayer/trendscout/internal/auth"
	"github.com/ibeckermayer/trendscout/internal/config"
	"github.com/ibeckermayer/trendscout/internal/logging"
	"github.com/ibeckermayer/trendscout/internal/store"
	"github.com/ibeckermayer/trendscout/internal/types"
)

// writeConfig saves a default config whose log file and outputs live in a
// temp dir, and returns its path.
func writeConfig(t *testing.T, edit func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Log.File = filepath.Join(dir, "trendscout.log")
	cfg.Output.ResultsDir = filepath.Join(dir, "results")
	cfg.Output.MediaDir = filepath.Join(dir, "media")
	cfg.Output.HistoryDB = filepath.Join(dir, "history.db")
	if edit != nil {
		edit(cfg)
	}
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, cfg.Save(path))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvCookie, "")
	t.Setenv(config.EnvAPIKey, "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "********", mask("short"))
	assert.Equal(t, "SUB=********", mask("SUB=abcdefgh"))
	assert.Equal(t, "微博微博********", mask("微博微博微博微博微博"))
}

func TestConfigCmd_MasksSecrets(t *testing.T) {
	path := writeConfig(t, func(c *config.Config) {
		c.Fetch.Cookie = "SUB=secretvalue"
		c.Scoring.APIKey = "sk-ant-secret"
	})

	out, err := execute(t, "--config", path, "config")
	require.NoError(t, err)
	assert.Contains(t, out, `cookie = "SUB=********"`)
	assert.Contains(t, out, `api_key = "sk-a********"`)
	assert.NotContains(t, out, "secretvalue")
}

func TestConfigCmd_CreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "nested", "config.toml")

	_, err := execute(t, "--config", path, "config", "path")
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestKeywordsCmd_NoInput(t *testing.T) {
	path := writeConfig(t, func(c *config.Config) {
		c.Inputs.KeywordsFile = filepath.Join(t.TempDir(), "missing.txt")
	})

	_, err := execute(t, "--config", path, "keywords")
	assert.ErrorIs(t, err, app.ErrNoInput)
}

func TestHistoryCmd(t *testing.T) {
	path := writeConfig(t, nil)

	out, err := execute(t, "--config", path, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet.")

	out, err = execute(t, "--config", path, "history", "--media")
	require.NoError(t, err)
	assert.Contains(t, out, "No media downloaded yet.")
}

func TestGalleryCmd_NoneYet(t *testing.T) {
	path := writeConfig(t, nil)
	_, err := execute(t, "--config", path, "gallery")
	assert.Error(t, err)
}

func TestLoginCmd_ImportCookie(t *testing.T) {
	path := writeConfig(t, nil)

	out, err := execute(t, "--config", path, "login", "--cookie", "SUB=abc; SUBP=def")
	require.NoError(t, err)
	assert.Contains(t, out, "Cookies saved")

	stored, err := auth.NewCookieStore(auth.PathFor(path)).Load()
	require.NoError(t, err)
	assert.Equal(t, "SUB=abc; SUBP=def", stored.Header())

	_, err = execute(t, "--config", path, "login", "--logout")
	require.NoError(t, err)
	_, err = os.Stat(auth.PathFor(path))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveCookie(t *testing.T) {
	path := writeConfig(t, nil)
	cfg := config.Default()
	s := &session{cfgPath: path, cfg: cfg, log: logging.Discard()}

	assert.Empty(t, resolveCookie(s))

	require.NoError(t, auth.NewCookieStore(auth.PathFor(path)).SaveString("SUB=stored"))
	assert.Equal(t, "SUB=stored", resolveCookie(s))

	cfg.Fetch.Cookie = "SUB=configured"
	assert.Equal(t, "SUB=configured", resolveCookie(s), "config wins over captured cookies")
}

func TestLoadCategories_MissingTable(t *testing.T) {
	cfg := config.Default()
	cfg.Inputs.CategoriesFile = filepath.Join(t.TempDir(), "missing.txt")

	cats, err := loadCategories(cfg, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "unknown", cats.Classify("anything"))

	cfg.Inputs.DuplicatePolicy = "random"
	_, err = loadCategories(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, nil)
	assert.Empty(t, buf.String())

	printSummary(&buf, &app.Summary{
		Run: store.Run{Stamp: "20240523_200000", Mode: store.ModeKeywords, Units: 2, OK: 1, Failed: 1, Posts: 3},
		Results: []app.UnitResult{
			{Unit: "A", Status: app.StatusOK, Posts: make([]types.Post, 3)},
			{Unit: "B", Status: app.StatusFailed, Reason: "boom"},
		},
		Aggregate: "results/all_results_20240523_200000.csv",
	})
	out := buf.String()
	assert.Contains(t, out, "Run 20240523_200000 (keywords): 2 units, 1 ok, 0 empty, 1 failed, 3 posts")
	assert.Contains(t, out, "A: 3 posts")
	assert.Contains(t, out, "B: boom")
	assert.Contains(t, out, "Wrote results/all_results_20240523_200000.csv")
}

func TestPrintMediaStats(t *testing.T) {
	var buf bytes.Buffer
	printMediaStats(&buf, []store.MediaStat{
		{Keyword: "A", Images: 2, Videos: 1, Bytes: 2048},
		{Keyword: "B", Images: 1, Other: 1, Bytes: 1000},
	})
	out := buf.String()
	assert.Contains(t, out, "KEYWORD")
	assert.Regexp(t, `total\s+3\s+1\s+1\s+3\.0 kB`, out)
}
