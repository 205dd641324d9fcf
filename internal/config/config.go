package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Scorer providers
const (
	ProviderLocal     = "local"
	ProviderClaude    = "claude"
	ProviderAnthropic = "anthropic"
)

// DefaultPath is where the config lives when --config is not given.
const DefaultPath = "config.toml"

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Fetch    FetchConfig    `toml:"fetch"`
	Scoring  ScoringConfig  `toml:"scoring"`
	Inputs   InputsConfig   `toml:"inputs"`
	Output   OutputConfig   `toml:"output"`
	Schedule ScheduleConfig `toml:"schedule"`
	Log      LogConfig      `toml:"log"`
}

type FetchConfig struct {
	Cookie         string `toml:"cookie"`
	DefaultPages   int    `toml:"default_pages"`
	StartPage      int    `toml:"start_page"`
	DownloadMedia  bool   `toml:"download_media"`
	MaxRetries     int    `toml:"max_retries"`
	RetryDelay     int    `toml:"retry_delay"` // seconds
	ThreadPoolSize int    `toml:"thread_pool_size"`
	Proxy          string `toml:"proxy"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Headless       bool   `toml:"headless"`
}

type ScoringConfig struct {
	Provider    string  `toml:"provider"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	BatchSize   int     `toml:"batch_size"`
	MinScore    float64 `toml:"min_score"`
	MinLikes    int     `toml:"min_likes"`
	MinComments int     `toml:"min_comments"`
	MinForwards int     `toml:"min_forwards"`
}

type InputsConfig struct {
	KeywordsFile    string `toml:"keywords_file"`
	UserURLsFile    string `toml:"user_urls_file"`
	CategoriesFile  string `toml:"categories_file"`
	DuplicatePolicy string `toml:"duplicate_policy"`
}

type OutputConfig struct {
	ResultsDir string `toml:"results_dir"`
	MediaDir   string `toml:"media_dir"`
	HistoryDB  string `toml:"history_db"`
	Gallery    bool   `toml:"gallery"`
	CacheSteps bool   `toml:"cache_steps"`
	Metrics    bool   `toml:"metrics"`
}

type ScheduleConfig struct {
	Cron     string `toml:"cron"`
	Timezone string `toml:"timezone"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Fetch: FetchConfig{
			DefaultPages:   5,
			StartPage:      1,
			DownloadMedia:  false,
			MaxRetries:     3,
			RetryDelay:     5,
			ThreadPoolSize: 4,
			TimeoutSeconds: 10,
			Headless:       false,
		},
		Scoring: ScoringConfig{
			Provider:  ProviderLocal,
			Model:     "claude-sonnet-4-20250514",
			BatchSize: 20,
			MinScore:  80,
			MinLikes:  500,
		},
		Inputs: InputsConfig{
			KeywordsFile:    "keywords.txt",
			UserURLsFile:    "user_urls.txt",
			CategoriesFile:  "keyword and classification.txt",
			DuplicatePolicy: "last",
		},
		Output: OutputConfig{
			ResultsDir: "results",
			MediaDir:   "media",
			HistoryDB:  "history.db",
			Gallery:    true,
			Metrics:    true,
		},
		Schedule: ScheduleConfig{
			Cron:     "0 */2 * * *",
			Timezone: "Asia/Shanghai",
		},
		Log: LogConfig{
			Level: "info",
			File:  "trendscout.log",
		},
	}
}

// RetryDelayDuration returns the pause between fetch retries.
func (c *Config) RetryDelayDuration() time.Duration {
	return time.Duration(c.Fetch.RetryDelay) * time.Second
}

// Timeout returns the per-request HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Fetch.DefaultPages < 1 {
		errs = append(errs, fmt.Errorf("fetch.default_pages must be >= 1, got %d", c.Fetch.DefaultPages))
	}
	if c.Fetch.StartPage < 1 {
		errs = append(errs, fmt.Errorf("fetch.start_page must be >= 1, got %d", c.Fetch.StartPage))
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_retries must be >= 0, got %d", c.Fetch.MaxRetries))
	}
	if c.Fetch.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("fetch.retry_delay must be >= 0, got %d", c.Fetch.RetryDelay))
	}
	if c.Fetch.ThreadPoolSize < 1 {
		errs = append(errs, fmt.Errorf("fetch.thread_pool_size must be >= 1, got %d", c.Fetch.ThreadPoolSize))
	}
	if c.Fetch.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("fetch.timeout_seconds must be >= 1, got %d", c.Fetch.TimeoutSeconds))
	}
	switch c.Scoring.Provider {
	case ProviderLocal:
	case ProviderClaude, ProviderAnthropic:
		if c.Scoring.APIKey == "" {
			errs = append(errs, fmt.Errorf("scoring.api_key is required for the %s provider", c.Scoring.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown scoring.provider: %s", c.Scoring.Provider))
	}
	if c.Scoring.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("scoring.batch_size must be >= 1, got %d", c.Scoring.BatchSize))
	}
	return errors.Join(errs...)
}

// Load reads config from path on top of the defaults. missing lists the
// dotted keys the file did not define, which keep their default values.
func Load(path string) (cfg *Config, missing []string, err error) {
	cfg = Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, nil, err
	}
	keys, err := defaultKeys()
	if err != nil {
		return nil, nil, err
	}
	for _, key := range keys {
		if !md.IsDefined(key...) {
			missing = append(missing, strings.Join(key, "."))
		}
	}
	return cfg, missing, nil
}

// Save writes config to path
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// Report describes what Ensure had to do to produce a usable config.
type Report struct {
	Created bool
	Backup  string   // where a corrupt file was moved, if any
	Filled  []string // keys added from defaults
	Cause   error    // decode error behind a repair
}

// Ensure loads path, creating it with defaults when absent, replacing it
// with defaults (after a .bak copy) when corrupt, and persisting any keys
// that were missing. The returned config is always usable; err only reports
// a failure to persist the repaired copy.
func Ensure(path string) (*Config, Report, error) {
	var report Report

	cfg, missing, err := Load(path)
	switch {
	case err == nil:
		if len(missing) == 0 {
			return cfg, report, nil
		}
		report.Filled = missing
	case errors.Is(err, os.ErrNotExist):
		cfg = Default()
		report.Created = true
	default:
		cfg = Default()
		report.Cause = err
		report.Backup = path + ".bak"
		if renameErr := os.Rename(path, report.Backup); renameErr != nil {
			report.Backup = ""
		}
	}

	if err := cfg.Save(path); err != nil {
		return cfg, report, fmt.Errorf("failed to save config: %w", err)
	}
	return cfg, report, nil
}

// Environment overrides, also read from a .env file when present.
const (
	EnvCookie   = "TRENDSCOUT_COOKIE"
	EnvAPIKey   = "TRENDSCOUT_API_KEY"
	EnvLogLevel = "LOG_LEVEL"
)

// ApplyEnv overlays secrets and the log level from the environment. The
// overrides are never written back to disk.
func (c *Config) ApplyEnv(envFiles ...string) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		_ = godotenv.Load(file)
	}
	if v := strings.TrimSpace(os.Getenv(EnvCookie)); v != "" {
		c.Fetch.Cookie = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.Scoring.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
}

// defaultKeys lists every leaf key of the default config as TOML paths.
func defaultKeys() ([][]string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(Default()); err != nil {
		return nil, err
	}
	var tree map[string]any
	if _, err := toml.Decode(buf.String(), &tree); err != nil {
		return nil, err
	}
	var keys [][]string
	collectKeys(tree, nil, &keys)
	sort.Slice(keys, func(i, j int) bool {
		return strings.Join(keys[i], ".") < strings.Join(keys[j], ".")
	})
	return keys, nil
}

func collectKeys(tree map[string]any, prefix []string, out *[][]string) {
	for k, v := range tree {
		path := append(append([]string{}, prefix...), k)
		if sub, ok := v.(map[string]any); ok {
			collectKeys(sub, path, out)
			continue
		}
		*out = append(*out, path)
	}
}
