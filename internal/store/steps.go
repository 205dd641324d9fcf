package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StepName identifies a pipeline step for caching purposes.
type StepName string

const (
	StepFetched  StepName = "step1_fetched"
	StepFiltered StepName = "step2_filtered"
	StepAnalysis StepName = "step3_analysis"
	StepScorer   StepName = "step3_scorer_exchanges"
)

// StepCache keeps the intermediate output of each pipeline step for
// debugging. A nil *StepCache is valid and saves nothing.
type StepCache struct {
	Dir string
	now func() time.Time
}

// NewStepCache returns a cache rooted at dir.
func NewStepCache(dir string) *StepCache {
	return &StepCache{Dir: dir, now: time.Now}
}

// stepDir returns the cache directory for a given step.
func (c *StepCache) stepDir(step StepName) string {
	return filepath.Join(c.Dir, string(step))
}

// generateFilename creates a timestamped filename with the given extension.
// The label (usually the keyword) keeps concurrent units apart.
func (c *StepCache) generateFilename(label, ext string) string {
	name := c.now().Format("2006-01-02T15-04-05.000")
	if label != "" {
		name += "_" + SafeName(label)
	}
	return name + ext
}

// SaveStepOutput saves JSON-serializable data to the step's cache directory.
// Returns the path to the saved file.
func SaveStepOutput[T any](c *StepCache, step StepName, label string, data T) (string, error) {
	if c == nil {
		return "", nil
	}

	dir := c.stepDir(step)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create step cache dir: %w", err)
	}

	path := filepath.Join(dir, c.generateFilename(label, ".json"))

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal step output: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write step output: %w", err)
	}

	return path, nil
}

// LoadLatestStepOutput loads the most recent output from a step's cache directory.
// Returns the data, the filepath it was loaded from, and any error.
func LoadLatestStepOutput[T any](c *StepCache, step StepName) (T, string, error) {
	var zero T

	latestPath, err := c.LatestStepFile(step)
	if err != nil {
		return zero, "", err
	}

	data, err := LoadStepOutput[T](latestPath)
	if err != nil {
		return zero, "", err
	}

	return data, latestPath, nil
}

// LoadStepOutput loads JSON data from a specific file path.
func LoadStepOutput[T any](path string) (T, error) {
	var data T

	jsonData, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read step output: %w", err)
	}

	if err := json.Unmarshal(jsonData, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal step output: %w", err)
	}

	return data, nil
}

// LatestStepFile returns the path to the most recent file in a step's cache directory.
func (c *StepCache) LatestStepFile(step StepName) (string, error) {
	if c == nil {
		return "", fmt.Errorf("no cached output for step %s", step)
	}

	entries, err := os.ReadDir(c.stepDir(step))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no cached output for step %s", step)
		}
		return "", err
	}

	// os.ReadDir sorts by name, which is chronological for our timestamps
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, entry.Name())
		}
	}

	if len(files) == 0 {
		return "", fmt.Errorf("no cached output for step %s", step)
	}

	return filepath.Join(c.stepDir(step), files[len(files)-1]), nil
}
