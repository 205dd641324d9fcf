package app

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNoInput is returned when an input list is missing or has no entries.
var ErrNoInput = errors.New("no input entries")

// ReadKeywords reads one keyword per line, skipping blank lines.
func ReadKeywords(path string) ([]string, error) {
	return readLines(path, false)
}

// ReadUserURLs reads one profile URL per line, skipping blank lines and
// lines starting with "#".
func ReadUserURLs(path string) ([]string, error) {
	return readLines(path, true)
}

func readLines(path string, comments bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoInput, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	// strip a leading UTF-8 BOM left by spreadsheet editors
	r := transform.NewReader(f, unicode.BOMOverride(transform.Nop))

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || (comments && strings.HasPrefix(line, "#")) {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoInput, path)
	}
	return lines, nil
}
