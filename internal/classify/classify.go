// Package classify maps search keywords to category labels.
package classify

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Unknown is the label for keywords missing from the table.
const Unknown = "unknown"

// DuplicatePolicy decides which row wins when a keyword appears twice.
type DuplicatePolicy string

const (
	LastWins  DuplicatePolicy = "last"
	FirstWins DuplicatePolicy = "first"
)

// ParsePolicy accepts "last", "first" or "" (last).
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", LastWins:
		return LastWins, nil
	case FirstWins:
		return FirstWins, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// Duplicate records a keyword that appeared more than once in the table.
type Duplicate struct {
	Keyword  string
	Kept     string
	Rejected string
	Line     int
}

// CategoryMap is an immutable keyword -> category lookup. The zero value
// classifies everything as Unknown.
type CategoryMap struct {
	m map[string]string
}

// New copies entries into a CategoryMap.
func New(entries map[string]string) CategoryMap {
	m := make(map[string]string, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return CategoryMap{m: m}
}

// Classify returns the keyword's category, or Unknown.
func (c CategoryMap) Classify(keyword string) string {
	if label, ok := c.m[keyword]; ok {
		return label
	}
	return Unknown
}

// Len returns the number of keywords in the map.
func (c CategoryMap) Len() int {
	return len(c.m)
}

// Load reads a two-column (keyword, category) CSV file. The first row is a
// header. A UTF-8 byte-order mark is tolerated.
func Load(path string, policy DuplicatePolicy) (CategoryMap, []Duplicate, error) {
	f, err := os.Open(path)
	if err != nil {
		return CategoryMap{}, nil, err
	}
	defer f.Close()

	return Parse(f, policy)
}

// Parse builds a CategoryMap from CSV content; see Load.
func Parse(r io.Reader, policy DuplicatePolicy) (CategoryMap, []Duplicate, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	entries := make(map[string]string)
	var dups []Duplicate
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return CategoryMap{}, nil, fmt.Errorf("failed to read category table: %w", err)
		}
		line++
		if line == 1 || len(record) < 2 {
			continue
		}

		keyword := strings.TrimSpace(record[0])
		label := strings.TrimSpace(record[1])
		if keyword == "" {
			continue
		}

		if prev, seen := entries[keyword]; seen {
			dup := Duplicate{Keyword: keyword, Line: line}
			if policy == FirstWins {
				dup.Kept, dup.Rejected = prev, label
				dups = append(dups, dup)
				continue
			}
			dup.Kept, dup.Rejected = label, prev
			dups = append(dups, dup)
		}
		entries[keyword] = label
	}

	return CategoryMap{m: entries}, dups, nil
}
