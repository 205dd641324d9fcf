package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ibeckermayer/trendscout/internal/types"
)

// StampLayout formats the run stamp that namespaces every artifact of a run.
const StampLayout = "20060102_150405"

// Stamp formats t as a run stamp.
func Stamp(t time.Time) string {
	return t.Format(StampLayout)
}

// ResultPaths names the artifacts of one run inside the results directory.
type ResultPaths struct {
	Dir   string
	Stamp string
}

// KeywordCSV is the per-keyword table.
func (p ResultPaths) KeywordCSV(keyword string) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_%s.csv", SafeName(keyword), p.Stamp))
}

// KeywordAnalysis is the per-keyword scorer result.
func (p ResultPaths) KeywordAnalysis(keyword string) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_analysis_%s.json", SafeName(keyword), p.Stamp))
}

// Aggregate is the combined table of every unit in a run of mode.
func (p ResultPaths) Aggregate(mode string) string {
	return p.runFile("all_results", mode, "csv")
}

// Gallery is the HTML image gallery of a run of mode.
func (p ResultPaths) Gallery(mode string) string {
	return p.runFile("gallery", mode, "html")
}

// Metrics is the Prometheus textfile of a run of mode.
func (p ResultPaths) Metrics(mode string) string {
	return p.runFile("metrics", mode, "prom")
}

// runFile names a whole-run artifact. Keyword runs keep the bare
// {prefix}_{stamp} name; other modes insert the mode so runs sharing a stamp
// do not overwrite each other.
func (p ResultPaths) runFile(prefix, mode, ext string) string {
	if mode != "" && mode != ModeKeywords {
		prefix += "_" + SafeName(mode)
	}
	return filepath.Join(p.Dir, fmt.Sprintf("%s_%s.%s", prefix, p.Stamp, ext))
}

var unsafeChars = strings.NewReplacer("/", "_", `\`, "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_")

// SafeName keeps a keyword usable as a single file or directory name: path
// separators and reserved characters become "_", and names made only of dots
// are replaced so they cannot refer to a parent directory.
func SafeName(s string) string {
	name := unsafeChars.Replace(strings.TrimSpace(s))
	if strings.Trim(name, ".") == "" {
		return strings.Repeat("_", max(len(name), 1))
	}
	return name
}

// WriteCSV writes header and rows to path as UTF-8 with a byte-order mark so
// spreadsheet tools detect the encoding.
func WriteCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer f.Close()

	if err := EncodeCSV(f, header, rows); err != nil {
		return err
	}
	return f.Close()
}

// EncodeCSV writes a BOM-prefixed CSV to w.
func EncodeCSV(w io.Writer, header []string, rows [][]string) error {
	bom := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(bom)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return bom.Close()
}

// WriteAnalysis writes an analysis result as indented JSON with
// HTML and non-ASCII characters left unescaped.
func WriteAnalysis(path string, result *types.AnalysisResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create analysis file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	return f.Close()
}

// ReadAnalysis loads an analysis artifact.
func ReadAnalysis(path string) (*types.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis file: %w", err)
	}
	var result types.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return &result, nil
}
