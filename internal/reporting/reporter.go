// internal/reporting/reporter.go

// Package reporting writes finished audit reports to files or stdout in
// the formats the CLI exposes.
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/observability"
)

// Supported output formats.
const (
	FormatJSON  = "json"
	FormatJUnit = "junit"
)

// Reporter writes an audit report to an output.
type Reporter interface {
	// Write emits the report. Calling it again replaces the output.
	Write(report *schemas.Report) error
	// Close finalizes the report and releases any underlying resources.
	Close() error
}

// New creates a reporter for the given format writing to path. An empty
// path, "-" or "stdout" writes to standard output.
func New(format, path string) (Reporter, error) {
	logger := observability.GetLogger().Named("reporter")
	path = normalizePath(path)

	switch format {
	case FormatJSON, "":
		return &JSONReporter{path: path, out: os.Stdout, logger: logger}, nil
	case FormatJUnit:
		return &JUnitReporter{path: path, out: os.Stdout, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// DefaultPath derives the output filename from the audited URL: scheme
// stripped, slashes flattened.
func DefaultPath(url, format string) string {
	safe := strings.TrimPrefix(url, "https://")
	safe = strings.TrimPrefix(safe, "http://")
	safe = strings.ReplaceAll(safe, "/", "_")

	ext := "json"
	if format == FormatJUnit {
		ext = "xml"
	}
	return fmt.Sprintf("clickability_test_%s.%s", safe, ext)
}

func normalizePath(path string) string {
	if path == "stdout" || path == "-" {
		return ""
	}
	return path
}

// atomicWrite lands data at path through a temp file and rename, so a
// crash mid-write never leaves a truncated report behind.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary report file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize report file %s: %w", path, err)
	}
	return nil
}
