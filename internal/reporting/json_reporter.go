// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONReporter writes the report as indented JSON, the same document the
// HTTP API serves. File output goes through a temp file and rename.
type JSONReporter struct {
	path   string // empty writes to out
	out    io.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// Write encodes and emits the report.
func (r *JSONReporter) Write(report *schemas.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if r.path == "" {
		_, err := r.out.Write(data)
		return err
	}
	if err := atomicWrite(r.path, data); err != nil {
		return err
	}
	r.logger.Info("Report saved.", zap.String("path", r.path), zap.Int("bytes", len(data)))
	return nil
}

// Close implements Reporter. The JSON writer finalizes on every Write.
func (r *JSONReporter) Close() error { return nil }
