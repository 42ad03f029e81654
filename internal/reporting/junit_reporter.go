// internal/reporting/junit_reporter.go
package reporting

import (
	"bytes"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
)

// JUnitReporter renders the report as a JUnit XML suite so CI systems
// can gate on dead clicks. Each element test becomes one testcase; dead
// clicks map to failures and protocol errors to errors.
type JUnitReporter struct {
	path   string // empty writes to out
	out    io.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// Write renders and emits the suite.
func (r *JUnitReporter) Write(report *schemas.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := buildJUnitDoc(report)
	doc.Indent(2)

	if r.path == "" {
		_, err := doc.WriteTo(r.out)
		return err
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	if err := atomicWrite(r.path, buf.Bytes()); err != nil {
		return err
	}
	r.logger.Info("Report saved.", zap.String("path", r.path), zap.Int("testcases", report.ElementsTested))
	return nil
}

// Close implements Reporter. The JUnit writer finalizes on every Write.
func (r *JUnitReporter) Close() error { return nil }

func buildJUnitDoc(report *schemas.Report) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suite := doc.CreateElement("testsuite")
	suite.CreateAttr("name", "clickability "+report.URL)
	suite.CreateAttr("tests", strconv.Itoa(report.ElementsTested))
	suite.CreateAttr("failures", strconv.Itoa(report.DeadClicks))
	suite.CreateAttr("errors", strconv.Itoa(report.Errors))
	suite.CreateAttr("timestamp", report.Timestamp.Format(time.RFC3339))

	for _, res := range report.Results {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", report.URL)
		tc.CreateAttr("name", caseName(res.ElementInfo))

		switch {
		case res.ClickStatus.IsDead():
			failure := tc.CreateElement("failure")
			failure.CreateAttr("type", string(res.ClickStatus))
			failure.CreateAttr("message", failureMessage(res))
			failure.SetText(res.ElementInfo.XPath)
		case res.ClickStatus == schemas.StatusError:
			errEl := tc.CreateElement("error")
			errEl.CreateAttr("type", string(res.ClickStatus))
			errEl.CreateAttr("message", res.ErrorMessage)
			errEl.SetText(res.ElementInfo.XPath)
		}
	}
	return doc
}

// caseName labels a testcase with the most recognizable handle the
// element has.
func caseName(info schemas.ElementInfo) string {
	switch {
	case info.VisibleText != "":
		return info.TagName + " " + info.VisibleText
	case info.ID != "":
		return info.TagName + " #" + info.ID
	default:
		return info.TagName + " " + info.XPath
	}
}

func failureMessage(res schemas.TestResult) string {
	if res.ErrorMessage != "" {
		return res.ErrorMessage
	}
	return "click produced no observable effect"
}
