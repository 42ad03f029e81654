// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/RudraKhare/DeadClickCrawler/api/schemas"
	"github.com/RudraKhare/DeadClickCrawler/internal/config"
	"github.com/RudraKhare/DeadClickCrawler/internal/observability"
)

// resetForTest is the single source of truth for resetting shared state
// between command tests.
func resetForTest(t *testing.T) {
	t.Helper()

	viper.Reset()
	cfgFile = ""
	osExit = os.Exit

	// Silence the logger the root command initializes.
	observability.ResetForTest()
	observability.Initialize(
		config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"},
		zapcore.AddSync(io.Discard),
	)
}

// executeCommand runs a root command with the given args and returns the
// combined output.
func executeCommand(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func findSubcommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()

	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q is not registered", name)
	return nil
}

// interceptConfig replaces the named subcommand's RunE with one that
// captures the resolved configuration instead of running the command.
// This lets precedence tests execute the real flag binding hooks without
// launching a browser or a server.
func interceptConfig(t *testing.T, root *cobra.Command, name string) func() *config.Config {
	t.Helper()

	var got *config.Config
	sub := findSubcommand(t, root, name)
	sub.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			return err
		}
		got = cfg
		return nil
	}
	return func() *config.Config { return got }
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "deadclick.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootVersionFlag(t *testing.T) {
	resetForTest(t)

	out, err := executeCommand(t, NewRootCommand(), "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestRootNoArgsShowsHelp(t *testing.T) {
	resetForTest(t)

	out, err := executeCommand(t, NewRootCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "deadclick finds clickable page elements")
	assert.Contains(t, out, "audit")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "report")
}

func TestRootUnknownCommand(t *testing.T) {
	resetForTest(t)

	_, err := executeCommand(t, NewRootCommand(), "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "bogus"`)
}

func TestAuditRejectsExtraArgs(t *testing.T) {
	resetForTest(t)

	_, err := executeCommand(t, NewRootCommand(), "audit", "http://a.test", "http://b.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts at most 1 arg")
}

func TestEnvOverridesDefaults(t *testing.T) {
	resetForTest(t)
	t.Setenv("DEADCLICK_AUDIT_WORKERS", "9")

	root := NewRootCommand()
	captured := interceptConfig(t, root, "audit")

	_, err := executeCommand(t, root, "audit", "http://example.test")
	require.NoError(t, err)

	cfg := captured()
	require.NotNil(t, cfg)
	assert.Equal(t, 9, cfg.Audit.Workers)
}

func TestConfigFileSettings(t *testing.T) {
	resetForTest(t)

	configFile := createTempConfig(t, `
audit:
  max_depth: 7
  strictness: loose
server:
  addr: "127.0.0.1:9999"
`)

	root := NewRootCommand()
	captured := interceptConfig(t, root, "audit")

	_, err := executeCommand(t, root, "--config", configFile, "audit", "http://example.test")
	require.NoError(t, err)

	cfg := captured()
	require.NotNil(t, cfg)
	assert.Equal(t, 7, cfg.Audit.MaxDepth)
	assert.Equal(t, "loose", cfg.Audit.Strictness)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
}

func TestFlagOverridesConfigFile(t *testing.T) {
	resetForTest(t)

	configFile := createTempConfig(t, `
audit:
  workers: 2
  max_depth: 7
`)

	root := NewRootCommand()
	captured := interceptConfig(t, root, "audit")

	_, err := executeCommand(t, root, "--config", configFile, "audit", "--workers", "9", "http://example.test")
	require.NoError(t, err)

	cfg := captured()
	require.NotNil(t, cfg)
	// The changed flag wins over the file, the file wins over defaults.
	assert.Equal(t, 9, cfg.Audit.Workers)
	assert.Equal(t, 7, cfg.Audit.MaxDepth)
}

func TestAuditFlagBindings(t *testing.T) {
	resetForTest(t)

	root := NewRootCommand()
	captured := interceptConfig(t, root, "audit")

	_, err := executeCommand(t, root,
		"audit",
		"--wait", "8s",
		"--strictness", "strict",
		"--deep-scan=false",
		"-d", "5",
		"http://example.test",
	)
	require.NoError(t, err)

	cfg := captured()
	require.NotNil(t, cfg)
	assert.Equal(t, 8*time.Second, cfg.Audit.WaitTime)
	assert.Equal(t, "strict", cfg.Audit.Strictness)
	assert.False(t, cfg.Audit.DeepScan)
	assert.Equal(t, 5, cfg.Audit.MaxDepth)
}

func TestServeFlagBindings(t *testing.T) {
	resetForTest(t)

	root := NewRootCommand()
	captured := interceptConfig(t, root, "serve")

	_, err := executeCommand(t, root,
		"serve",
		"--addr", "127.0.0.1:8123",
		"--workers", "6",
		"--store-dsn", "postgres://deadclick@localhost/reports",
	)
	require.NoError(t, err)

	cfg := captured()
	require.NotNil(t, cfg)
	assert.Equal(t, "127.0.0.1:8123", cfg.Server.Addr)
	assert.Equal(t, 6, cfg.Audit.Workers)
	assert.Equal(t, "postgres://deadclick@localhost/reports", cfg.Store.DSN)
}

type fakeReportSource struct {
	report *schemas.Report
	err    error
}

func (f *fakeReportSource) LoadLatest(ctx context.Context) (*schemas.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeStoreProvider struct {
	source  reportSource
	openErr error
	cleaned bool
}

func (f *fakeStoreProvider) Open(ctx context.Context, cfg *config.Config) (reportSource, func(), error) {
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	return f.source, func() { f.cleaned = true }, nil
}

func TestDefaultStoreProviderRequiresDSN(t *testing.T) {
	resetForTest(t)

	_, _, err := newStoreProvider().Open(context.Background(), config.NewDefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn")
}

func TestRunReportExportWritesFile(t *testing.T) {
	resetForTest(t)

	stored := &schemas.Report{
		URL:       "http://stored.test/",
		Timestamp: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC),
		Summary:   schemas.Summary{TotalTested: 1},
		Results: []schemas.TestResult{{
			ElementInfo: schemas.ElementInfo{TagName: "a", VisibleText: "Home"},
			ClickStatus: schemas.StatusActiveNavigation,
		}},
		ElementsTested: 1,
	}
	provider := &fakeStoreProvider{source: &fakeReportSource{report: stored}}
	outPath := filepath.Join(t.TempDir(), "report.json")

	err := runReportExport(context.Background(), zaptest.NewLogger(t), config.NewDefaultConfig(), outPath, "json", provider)
	require.NoError(t, err)
	assert.True(t, provider.cleaned, "the store connection should be released")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var decoded schemas.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "http://stored.test/", decoded.URL)
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, schemas.StatusActiveNavigation, decoded.Results[0].ClickStatus)
}

func TestRunReportExportNoStoredReport(t *testing.T) {
	resetForTest(t)

	provider := &fakeStoreProvider{source: &fakeReportSource{err: schemas.ErrNoReport}}

	err := runReportExport(context.Background(), zaptest.NewLogger(t), config.NewDefaultConfig(), "", "json", provider)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no report stored yet")
}

func TestRunReportExportOpenError(t *testing.T) {
	resetForTest(t)

	provider := &fakeStoreProvider{openErr: errors.New("connect refused")}

	err := runReportExport(context.Background(), zaptest.NewLogger(t), config.NewDefaultConfig(), "", "json", provider)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect refused")
}
