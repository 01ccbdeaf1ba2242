package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/evanschultz/waymark/internal/app"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/evanschultz/waymark/internal/config"
	"github.com/evanschultz/waymark/internal/tui"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("WAYMARK_DEV_MODE", "false")
	_ = os.Unsetenv("WAYMARK_DB_PATH")
	_ = os.Unsetenv("WAYMARK_CONFIG")
	_ = os.Unsetenv("WAYMARK_APP_NAME")
	os.Exit(m.Run())
}

// fakeProgram represents fake program data used by this package.
type fakeProgram struct {
	runErr error
}

// Run runs the requested command flow.
func (f fakeProgram) Run() (tea.Model, error) {
	return nil, f.runErr
}

// testEnv isolates one ledger database and config file.
type testEnv struct {
	dir    string
	db     string
	config string
	now    time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return testEnv{
		dir:    dir,
		db:     filepath.Join(dir, "waymark.db"),
		config: filepath.Join(dir, "config.toml"),
		now:    time.UnixMilli(200_000),
	}
}

// run executes one command line against the env and returns stdout and stderr.
func (e testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := newCLI(&stdout, &stderr)
	c.now = func() time.Time { return e.now }
	root := newRootCommand(c)
	root.SetArgs(append([]string{"--db", e.db, "--config", e.config}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (e testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v\nstderr: %s", args, err, stderr)
	}
	return out
}

// seedEpisode records start -> open(Desk) -> advance(Kitchen) -> close(Kitchen) -> finish.
func seedEpisode(t *testing.T, env testEnv) {
	t.Helper()
	env.mustRun(t, "node", "add", "Desk")
	env.mustRun(t, "seq", "start")
	env.mustRun(t, "open", "Desk", "--at", "1000")
	env.mustRun(t, "advance", "Kitchen", "--at", "66000")
	env.mustRun(t, "close", "Kitchen", "--at", "126000")
	env.mustRun(t, "seq", "finish")
}

// TestParseTimestamp verifies millisecond, RFC3339 and default parsing.
func TestParseTimestamp(t *testing.T) {
	now := func() time.Time { return time.UnixMilli(42) }
	cases := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "", want: 42},
		{raw: "1500", want: 1500},
		{raw: "1970-01-01T00:00:02Z", want: 2000},
		{raw: "yesterday", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseTimestamp(tc.raw, now)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseTimestamp(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseTimestamp(%q) error = %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parseTimestamp(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

// TestCLILedgerFlow verifies the episode scenario end to end through the command tree.
func TestCLILedgerFlow(t *testing.T) {
	env := newTestEnv(t)
	seedEpisode(t, env)

	out := env.mustRun(t, "list", "--format", "json")
	var records []intervalRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("json.Unmarshal() error = %v\n%s", err, out)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(records))
	}
	first, second := records[0], records[1]
	if first.StartNode != "Desk" || first.EndNode != "Kitchen" || first.DurationMS != 65_000 {
		t.Fatalf("unexpected first interval %#v", first)
	}
	if second.StartNode != "Kitchen" || second.EndTime == nil || *second.EndTime != 126_000 || second.DurationMS != 60_000 {
		t.Fatalf("unexpected second interval %#v", second)
	}

	seqs := env.mustRun(t, "seq", "list")
	if !strings.Contains(seqs, "1\tfinished") {
		t.Fatalf("expected finished sequence, got %q", seqs)
	}
	if got := env.mustRun(t, "seq", "status"); !strings.Contains(got, "no active sequence") {
		t.Fatalf("unexpected status %q", got)
	}

	report := env.mustRun(t, "seq", "report", "--raw")
	for _, want := range []string{"## Intervals", "## Time per node", "| Desk |"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}

	log := env.mustRun(t, "log", "--limit", "1")
	if !strings.Contains(log, "update sequences #1") {
		t.Fatalf("expected newest event to finish the sequence, got %q", log)
	}

	text := env.mustRun(t, "list", "--node", "Kitchen")
	if !strings.Contains(text, "1m05s") || !strings.Contains(text, "1m00s") {
		t.Fatalf("expected both durations in text list:\n%s", text)
	}
}

// TestCLIListFilters verifies the open filter and yaml output.
func TestCLIListFilters(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "seq", "start")
	env.mustRun(t, "open", "Desk", "--at", "1000")
	env.mustRun(t, "advance", "Hall", "--at", "5000")

	out := env.mustRun(t, "list", "--open", "--format", "yaml")
	if !strings.Contains(out, "start_node: Hall") || strings.Contains(out, "start_node: Desk") {
		t.Fatalf("expected only the open Hall interval:\n%s", out)
	}
	if !strings.Contains(out, "duration_ms: 195000") {
		t.Fatalf("expected open duration measured to now:\n%s", out)
	}

	if _, _, err := env.run(t, "list", "--format", "csv"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

// TestCLIConflicts verifies lifecycle errors surface with the service taxonomy.
func TestCLIConflicts(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.run(t, "seq", "finish"); !errors.Is(err, app.ErrNoActiveSequence) {
		t.Fatalf("expected no active sequence, got %v", err)
	}
	env.mustRun(t, "seq", "start")
	if _, _, err := env.run(t, "seq", "start"); !errors.Is(err, app.ErrConflict) {
		t.Fatalf("expected conflict for a second active sequence, got %v", err)
	}
	env.mustRun(t, "open", "Desk", "--at", "1000")
	if _, _, err := env.run(t, "seq", "finish"); !errors.Is(err, app.ErrConflict) {
		t.Fatalf("expected conflict with an open interval, got %v", err)
	}
	if _, _, err := env.run(t, "node", "rm", "1"); !errors.Is(err, app.ErrConflict) {
		t.Fatalf("expected referenced node conflict, got %v", err)
	}
	if _, _, err := env.run(t, "open", "Desk", "--at", "nope"); err == nil {
		t.Fatal("expected invalid timestamp error")
	}
}

// TestCLIReverseSequence verifies reversing removes the sequence and its intervals.
func TestCLIReverseSequence(t *testing.T) {
	env := newTestEnv(t)
	seedEpisode(t, env)
	env.mustRun(t, "seq", "reverse", "1")
	if got := env.mustRun(t, "seq", "list"); strings.TrimSpace(got) != "" {
		t.Fatalf("expected no sequences, got %q", got)
	}
	if got := env.mustRun(t, "list"); !strings.Contains(got, "no intervals") {
		t.Fatalf("expected empty list, got %q", got)
	}
}

// TestCLIExportImportYAML verifies a yaml snapshot restores into a fresh ledger.
func TestCLIExportImportYAML(t *testing.T) {
	src := newTestEnv(t)
	seedEpisode(t, src)
	snapPath := filepath.Join(src.dir, "out", "ledger.yaml")
	src.mustRun(t, "export", "--out", snapPath)

	content, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "version: "+app.SnapshotVersion) {
		t.Fatalf("expected yaml snapshot, got:\n%s", content)
	}

	dst := src
	dst.db = filepath.Join(src.dir, "restored.db")
	out := dst.mustRun(t, "import", "--in", snapPath)
	if !strings.Contains(out, "imported 2 node(s), 1 sequence(s), 2 interval(s)") {
		t.Fatalf("unexpected import output %q", out)
	}
	want := src.mustRun(t, "list", "--format", "json")
	got := dst.mustRun(t, "list", "--format", "json")
	if got != want {
		t.Fatalf("restored ledger differs\nwant %s\ngot  %s", want, got)
	}

	if _, _, err := dst.run(t, "import", "--in", snapPath); !errors.Is(err, app.ErrConflict) {
		t.Fatalf("expected conflict importing into a non-empty ledger, got %v", err)
	}
}

// TestCLIExportJSONStdout verifies the default export format.
func TestCLIExportJSONStdout(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "node", "add", "Desk")
	out := env.mustRun(t, "export")
	var snap app.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].Name != "Desk" {
		t.Fatalf("unexpected snapshot nodes %#v", snap.Nodes)
	}
}

// TestCLIMigrateCommands verifies status, up and down against a fresh file.
func TestCLIMigrateCommands(t *testing.T) {
	env := newTestEnv(t)
	status := env.mustRun(t, "migrate", "status")
	if !strings.Contains(status, "pending") || strings.Contains(status, "applied") {
		t.Fatalf("expected pending migrations:\n%s", status)
	}
	up := env.mustRun(t, "migrate", "up")
	if !strings.Contains(up, "applied 3 migration(s); schema version 3") {
		t.Fatalf("unexpected up output %q", up)
	}
	if again := env.mustRun(t, "migrate", "up"); !strings.Contains(again, "applied 0 migration(s)") {
		t.Fatalf("expected second up to be a no-op, got %q", again)
	}
	down := env.mustRun(t, "migrate", "down", "--steps", "1")
	if !strings.Contains(down, "reverted 1 migration(s); schema version 2") {
		t.Fatalf("unexpected down output %q", down)
	}
	status = env.mustRun(t, "migrate", "status")
	if !strings.Contains(status, "add_change_events") || !strings.Contains(status, "pending") {
		t.Fatalf("expected change events migration pending:\n%s", status)
	}
	if _, _, err := env.run(t, "migrate", "down", "--steps", "0"); err == nil {
		t.Fatal("expected invalid step error")
	}
}

// TestCLIPaths verifies dev mode isolates paths under <app>-dev.
func TestCLIPaths(t *testing.T) {
	env := newTestEnv(t)
	var stdout bytes.Buffer
	root := newRootCommand(newCLI(&stdout, nil))
	root.SetArgs([]string{"--dev", "--app", "ledger", "--config", env.config, "paths"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"app: ledger", "dev_mode: true", "ledger-dev"} {
		if !strings.Contains(out, want) {
			t.Fatalf("paths output missing %q:\n%s", want, out)
		}
	}
}

// TestCLIConfigControlsNodeCreation verifies auto-create can be disabled in config.
func TestCLIConfigControlsNodeCreation(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default(env.db)
	cfg.Ledger.AutoCreateNodes = false
	encoded, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := os.WriteFile(env.config, encoded, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	env.mustRun(t, "seq", "start")
	if _, _, err := env.run(t, "open", "Desk", "--at", "1000"); !errors.Is(err, app.ErrNotFound) && !errors.Is(err, app.ErrValidation) {
		t.Fatalf("expected unknown node rejection, got %v", err)
	}
	env.mustRun(t, "node", "add", "Desk")
	env.mustRun(t, "open", "Desk", "--at", "1000")
}

// TestCLIWatchRunsProgram verifies watch hands a model to the program factory.
func TestCLIWatchRunsProgram(t *testing.T) {
	env := newTestEnv(t)
	original := programFactory
	t.Cleanup(func() { programFactory = original })

	var got tea.Model
	programFactory = func(m tea.Model) program {
		got = m
		return fakeProgram{}
	}
	env.mustRun(t, "watch")
	if _, ok := got.(tui.Model); !ok {
		t.Fatalf("expected tui.Model, got %T", got)
	}

	programFactory = func(tea.Model) program {
		return fakeProgram{runErr: errors.New("boom")}
	}
	if _, _, err := env.run(t, "watch"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected program error, got %v", err)
	}
}

// TestCLIMCPBuildsServer verifies mcp hands a configured server to the stdio loop.
func TestCLIMCPBuildsServer(t *testing.T) {
	env := newTestEnv(t)
	original := mcpServe
	t.Cleanup(func() { mcpServe = original })

	var served *mcpserver.MCPServer
	mcpServe = func(srv *mcpserver.MCPServer) error {
		served = srv
		return nil
	}
	env.mustRun(t, "mcp")
	if served == nil {
		t.Fatal("expected an MCP server to be served")
	}
}

// TestRuntimeLoggerSinks verifies the dev file sink and console muting.
func TestRuntimeLoggerSinks(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	logger, err := newRuntimeLogger(&console, "way mark", true, config.LoggingConfig{
		Level:   "debug",
		DevFile: config.DevFileConfig{Enabled: true},
	}, dir, now)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	wantPath := filepath.Join(dir, "way-mark-20260301.log")
	if logger.DevLogPath() != wantPath {
		t.Fatalf("DevLogPath() = %q, want %q", logger.DevLogPath(), wantPath)
	}
	if logger.Base() == nil {
		t.Fatal("expected a base logger")
	}

	logger.Info("visible")
	logger.SetConsoleEnabled(false)
	logger.Info("muted", "k", 1)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(console.String(), "visible") || strings.Contains(console.String(), "muted") {
		t.Fatalf("unexpected console output %q", console.String())
	}
	content, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "msg=muted") || !strings.Contains(string(content), "k=1") {
		t.Fatalf("expected logfmt dev file, got %q", content)
	}

	if _, err := newRuntimeLogger(nil, "waymark", false, config.LoggingConfig{Level: "loud"}, dir, now); err == nil {
		t.Fatal("expected invalid level error")
	}
}
