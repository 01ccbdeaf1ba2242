package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/evanschultz/waymark/internal/adapters/storage/sqlite"
	"github.com/evanschultz/waymark/internal/app"
	"github.com/evanschultz/waymark/internal/config"
	"github.com/evanschultz/waymark/internal/display"
	"github.com/evanschultz/waymark/internal/platform"
	"github.com/spf13/cobra"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// main handles main.
func main() {
	ctx := context.Background()
	root := newRootCommand(newCLI(os.Stdout, os.Stderr))
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// cli carries global flags and the runtime resolved from them.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	configPath string
	dbPath     string
	appName    string
	devMode    bool

	paths     platform.Paths
	cfg       config.Config
	formatter display.Formatter
	logger    *runtimeLogger
}

// newCLI seeds flag defaults from the environment.
func newCLI(stdout, stderr io.Writer) *cli {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	c := &cli{
		stdout:  stdout,
		stderr:  stderr,
		now:     time.Now,
		appName: platform.DefaultAppName,
		devMode: version == "dev",
	}
	if envDev, ok := parseBoolEnv("WAYMARK_DEV_MODE"); ok {
		c.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("WAYMARK_APP_NAME")); envApp != "" {
		c.appName = envApp
	}
	return c
}

// newRootCommand builds the command tree.
func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "waymark",
		Short:         "Record time spent between named nodes",
		Long:          "waymark keeps a ledger of intervals between named nodes, grouped into sequences.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.teardown()
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config TOML")
	flags.StringVar(&c.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&c.appName, "app", c.appName, "application name for config/data path resolution")
	flags.BoolVar(&c.devMode, "dev", c.devMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newPathsCommand(c),
		newMigrateCommand(c),
		newNodeCommand(c),
		newSeqCommand(c),
		newOpenCommand(c),
		newCloseCommand(c),
		newAdvanceCommand(c),
		newListCommand(c),
		newLogCommand(c),
		newExportCommand(c),
		newImportCommand(c),
		newWatchCommand(c),
		newMCPCommand(c),
	)
	return root
}

// setup resolves paths, config and logging before any command runs.
func (c *cli) setup(cmd *cobra.Command) error {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: c.appName,
		DevMode: c.devMode,
	})
	if err != nil {
		return err
	}
	c.paths = paths

	dbPath := strings.TrimSpace(c.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("WAYMARK_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}
	if strings.TrimSpace(c.configPath) == "" {
		if envPath := strings.TrimSpace(os.Getenv("WAYMARK_CONFIG")); envPath != "" {
			c.configPath = envPath
		} else {
			c.configPath = paths.ConfigPath
		}
	}

	cfg, err := config.Load(c.configPath, config.Default(dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", c.configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	c.cfg = cfg

	loc, err := display.LoadLocation(cfg.Display.TimeZone)
	if err != nil {
		return err
	}
	c.formatter = display.Formatter{Location: loc, Relative: cfg.Display.RelativeTimes, Now: c.now}

	logger, err := newRuntimeLogger(c.stderr, c.appName, c.devMode, cfg.Logging, paths.LogDir, c.now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	c.logger = logger
	logger.Debug("startup configuration resolved", "app", c.appName, "dev_mode", c.devMode, "command", cmd.CommandPath())
	logger.Debug("configuration loaded", "config_path", c.configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}
	return nil
}

// teardown closes the dev log sink.
func (c *cli) teardown() error {
	if err := c.logger.Close(); err != nil {
		return fmt.Errorf("close runtime log sink: %w", err)
	}
	return nil
}

// withService opens the ledger at the latest schema and runs fn against it.
func (c *cli) withService(fn func(*app.Service) error) error {
	c.logger.Debug("opening sqlite repository", "db_path", c.cfg.Database.Path)
	repo, err := sqlite.Open(c.cfg.Database.Path, sqlite.WithLogger(c.logger.Base()))
	if err != nil {
		c.logger.Error("sqlite open failed", "db_path", c.cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			c.logger.Warn("sqlite close failed", "db_path", c.cfg.Database.Path, "err", closeErr)
		}
	}()

	clock := app.Clock(c.now)
	svc := app.NewService(repo, clock, app.ServiceConfig{
		AutoCreateNodes: c.cfg.Ledger.AutoCreateNodes,
	})
	return fn(svc)
}

// withMigrator opens the database file without evolving it.
func (c *cli) withMigrator(fn func(*sqlite.Migrator) error) error {
	db, err := sqlite.OpenDB(c.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			c.logger.Warn("sqlite close failed", "db_path", c.cfg.Database.Path, "err", closeErr)
		}
	}()
	return fn(sqlite.NewMigrator(db, sqlite.Migrations(), c.logger.Base()))
}

// parseBoolEnv parses a boolean environment variable when present.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}

// parseTimestamp accepts Unix milliseconds or RFC3339. Empty means now.
func parseTimestamp(raw string, now func() time.Time) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now().UnixMilli(), nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: want unix milliseconds or RFC3339", raw)
	}
	return t.UnixMilli(), nil
}

// parseOptionalTimestamp returns nil for an empty flag.
func parseOptionalTimestamp(raw string) (*int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	ms, err := parseTimestamp(raw, time.Now)
	if err != nil {
		return nil, err
	}
	return &ms, nil
}

// parseID parses a positive row id argument.
func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, raw)
	}
	return id, nil
}
