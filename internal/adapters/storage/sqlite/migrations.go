package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Migration is one ordered, reversible schema change.
type Migration struct {
	Version int
	Name    string
	Up      []string
	Down    []string
}

// Checksum fingerprints the Up statements so edits to applied migrations are detected.
func (m Migration) Checksum() string {
	sum := sha256.New()
	for _, stmt := range m.Up {
		_, _ = io.WriteString(sum, strings.TrimSpace(stmt))
		_, _ = sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil))
}

// MigrationStatus reports whether a known migration has been applied.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// MigrationError wraps a failure with the version and step that caused it.
type MigrationError struct {
	Version   int
	Operation string
	Err       error
}

// Error implements error.
func (e *MigrationError) Error() string {
	if e.Version == 0 {
		return fmt.Sprintf("migration %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("migration %d %s: %v", e.Version, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

var (
	ErrMigrationSequence  = errors.New("migration versions must be contiguous from 1")
	ErrChecksumMismatch   = errors.New("applied migration checksum mismatch")
	ErrUnknownMigration   = errors.New("applied migration is unknown to this binary")
	ErrNothingToRollBack  = errors.New("no applied migrations to roll back")
	ErrInvalidMigrateStep = errors.New("steps must be positive")
)

// Migrations returns the schema history in apply order.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_nodes_and_intervals",
			Up: []string{
				`CREATE TABLE nodes (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL
				)`,
				`CREATE TABLE intervals (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					start_time INTEGER NOT NULL,
					end_time INTEGER,
					start_node_id INTEGER NOT NULL REFERENCES nodes(id),
					end_node_id INTEGER REFERENCES nodes(id),
					CHECK (end_time IS NULL OR end_time >= start_time),
					CHECK ((end_time IS NULL) = (end_node_id IS NULL))
				)`,
			},
			Down: []string{
				`DROP TABLE intervals`,
				`DROP TABLE nodes`,
			},
		},
		{
			Version: 2,
			Name:    "add_sequences",
			Up: []string{
				`CREATE TABLE sequences (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					status INTEGER NOT NULL CHECK (status IN (1, 2))
				)`,
				// Ledgers from before sequences existed become one legacy episode.
				`INSERT INTO sequences(id, status)
					SELECT 1, CASE WHEN EXISTS (SELECT 1 FROM intervals WHERE end_time IS NULL) THEN 1 ELSE 2 END
					WHERE EXISTS (SELECT 1 FROM intervals)`,
				`CREATE TABLE intervals_next (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					start_time INTEGER NOT NULL,
					end_time INTEGER,
					start_node_id INTEGER NOT NULL REFERENCES nodes(id),
					end_node_id INTEGER REFERENCES nodes(id),
					sequence_id INTEGER NOT NULL REFERENCES sequences(id),
					CHECK (end_time IS NULL OR end_time >= start_time),
					CHECK ((end_time IS NULL) = (end_node_id IS NULL))
				)`,
				`INSERT INTO intervals_next(id, start_time, end_time, start_node_id, end_node_id, sequence_id)
					SELECT id, start_time, end_time, start_node_id, end_node_id, 1 FROM intervals`,
				`DROP TABLE intervals`,
				`ALTER TABLE intervals_next RENAME TO intervals`,
				`CREATE UNIQUE INDEX idx_sequences_single_active ON sequences(status) WHERE status = 1`,
				`CREATE UNIQUE INDEX idx_intervals_single_open ON intervals(sequence_id) WHERE end_time IS NULL`,
				`CREATE INDEX idx_intervals_sequence_start ON intervals(sequence_id, start_time)`,
			},
			Down: []string{
				`CREATE TABLE intervals_prev (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					start_time INTEGER NOT NULL,
					end_time INTEGER,
					start_node_id INTEGER NOT NULL REFERENCES nodes(id),
					end_node_id INTEGER REFERENCES nodes(id),
					CHECK (end_time IS NULL OR end_time >= start_time),
					CHECK ((end_time IS NULL) = (end_node_id IS NULL))
				)`,
				`INSERT INTO intervals_prev(id, start_time, end_time, start_node_id, end_node_id)
					SELECT id, start_time, end_time, start_node_id, end_node_id FROM intervals`,
				`DROP TABLE intervals`,
				`ALTER TABLE intervals_prev RENAME TO intervals`,
				`DROP TABLE sequences`,
			},
		},
		{
			Version: 3,
			Name:    "add_change_events",
			Up: []string{
				`CREATE TABLE change_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					table_name TEXT NOT NULL,
					operation TEXT NOT NULL,
					row_id INTEGER NOT NULL,
					occurred_at INTEGER NOT NULL
				)`,
				`CREATE INDEX idx_change_events_occurred_at ON change_events(occurred_at DESC, id DESC)`,
			},
			Down: []string{
				`DROP TABLE change_events`,
			},
		},
	}
}

// appliedMigration is one schema_migrations row.
type appliedMigration struct {
	name      string
	checksum  string
	appliedAt time.Time
}

// Migrator applies and reverts migrations, tracking them in schema_migrations.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	logger     *log.Logger
}

// NewMigrator constructs a migrator. A nil logger discards output.
func NewMigrator(db *sql.DB, migrations []Migration, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{db: db, migrations: sorted, logger: logger}
}

// Up applies every pending migration in order and returns how many ran.
// Running it against an up-to-date database is a no-op.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	applied, err := m.prepare(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, migration := range m.migrations {
		if _, ok := applied[migration.Version]; ok {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return count, err
		}
		m.logger.Info("migration applied", "version", migration.Version, "name", migration.Name)
		count++
	}
	return count, nil
}

// Down reverts the latest steps applied migrations, newest first.
func (m *Migrator) Down(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		return 0, &MigrationError{Operation: "down", Err: ErrInvalidMigrateStep}
	}
	applied, err := m.prepare(ctx)
	if err != nil {
		return 0, err
	}
	if len(applied) == 0 {
		return 0, &MigrationError{Operation: "down", Err: ErrNothingToRollBack}
	}
	count := 0
	for idx := len(m.migrations) - 1; idx >= 0 && count < steps; idx-- {
		migration := m.migrations[idx]
		if _, ok := applied[migration.Version]; !ok {
			continue
		}
		if err := m.revert(ctx, migration); err != nil {
			return count, err
		}
		m.logger.Info("migration reverted", "version", migration.Version, "name", migration.Name)
		count++
	}
	return count, nil
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.prepare(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(m.migrations))
	for _, migration := range m.migrations {
		row, ok := applied[migration.Version]
		out = append(out, MigrationStatus{
			Version:   migration.Version,
			Name:      migration.Name,
			Applied:   ok,
			AppliedAt: row.appliedAt,
		})
	}
	return out, nil
}

// Version returns the highest applied version, or 0 for an empty database.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	applied, err := m.prepare(ctx)
	if err != nil {
		return 0, err
	}
	version := 0
	for v := range applied {
		version = max(version, v)
	}
	return version, nil
}

// prepare validates the compiled-in list and the persisted history.
func (m *Migrator) prepare(ctx context.Context) (map[int]appliedMigration, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if _, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return nil, &MigrationError{Operation: "create version table", Err: err}
	}
	applied, err := m.loadApplied(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[int]Migration, len(m.migrations))
	for _, migration := range m.migrations {
		known[migration.Version] = migration
	}
	for version, row := range applied {
		migration, ok := known[version]
		if !ok {
			return nil, &MigrationError{Version: version, Operation: "verify", Err: ErrUnknownMigration}
		}
		if row.checksum != migration.Checksum() {
			return nil, &MigrationError{Version: version, Operation: "verify", Err: ErrChecksumMismatch}
		}
	}
	return applied, nil
}

// validate requires versions 1..N with no gaps or duplicates.
func (m *Migrator) validate() error {
	for idx, migration := range m.migrations {
		if migration.Version != idx+1 {
			return &MigrationError{
				Version:   migration.Version,
				Operation: "validate",
				Err:       fmt.Errorf("%w: expected version %d", ErrMigrationSequence, idx+1),
			}
		}
		if strings.TrimSpace(migration.Name) == "" || len(migration.Up) == 0 {
			return &MigrationError{Version: migration.Version, Operation: "validate", Err: errors.New("name and up statements are required")}
		}
	}
	return nil
}

// loadApplied reads the schema_migrations table.
func (m *Migrator) loadApplied(ctx context.Context) (map[int]appliedMigration, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version, name, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, &MigrationError{Operation: "load history", Err: err}
	}
	defer rows.Close()

	out := map[int]appliedMigration{}
	for rows.Next() {
		var (
			version   int
			row       appliedMigration
			appliedAt string
		)
		if err := rows.Scan(&version, &row.name, &row.checksum, &appliedAt); err != nil {
			return nil, &MigrationError{Operation: "load history", Err: err}
		}
		row.appliedAt = parseTS(appliedAt)
		out[version] = row
	}
	if err := rows.Err(); err != nil {
		return nil, &MigrationError{Operation: "load history", Err: err}
	}
	return out, nil
}

// apply runs one migration and records it in the same transaction.
func (m *Migrator) apply(ctx context.Context, migration Migration) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return &MigrationError{Version: migration.Version, Operation: "up", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range migration.Up {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return &MigrationError{Version: migration.Version, Operation: "up", Err: err}
		}
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO schema_migrations(version, name, checksum, applied_at)
		VALUES (?, ?, ?, ?)
	`, migration.Version, migration.Name, migration.Checksum(), ts(time.Now())); err != nil {
		return &MigrationError{Version: migration.Version, Operation: "record", Err: err}
	}
	if err = tx.Commit(); err != nil {
		return &MigrationError{Version: migration.Version, Operation: "commit", Err: err}
	}
	return nil
}

// revert runs one migration's Down statements and forgets it.
func (m *Migrator) revert(ctx context.Context, migration Migration) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return &MigrationError{Version: migration.Version, Operation: "down", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range migration.Down {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return &MigrationError{Version: migration.Version, Operation: "down", Err: err}
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, migration.Version); err != nil {
		return &MigrationError{Version: migration.Version, Operation: "record", Err: err}
	}
	if err = tx.Commit(); err != nil {
		return &MigrationError{Version: migration.Version, Operation: "commit", Err: err}
	}
	return nil
}
