package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/evanschultz/waymark/internal/app"
	"github.com/evanschultz/waymark/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// busyTimeoutMS bounds how long a statement waits on a locked database file.
const busyTimeoutMS = 5000

// Option configures Open and OpenInMemory.
type Option func(*options)

// options holds the optional Open settings.
type options struct {
	logger     *log.Logger
	migrations []Migration
}

// WithLogger routes migration progress to logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMigrations replaces the compiled-in schema history.
func WithMigrations(migrations []Migration) Option {
	return func(o *options) {
		o.migrations = migrations
	}
}

func resolveOptions(opts []Option) options {
	out := options{
		logger:     log.New(io.Discard),
		migrations: Migrations(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	if out.logger == nil {
		out.logger = log.New(io.Discard)
	}
	return out
}

// Repository is the sqlite-backed app.Repository.
type Repository struct {
	store
	db *sql.DB
}

// Open opens the database at path and evolves it to the latest schema.
// A failed migration closes the database and returns a *MigrationError.
func Open(path string, opts ...Option) (*Repository, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return newRepository(db, resolveOptions(opts))
}

// OpenInMemory opens a private in-memory database at the latest schema.
func OpenInMemory(opts ...Option) (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// The database lives as long as its single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return newRepository(db, resolveOptions(opts))
}

// OpenDB opens the database file without touching its schema.
func OpenDB(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMS)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func newRepository(db *sql.DB, opts options) (*Repository, error) {
	migrator := NewMigrator(db, opts.migrations, opts.logger)
	if _, err := migrator.Up(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{store: store{q: db}, db: db}, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// DB exposes the handle for schema tooling.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// WithinTx runs fn in one transaction. It commits when fn returns nil.
func (r *Repository) WithinTx(ctx context.Context, fn func(app.Store) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(store{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithinReadTx runs fn against one snapshot and always rolls back.
func (r *Repository) WithinReadTx(ctx context.Context, fn func(app.Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	return fn(store{q: tx})
}

// dbtx is the query surface shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// store implements app.Store over a database or a transaction.
type store struct {
	q dbtx
}

// CreateNode inserts a node. A positive ID is kept; zero lets sqlite assign one.
func (s store) CreateNode(ctx context.Context, n domain.Node) (domain.Node, error) {
	res, err := s.q.ExecContext(ctx, `INSERT INTO nodes(id, name) VALUES (NULLIF(?, 0), ?)`, n.ID, n.Name)
	if err != nil {
		return domain.Node{}, translateConstraint(err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Node{}, err
	}
	return n, nil
}

// UpdateNode renames a node.
func (s store) UpdateNode(ctx context.Context, n domain.Node) error {
	res, err := s.q.ExecContext(ctx, `UPDATE nodes SET name = ? WHERE id = ?`, n.Name, n.ID)
	if err != nil {
		return translateConstraint(err)
	}
	return translateNoRows(res)
}

// DeleteNode removes a node; referenced nodes fail the foreign key check.
func (s store) DeleteNode(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return translateConstraint(err)
	}
	return translateNoRows(res)
}

// GetNode returns one node.
func (s store) GetNode(ctx context.Context, id int64) (domain.Node, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, name FROM nodes WHERE id = ?`, id)
	return scanNode(row)
}

// FindNodeByName returns the oldest node with name.
func (s store) FindNodeByName(ctx context.Context, name string) (domain.Node, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, name FROM nodes WHERE name = ? ORDER BY id ASC LIMIT 1`, name)
	return scanNode(row)
}

// ListNodes returns nodes ordered by id.
func (s store) ListNodes(ctx context.Context) ([]domain.Node, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name FROM nodes ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Node, 0)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountNodeReferences counts intervals starting or ending at the node.
func (s store) CountNodeReferences(ctx context.Context, id int64) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM intervals WHERE start_node_id = ? OR end_node_id = ?
	`, id, id).Scan(&count)
	return count, err
}

// CreateSequence inserts a sequence.
func (s store) CreateSequence(ctx context.Context, seq domain.Sequence) (domain.Sequence, error) {
	res, err := s.q.ExecContext(ctx, `INSERT INTO sequences(id, status) VALUES (NULLIF(?, 0), ?)`, seq.ID, int(seq.Status))
	if err != nil {
		return domain.Sequence{}, translateConstraint(err)
	}
	seq.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Sequence{}, err
	}
	return seq, nil
}

// UpdateSequence stores a new status.
func (s store) UpdateSequence(ctx context.Context, seq domain.Sequence) error {
	res, err := s.q.ExecContext(ctx, `UPDATE sequences SET status = ? WHERE id = ?`, int(seq.Status), seq.ID)
	if err != nil {
		return translateConstraint(err)
	}
	return translateNoRows(res)
}

// DeleteSequence removes a sequence with no intervals left.
func (s store) DeleteSequence(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sequences WHERE id = ?`, id)
	if err != nil {
		return translateConstraint(err)
	}
	return translateNoRows(res)
}

// GetSequence returns one sequence.
func (s store) GetSequence(ctx context.Context, id int64) (domain.Sequence, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, status FROM sequences WHERE id = ?`, id)
	return scanSequence(row)
}

// GetActiveSequence returns the ACTIVE sequence.
func (s store) GetActiveSequence(ctx context.Context) (domain.Sequence, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, status FROM sequences WHERE status = ?`, int(domain.SequenceActive))
	return scanSequence(row)
}

// ListSequences returns sequences ordered by id.
func (s store) ListSequences(ctx context.Context) ([]domain.Sequence, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, status FROM sequences ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Sequence, 0)
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}

// intervalColumns is the select list scanInterval expects.
const intervalColumns = `id, sequence_id, start_time, start_node_id, end_time, end_node_id`

// CreateInterval inserts an interval.
func (s store) CreateInterval(ctx context.Context, in domain.Interval) (domain.Interval, error) {
	endTime, endNode := nullableEnd(in)
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO intervals(id, sequence_id, start_time, start_node_id, end_time, end_node_id)
		VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?)
	`, in.ID, in.SequenceID, in.StartTime, in.StartNodeID, endTime, endNode)
	if err != nil {
		return domain.Interval{}, translateConstraint(err)
	}
	in.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Interval{}, err
	}
	return in, nil
}

// UpdateInterval stores the end of an interval.
func (s store) UpdateInterval(ctx context.Context, in domain.Interval) error {
	endTime, endNode := nullableEnd(in)
	res, err := s.q.ExecContext(ctx, `
		UPDATE intervals SET end_time = ?, end_node_id = ? WHERE id = ?
	`, endTime, endNode, in.ID)
	if err != nil {
		return translateConstraint(err)
	}
	return translateNoRows(res)
}

// GetInterval returns one interval.
func (s store) GetInterval(ctx context.Context, id int64) (domain.Interval, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+intervalColumns+` FROM intervals WHERE id = ?`, id)
	return scanInterval(row)
}

// GetOpenInterval returns the sequence's open interval.
func (s store) GetOpenInterval(ctx context.Context, sequenceID int64) (domain.Interval, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+intervalColumns+` FROM intervals WHERE sequence_id = ? AND end_time IS NULL
	`, sequenceID)
	return scanInterval(row)
}

// LatestInterval returns the sequence's last interval by start time.
func (s store) LatestInterval(ctx context.Context, sequenceID int64) (domain.Interval, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+intervalColumns+` FROM intervals
		WHERE sequence_id = ?
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`, sequenceID)
	return scanInterval(row)
}

// ListIntervals returns filtered intervals ordered by start time.
func (s store) ListIntervals(ctx context.Context, filter app.IntervalFilter) ([]domain.Interval, error) {
	var (
		where []string
		args  []any
	)
	if filter.SequenceID > 0 {
		where = append(where, `sequence_id = ?`)
		args = append(args, filter.SequenceID)
	}
	if filter.NodeID > 0 {
		where = append(where, `(start_node_id = ? OR end_node_id = ?)`)
		args = append(args, filter.NodeID, filter.NodeID)
	}
	if filter.From != nil {
		where = append(where, `(end_time IS NULL OR end_time >= ?)`)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, `start_time < ?`)
		args = append(args, *filter.To)
	}
	if filter.OpenOnly {
		where = append(where, `end_time IS NULL`)
	}

	var query strings.Builder
	query.WriteString(`SELECT ` + intervalColumns + ` FROM intervals`)
	if len(where) > 0 {
		query.WriteString(` WHERE ` + strings.Join(where, ` AND `))
	}
	query.WriteString(` ORDER BY start_time ASC, id ASC`)
	if filter.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Interval, 0)
	for rows.Next() {
		in, err := scanInterval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// DeleteIntervalsBySequence removes a sequence's intervals and returns their ids.
func (s store) DeleteIntervalsBySequence(ctx context.Context, sequenceID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id FROM intervals WHERE sequence_id = ? ORDER BY id ASC`, sequenceID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if _, err := s.q.ExecContext(ctx, `DELETE FROM intervals WHERE sequence_id = ?`, sequenceID); err != nil {
		return nil, translateConstraint(err)
	}
	return ids, nil
}

// AppendChangeEvents writes activity-log rows.
func (s store) AppendChangeEvents(ctx context.Context, events []domain.ChangeEvent) error {
	for _, event := range events {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO change_events(table_name, operation, row_id, occurred_at)
			VALUES (?, ?, ?, ?)
		`, string(event.Table), string(event.Operation), event.RowID, event.OccurredAt); err != nil {
			return fmt.Errorf("insert change event: %w", err)
		}
	}
	return nil
}

// ListChangeEvents returns the newest events first. A non-positive limit returns all.
func (s store) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, table_name, operation, row_id, occurred_at
		FROM change_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event     domain.ChangeEvent
			table, op string
		)
		if err := rows.Scan(&event.ID, &table, &op, &event.RowID, &event.OccurredAt); err != nil {
			return nil, err
		}
		event.Table = domain.ChangeTable(table)
		event.Operation = domain.ChangeOperation(op)
		out = append(out, event)
	}
	return out, rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanNode scans one node row.
func scanNode(s scanner) (domain.Node, error) {
	var n domain.Node
	if err := s.Scan(&n.ID, &n.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Node{}, app.ErrNotFound
		}
		return domain.Node{}, err
	}
	return n, nil
}

// scanSequence scans one sequence row.
func scanSequence(s scanner) (domain.Sequence, error) {
	var (
		seq    domain.Sequence
		status int
	)
	if err := s.Scan(&seq.ID, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sequence{}, app.ErrNotFound
		}
		return domain.Sequence{}, err
	}
	seq.Status = domain.SequenceStatus(status)
	if !seq.Status.IsValid() {
		return domain.Sequence{}, fmt.Errorf("decode sequences.status %d: %w", status, domain.ErrInvalidSequenceStatus)
	}
	return seq, nil
}

// scanInterval scans one interval row, turning the nullable end columns into an IntervalEnd.
func scanInterval(s scanner) (domain.Interval, error) {
	var (
		in      domain.Interval
		endTime sql.NullInt64
		endNode sql.NullInt64
	)
	if err := s.Scan(&in.ID, &in.SequenceID, &in.StartTime, &in.StartNodeID, &endTime, &endNode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Interval{}, app.ErrNotFound
		}
		return domain.Interval{}, err
	}
	in.End = domain.OpenEnd()
	if endTime.Valid && endNode.Valid {
		in.End = domain.ClosedEnd(endTime.Int64, endNode.Int64)
	}
	return in, nil
}

// nullableEnd maps an IntervalEnd to the two nullable columns.
func nullableEnd(in domain.Interval) (any, any) {
	end, nodeID, ok := in.End.Closed()
	if !ok {
		return nil, nil
	}
	return end, nodeID
}

// translateNoRows maps an update or delete that touched nothing to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// translateConstraint reports schema constraint failures as conflicts.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint failed") {
		return fmt.Errorf("%w: %w", app.ErrConflict, err)
	}
	return err
}

// ts formats migration bookkeeping times.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a value written by ts.
func parseTS(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
