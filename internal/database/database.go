package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"venue-ledger-api/internal/common"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DefaultTimeout bounds every store call when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Options configures Open.
type Options struct {
	Driver       string        // sqlite3 or pgx
	DSN          string        // file path for sqlite3, connection URL for pgx
	MaxOpenConns int           // ignored for sqlite3, which always uses one
	Timeout      time.Duration // per call or per transaction
}

// DB is the ledger store. Its embedded Queries run outside a transaction.
type DB struct {
	*Queries
	conn    *sql.DB
	driver  string
	timeout time.Duration
}

// Tx is an open ledger transaction. Use only inside WithTx.
type Tx struct {
	*Queries
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every ledger statement. The same methods serve DB and Tx.
type Queries struct {
	r        runner
	postgres bool
}

// NewDB opens a SQLite ledger at dbPath and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	return Open(context.Background(), Options{Driver: DriverSQLite, DSN: dbPath})
}

// Open connects to the configured driver and initializes the schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	var dsn string
	switch opts.Driver {
	case "", DriverSQLite:
		opts.Driver = DriverSQLite
		dsn = sqliteDSN(opts.DSN)
	case DriverPostgres:
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	conn, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.Driver == DriverSQLite {
		// One connection serializes writers; WAL keeps reads cheap.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
		conn.SetMaxIdleConns(opts.MaxOpenConns)
		conn.SetConnMaxLifetime(time.Hour)
	}

	db := &DB{
		Queries: &Queries{r: conn, postgres: opts.Driver == DriverPostgres},
		conn:    conn,
		driver:  opts.Driver,
		timeout: opts.Timeout,
	}

	pingCtx, cancel := db.Bound(ctx)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", classify(err))
	}

	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.WithField("driver", opts.Driver).Debug("ledger store ready")
	return db, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "venue.db"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1&_synchronous=NORMAL"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Ping checks the store answers within the timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.Bound(ctx)
	defer cancel()
	return classify(db.conn.PingContext(ctx))
}

// Bound derives a context limited by the store timeout.
func (db *DB) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.timeout)
}

// WithTx runs fn in one transaction, committing when it returns nil.
// fn must use tx only; on SQLite the DB has a single connection.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	ctx, cancel := db.Bound(ctx)
	defer cancel()

	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}

	tx := &Tx{Queries: &Queries{r: sqlTx, postgres: db.Queries.postgres}}
	if err := fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (q *Queries) rebind(query string) string {
	if !q.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.r.ExecContext(ctx, q.rebind(query), args...)
	return res, classify(err)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := q.r.QueryContext(ctx, q.rebind(query), args...)
	return rows, classify(err)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.r.QueryRowContext(ctx, q.rebind(query), args...)
}

// scanErr maps sql.ErrNoRows to NotFound for entity and classifies the rest.
func scanErr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.NotFound(entity)
	}
	return classify(err)
}

// classify maps driver errors onto the common taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows), common.IsClassified(err):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %w", common.ErrConflict, err)
	case isUnavailable(err):
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isUnavailable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || pgconn.SafeToRetry(err)
}

// timeLayout is fixed width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}
