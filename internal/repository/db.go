package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps the schedule store connection. Queries are written with "?"
// placeholders and rebound for postgres.
type DB struct {
	*sql.DB
	driver string
}

func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	db, err := open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.migrate(ctx, scheduleSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenOfflineQueue opens the local sqlite file that buffers writes while
// the schedule store is unreachable.
func OpenOfflineQueue(ctx context.Context, path string) (*DB, error) {
	db, err := open(ctx, DriverSQLite, path)
	if err != nil {
		return nil, err
	}
	if err := db.migrate(ctx, offlineSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func open(ctx context.Context, driver, dsn string) (*DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// a single connection serializes writers; claims rely on it
		conn.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := conn.ExecContext(ctx, pragma); execErr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
	} else {
		conn.SetMaxOpenConns(20)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	err = retry.Do(
		func() error { return conn.PingContext(ctx) },
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("store not reachable yet", "driver", driver, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return &DB{DB: conn, driver: driver}, nil
}

func (d *DB) Driver() string {
	return d.driver
}

// Rebind converts "?" placeholders to "$n" for postgres.
func (d *DB) Rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
// fn must route every statement through tx.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Info(rbErr.Error())
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Online reports whether the store answers a ping.
func (d *DB) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return d.PingContext(ctx) == nil
}

func (d *DB) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	query = d.Rebind(query)
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return d.ExecContext(ctx, query, args...)
}

func (d *DB) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	query = d.Rebind(query)
	if tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return d.QueryRowContext(ctx, query, args...)
}

func (d *DB) query(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	query = d.Rebind(query)
	if tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return d.QueryContext(ctx, query, args...)
}

func (d *DB) migrate(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
