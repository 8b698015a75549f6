// Package gsqlite is a SQLite implementation of the gstore interfaces.
//
// The driver is chosen by build tags:
// the cgo build uses mattn/go-sqlite3,
// and the purego tag (or a build without cgo) uses modernc.org/sqlite.
package gsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/trace"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/gstall/gstore"
)

// Store satisfies [gstore.Store].
type Store struct {
	// The string "purego" or "cgo" depending on build tags.
	BuildType string

	db *sql.DB
}

// NewOnDiskStore opens or creates the database file at dbPath.
func NewOnDiskStore(ctx context.Context, dbPath string) (*Store, error) {
	dbPath = filepath.Clean(dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %q: %w", dbPath, err)
		}

		// Opening in rw mode requires an existing file.
		// O_EXCL so we never truncate a file created concurrently.
		f, err := os.OpenFile(dbPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create empty database file: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close new empty database file: %w", err)
		}
	}

	db, err := open(ctx, "file:"+dbPath+"?mode=rw")
	if err != nil {
		return nil, err
	}

	// Persistent, and only relevant to on-disk databases.
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}

	return &Store{BuildType: sqliteBuildType, db: db}, nil
}

var inMemNameCounter uint32

// NewInMemStore returns a Store backed by a private in-memory database.
func NewInMemStore(ctx context.Context) (*Store, error) {
	uri := fmt.Sprintf("file:gstall%d", atomic.AddUint32(&inMemNameCounter, 1)) +
		// Unique name plus shared cache, so every pooled connection sees the same database.
		"?mode=memory&cache=shared" +
		"&_txlock=immediate"

	db, err := open(ctx, uri)
	if err != nil {
		return nil, err
	}

	return &Store{BuildType: sqliteBuildType, db: db}, nil
}

func open(ctx context.Context, uri string) (*sql.DB, error) {
	// The driver type comes from the sqlitedriver_*.go file chosen by build tags.
	db, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// A single connection makes concurrent writers wait on the pool
	// instead of failing with "database is locked".
	db.SetMaxOpenConns(1)

	if err := pragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func pragmas(ctx context.Context, db *sql.DB) error {
	defer trace.StartRegion(ctx, "pragmas").End()

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 1000;`); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("error closing database: %w", err)
	}
	return nil
}

func (s *Store) LoadQuota(ctx context.Context) (gstore.Quota, error) {
	defer trace.StartRegion(ctx, "LoadQuota").End()

	var q gstore.Quota
	err := s.db.QueryRowContext(
		ctx, `SELECT day, count FROM quota WHERE id=0`,
	).Scan(&q.Day, &q.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return gstore.Quota{}, gstore.ErrNoQuota
	}
	if err != nil {
		return gstore.Quota{}, fmt.Errorf("failed to load quota: %w", err)
	}
	return q, nil
}

func (s *Store) SaveQuota(ctx context.Context, q gstore.Quota) error {
	defer trace.StartRegion(ctx, "SaveQuota").End()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO quota(id, day, count) VALUES (0, ?, ?)
ON CONFLICT(id) DO UPDATE SET day = excluded.day, count = excluded.count`,
		q.Day, q.Count,
	)
	if err != nil {
		return fmt.Errorf("failed to save quota: %w", err)
	}
	return nil
}

func (s *Store) AddPendingLaunch(ctx context.Context, p gstore.PendingLaunch) error {
	defer trace.StartRegion(ctx, "AddPendingLaunch").End()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pending_launches(id, kind, added_ms) VALUES (?, ?, ?)`,
		p.ID, p.Kind, p.Added.UnixMilli(),
	)
	if err != nil {
		if isPrimaryKeyConstraintError(err) {
			return gstore.DuplicateLaunchError{ID: p.ID}
		}
		return fmt.Errorf("failed to add pending launch: %w", err)
	}
	return nil
}

func (s *Store) RemovePendingLaunch(ctx context.Context, id string) error {
	defer trace.StartRegion(ctx, "RemovePendingLaunch").End()

	if _, err := s.db.ExecContext(
		ctx, `DELETE FROM pending_launches WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("failed to remove pending launch: %w", err)
	}
	return nil
}

func (s *Store) PendingLaunches(ctx context.Context) ([]gstore.PendingLaunch, error) {
	defer trace.StartRegion(ctx, "PendingLaunches").End()

	rows, err := s.db.QueryContext(
		ctx, `SELECT id, kind, added_ms FROM pending_launches ORDER BY added_ms, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending launches: %w", err)
	}
	defer rows.Close()

	var out []gstore.PendingLaunch
	for rows.Next() {
		var p gstore.PendingLaunch
		var ms int64
		if err := rows.Scan(&p.ID, &p.Kind, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan pending launch: %w", err)
		}
		p.Added = time.UnixMilli(ms).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending launches: %w", err)
	}
	return out, nil
}
