package relay

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/relay/migrations"
	"github.com/matheus3301/chatsync/internal/syncerr"
	_ "github.com/mattn/go-sqlite3"
)

// DocStore persists documents as JSON bodies keyed by (collection, id).
type DocStore struct {
	db     *sql.DB
	driver string
}

// OpenDocStore connects with driver "sqlite3" or "mysql".
func OpenDocStore(driver, dsn string) (*DocStore, error) {
	if driver == "sqlite3" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "mysql" {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &DocStore{db: db, driver: driver}, nil
}

func (d *DocStore) Close() error { return d.db.Close() }

// Migrate applies the schema for the store's driver and returns the version.
func (d *DocStore) Migrate() (uint, error) {
	dir := "sqlite"
	if d.driver == "mysql" {
		dir = "mysql"
	}
	source, err := iofs.New(migrations.FS, dir)
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}

	var drv database.Driver
	switch d.driver {
	case "mysql":
		drv, err = migratemysql.WithInstance(d.db, &migratemysql.Config{})
	default:
		drv, err = migratesqlite.WithInstance(d.db, &migratesqlite.Config{})
	}
	if err != nil {
		return 0, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, d.driver, drv)
	if err != nil {
		return 0, fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migration up: %w", err)
	}
	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	return version, nil
}

func (d *DocStore) upsertSQL() string {
	if d.driver == "mysql" {
		return `INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
}

func (d *DocStore) write(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, collection, id string, doc fields.Map) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := q.ExecContext(ctx, d.upsertSQL(), collection, id, string(body), doc["updatedAt"].AsInt64()); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return nil
}

// Set replaces the document and returns what was stored.
func (d *DocStore) Set(ctx context.Context, collection, id string, doc fields.Map) (fields.Map, error) {
	doc = doc.Clone()
	doc["objectId"] = fields.String(id)
	return doc, d.write(ctx, d.db, collection, id, doc)
}

// Merge updates the fields of an existing document. A missing document is
// syncerr.ErrNotFound.
func (d *DocStore) Merge(ctx context.Context, collection, id string, patch fields.Map) (fields.Map, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := d.get(ctx, tx, collection, id)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		cur[k] = v
	}
	cur["objectId"] = fields.String(id)
	if err := d.write(ctx, tx, collection, id, cur); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return cur, nil
}

// Get loads one document.
func (d *DocStore) Get(ctx context.Context, collection, id string) (fields.Map, error) {
	return d.get(ctx, d.db, collection, id)
}

func (d *DocStore) get(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, collection, id string) (fields.Map, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, syncerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	var doc fields.Map
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Query scans the collection in updatedAt order and keeps matching
// documents. An updatedAt lower bound in f narrows the scan in SQL.
func (d *DocStore) Query(ctx context.Context, collection string, f query.Filter) ([]fields.Map, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", syncerr.ErrUnsupported, err)
	}
	var since int64
	for _, c := range f {
		if c.Field == "updatedAt" && (c.Op == query.Gt || c.Op == query.Ge) && c.Value.Kind() == fields.KindInt64 {
			since = max(since, c.Value.AsInt64())
		}
	}
	rows, err := d.db.QueryContext(ctx, `SELECT body FROM documents WHERE collection = ? AND updated_at >= ? ORDER BY updated_at, id`, collection, since)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var out []fields.Map
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var doc fields.Map
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		ok, err := f.Match(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", syncerr.ErrUnsupported, err)
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, rows.Err()
}
