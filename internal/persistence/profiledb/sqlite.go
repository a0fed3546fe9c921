// Package profiledb is the SQLite-backed profile repository. One writer
// connection in WAL mode is plenty for profile-sized rows; the coordinator's
// permit pools bound concurrency above this layer.
package profiledb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"emberhold.gg/internal/profile"
)

type Store struct {
	db    *sql.DB
	codec *blobCodec

	initialized atomic.Bool
	closed      atomic.Bool
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	codec, err := newBlobCodec()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, codec: codec}
	s.initialized.Store(true)
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps point reads fast while the autosave cycle writes.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			name_lower TEXT NOT NULL,
			flags TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			playtime_secs INTEGER NOT NULL,
			inventory BLOB,
			stats BLOB,
			social BLOB
		);`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_name_lower ON profiles(name_lower);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.initialized.Store(false)
	s.codec.close()
	return s.db.Close()
}

// IsInitialized reports whether the schema is in place and the store is
// open; the health monitor polls it.
func (s *Store) IsInitialized() bool {
	return s != nil && s.initialized.Load()
}

func (s *Store) FindByID(ctx context.Context, id string) (*profile.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, flags, created_at, last_seen, playtime_secs, inventory, stats, social
		FROM profiles WHERE id = ?`, id)

	var rec profile.Record
	var flagsJSON string
	var inv, st, so []byte
	err := row.Scan(&rec.ID, &rec.Name, &flagsJSON,
		&rec.CreatedAtUnix, &rec.LastSeenUnix, &rec.PlaytimeSecs,
		&inv, &st, &so)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flagsJSON), &rec.Flags); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if rec.Inventory, err = s.codec.decode(inv); err != nil {
		return nil, fmt.Errorf("inventory blob: %w", err)
	}
	if rec.Stats, err = s.codec.decode(st); err != nil {
		return nil, fmt.Errorf("stats blob: %w", err)
	}
	if rec.Social, err = s.codec.decode(so); err != nil {
		return nil, fmt.Errorf("social blob: %w", err)
	}
	return &rec, nil
}

// FindByName resolves a record case-insensitively via the name_lower index.
// When several players share a name, the oldest record wins.
func (s *Store) FindByName(ctx context.Context, name string) (*profile.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id FROM profiles WHERE name_lower = ?
		ORDER BY created_at ASC LIMIT 1`, lower(name))
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// List returns up to limit records ordered by last_seen, newest first.
// Sub-documents are not decoded; callers wanting them fetch by id.
func (s *Store) List(ctx context.Context, limit int) ([]*profile.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, flags, created_at, last_seen, playtime_secs
		FROM profiles ORDER BY last_seen DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*profile.Record
	for rows.Next() {
		var rec profile.Record
		var flagsJSON string
		if err := rows.Scan(&rec.ID, &rec.Name, &flagsJSON,
			&rec.CreatedAtUnix, &rec.LastSeenUnix, &rec.PlaytimeSecs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(flagsJSON), &rec.Flags); err != nil {
			return nil, fmt.Errorf("flags: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Store) Save(ctx context.Context, rec *profile.Record) (*profile.Record, error) {
	if rec == nil || rec.ID == "" {
		return nil, fmt.Errorf("invalid record")
	}
	flagsJSON, err := json.Marshal(rec.Flags)
	if err != nil {
		return nil, err
	}
	inv := s.codec.encode(rec.Inventory)
	st := s.codec.encode(rec.Stats)
	so := s.codec.encode(rec.Social)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles(id, name, name_lower, flags, created_at, last_seen, playtime_secs, inventory, stats, social)
		VALUES(?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			name_lower=excluded.name_lower,
			flags=excluded.flags,
			last_seen=excluded.last_seen,
			playtime_secs=excluded.playtime_secs,
			inventory=excluded.inventory,
			stats=excluded.stats,
			social=excluded.social`,
		rec.ID, rec.Name, lower(rec.Name), string(flagsJSON),
		rec.CreatedAtUnix, rec.LastSeenUnix, rec.PlaytimeSecs,
		inv, st, so)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveSync is the blocking, deadline-free save used for first-create and
// shutdown drains.
func (s *Store) SaveSync(rec *profile.Record) (*profile.Record, error) {
	return s.Save(context.Background(), rec)
}
