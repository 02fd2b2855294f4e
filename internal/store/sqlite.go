package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRoomStore persists room snapshots in a local SQLite file.
type SQLiteRoomStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at path and applies embedded migrations.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteRoomStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single connection keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(db, "sqlite3", "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteRoomStore{db: db, now: time.Now}, nil
}

func (s *SQLiteRoomStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRoomStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteRoomStore) Create(ctx context.Context, rec *RoomRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode room: %w", err)
	}
	id := uuid.NewString()
	now := s.now().UTC().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, condition, state, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, rec.Name, rec.ConditionKey, rec.State(), string(data), now, now)
	if err != nil {
		return "", fmt.Errorf("insert room %s: %w", rec.Name, err)
	}
	return id, nil
}

func (s *SQLiteRoomStore) Update(ctx context.Context, id string, rec *RoomRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET state = ?, data = ?, updated_at = ? WHERE id = ?
	`, rec.State(), string(data), s.now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update room %s: %w", rec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteRoomStore) Get(ctx context.Context, id string) (*RoomRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM rooms WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := &RoomRecord{}
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return rec, nil
}
