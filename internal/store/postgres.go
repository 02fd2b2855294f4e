package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx pool and verifies the connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

type PostgresRoomStore struct {
	db *pgxpool.Pool
}

func NewPostgresRoomStore(db *pgxpool.Pool) *PostgresRoomStore {
	return &PostgresRoomStore{db: db}
}

func (s *PostgresRoomStore) Create(ctx context.Context, rec *RoomRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode room: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.Exec(ctx, `
		INSERT INTO rooms (id, name, condition, state, data)
		VALUES ($1, $2, $3, $4, $5)
	`, id, rec.Name, rec.ConditionKey, rec.State(), string(data))
	if err != nil {
		return "", fmt.Errorf("insert room %s: %w", rec.Name, err)
	}
	return id, nil
}

func (s *PostgresRoomStore) Update(ctx context.Context, id string, rec *RoomRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE rooms
		SET state = $2, data = $3, updated_at = now()
		WHERE id = $1
	`, id, rec.State(), string(data))
	if err != nil {
		return fmt.Errorf("update room %s: %w", rec.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresRoomStore) Get(ctx context.Context, id string) (*RoomRecord, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM rooms WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := &RoomRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return rec, nil
}

// CountByState returns how many stored rooms are in each lifecycle state.
func (s *PostgresRoomStore) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `SELECT state, count(*) FROM rooms GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[state] = n
	}
	return out, rows.Err()
}
