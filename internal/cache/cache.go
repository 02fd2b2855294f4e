package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/store"
)

func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

const (
	KeyRoomStatus = "levee:room:%s:status"
	KeyLiveRooms  = "levee:rooms:live"
)

// statusTTL bounds how long a status survives a crashed writer.
const statusTTL = 6 * time.Hour

// StatusBoard mirrors live room summaries into redis so operators and other
// processes can read them without touching the game loop.
type StatusBoard struct {
	rdb *redis.Client
}

func NewStatusBoard(rdb *redis.Client) *StatusBoard {
	return &StatusBoard{rdb: rdb}
}

func (b *StatusBoard) Publish(ctx context.Context, status store.RoomStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyRoomStatus, status.Name), data, statusTTL)
	pipe.ZAdd(ctx, KeyLiveRooms, redis.Z{Score: float64(status.UpdatedAt.UnixMilli()), Member: status.Name})
	_, err = pipe.Exec(ctx)
	return err
}

func (b *StatusBoard) Remove(ctx context.Context, name string) error {
	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(KeyRoomStatus, name))
	pipe.ZRem(ctx, KeyLiveRooms, name)
	_, err := pipe.Exec(ctx)
	return err
}

// GetRoom returns a room's status, or store.ErrNotFound.
func (b *StatusBoard) GetRoom(ctx context.Context, name string) (*store.RoomStatus, error) {
	data, err := b.rdb.Get(ctx, fmt.Sprintf(KeyRoomStatus, name)).Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s store.RoomStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListRooms returns live room statuses, most recently updated first. Names whose
// status expired are pruned from the index.
func (b *StatusBoard) ListRooms(ctx context.Context) ([]store.RoomStatus, error) {
	names, err := b.rdb.ZRevRange(ctx, KeyLiveRooms, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]store.RoomStatus, 0, len(names))
	for _, name := range names {
		s, err := b.GetRoom(ctx, name)
		if err == store.ErrNotFound {
			b.rdb.ZRem(ctx, KeyLiveRooms, name)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (b *StatusBoard) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
