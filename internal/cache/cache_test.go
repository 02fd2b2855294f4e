//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/store"
)

func TestStatusBoard(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb, err := NewRedis(ctx, endpoint, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	board := NewStatusBoard(rdb)
	now := time.Now()
	require.NoError(t, board.Publish(ctx, store.RoomStatus{Name: "a", State: store.StatePlaying, UpdatedAt: now}))
	require.NoError(t, board.Publish(ctx, store.RoomStatus{Name: "b", State: store.StateWaiting, UpdatedAt: now.Add(time.Second)}))

	list, err := board.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Name)

	got, err := board.GetRoom(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, store.StatePlaying, got.State)

	require.NoError(t, board.Remove(ctx, "a"))
	_, err = board.GetRoom(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)
	list, err = board.ListRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
