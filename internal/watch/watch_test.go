package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/hark/internal/filter"
	"github.com/dyluth/hark/internal/persistence"
	"github.com/dyluth/hark/pkg/blackboard"
)

func setupClient(t *testing.T) *persistence.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := persistence.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func emitted(topic string, at time.Time) blackboard.OutputMessage {
	return blackboard.OutputMessage{
		ID:        uuid.New().String(),
		Type:      blackboard.MessageInfo,
		Severity:  blackboard.SeverityInfo,
		Message:   "ok",
		Channel:   blackboard.ChannelUser,
		Topic:     topic,
		CreatedAt: at,
	}
}

func TestForMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("returns message already present", func(t *testing.T) {
		client := setupClient(t)
		sent := time.Now()
		require.NoError(t, client.AppendHistory(ctx, "u-1", []blackboard.OutputMessage{emitted("stock", sent)}))

		msg, err := ForMessage(ctx, client, "u-1", filter.Criteria{Since: sent}, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "stock", msg.Topic)
	})

	t.Run("waits for message written later", func(t *testing.T) {
		client := setupClient(t)
		sent := time.Now()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(300 * time.Millisecond)
			client.AppendHistory(ctx, "u-1", []blackboard.OutputMessage{emitted("stock", time.Now())})
		}()

		msg, err := ForMessage(ctx, client, "u-1", filter.Criteria{Since: sent, TopicGlob: "stock"}, 2*time.Second)
		wg.Wait()
		require.NoError(t, err)
		assert.Equal(t, "stock", msg.Topic)
	})

	t.Run("ignores messages before the send", func(t *testing.T) {
		client := setupClient(t)
		sent := time.Now()
		old := emitted("stock", sent.Add(-time.Minute))
		require.NoError(t, client.AppendHistory(ctx, "u-1", []blackboard.OutputMessage{old}))

		_, err := ForMessage(ctx, client, "u-1", filter.Criteria{Since: sent}, 500*time.Millisecond)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		client := setupClient(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := ForMessage(cctx, client, "u-1", filter.Criteria{}, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
