package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dyluth/hark/pkg/blackboard"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore records writes and can be told to fail a number of calls.
type memStore struct {
	mu       sync.Mutex
	failures int
	history  []blackboard.OutputMessage
	feedback []blackboard.FeedbackEntry
	metrics  map[string]int64
	calls    int
}

func newMemStore() *memStore {
	return &memStore{metrics: make(map[string]int64)}
}

func (s *memStore) fail() error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("redis down")
	}
	return nil
}

func (s *memStore) LoadPreferences(context.Context, string) (blackboard.Preferences, error) {
	return blackboard.Preferences{}, nil
}

func (s *memStore) SavePreferences(context.Context, string, blackboard.Preferences) error {
	return nil
}

func (s *memStore) AppendHistory(_ context.Context, _ string, msgs []blackboard.OutputMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.history = append(s.history, msgs...)
	return nil
}

func (s *memStore) LoadFeedback(context.Context, string) ([]blackboard.FeedbackEntry, error) {
	return nil, nil
}

func (s *memStore) AppendFeedback(_ context.Context, _ string, entries []blackboard.FeedbackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, entries...)
	return nil
}

func (s *memStore) IncrementMetrics(_ context.Context, _ string, _ time.Time, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.metrics[k] += v
	}
	return nil
}

func (s *memStore) historyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func fastConfig() WriterConfig {
	return WriterConfig{FlushInterval: 10 * time.Millisecond, RetryInterval: time.Millisecond}
}

func TestWriter_FlushBatches(t *testing.T) {
	store := newMemStore()
	w := NewWriter(store, "u-1", fastConfig(), nil)

	for i := 0; i < 60; i++ {
		w.RecordMessage(blackboard.OutputMessage{ID: "m", CreatedAt: time.Now()})
	}
	w.RecordFeedback(blackboard.FeedbackEntry{Topic: "t", Outcome: blackboard.OutcomeAccepted, Timestamp: time.Now()})
	require.Equal(t, 61, w.Pending())

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 50, store.historyLen(), "one flush writes at most one batch")
	assert.Equal(t, 11, w.Pending())

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 60, store.historyLen())
	assert.Len(t, store.feedback, 1)
	assert.Equal(t, int64(60), store.metrics["emitted"])
	assert.Equal(t, int64(1), store.metrics["accepted"])
}

func TestWriter_RetriesThenSucceeds(t *testing.T) {
	store := newMemStore()
	store.failures = 2
	w := NewWriter(store, "u-1", fastConfig(), nil)
	w.RecordMessage(blackboard.OutputMessage{ID: "m"})

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 1, store.historyLen())
	assert.Equal(t, 3, store.calls)
}

func TestWriter_DropsBatchAfterRetries(t *testing.T) {
	store := newMemStore()
	store.failures = 10
	w := NewWriter(store, "u-1", fastConfig(), nil)
	w.RecordMessage(blackboard.OutputMessage{ID: "m"})

	err := w.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, 4, store.calls, "first attempt plus three retries")
	assert.Equal(t, 0, w.Pending())
}

func TestWriter_BoundedQueue(t *testing.T) {
	w := NewWriter(newMemStore(), "u-1", WriterConfig{MaxPending: 5}, nil)
	for i := 0; i < 8; i++ {
		w.RecordMetric("decisions")
	}
	assert.Equal(t, 5, w.Pending())
	assert.Equal(t, 3, w.Dropped())
}

func TestWriter_RunDrainsOnCancel(t *testing.T) {
	store := newMemStore()
	cfg := fastConfig()
	cfg.FlushInterval = time.Hour
	w := NewWriter(store, "u-1", cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 3; i++ {
		w.RecordMessage(blackboard.OutputMessage{ID: "m"})
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
	assert.Equal(t, 3, store.historyLen())
}

func TestWriter_RunFlushesFullBatch(t *testing.T) {
	store := newMemStore()
	cfg := fastConfig()
	cfg.FlushInterval = time.Hour
	cfg.BatchSize = 2
	w := NewWriter(store, "u-1", cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	w.RecordMessage(blackboard.OutputMessage{ID: "a"})
	w.RecordMessage(blackboard.OutputMessage{ID: "b"})

	assert.Eventually(t, func() bool { return store.historyLen() == 2 }, time.Second, 5*time.Millisecond)
}
