package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/pkg/blackboard"
)

// WriterConfig bounds the write queue. Zero values are replaced by defaults.
type WriterConfig struct {
	BatchSize     int           // Records per flush (50)
	MaxPending    int           // Queue bound; the oldest records are dropped beyond it (1000)
	FlushInterval time.Duration // Periodic flush while Run is active (1s)
	MaxRetries    uint64        // Retries per batch after the first attempt (3)
	RetryInterval time.Duration // Initial backoff interval (200ms)
}

func (c *WriterConfig) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 200 * time.Millisecond
	}
}

type record struct {
	message  *blackboard.OutputMessage
	feedback *blackboard.FeedbackEntry
	metric   string
	day      time.Time
}

// Writer queues persistence records and writes them in bounded batches off the
// pipeline's path. A batch that still fails after its retries is dropped.
type Writer struct {
	store  Store
	userID string
	cfg    WriterConfig
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending []record
	dropped int
	wake    chan struct{}
}

// NewWriter creates a writer for one viewer. logger may be nil.
func NewWriter(store Store, userID string, cfg WriterConfig, logger *zap.Logger) *Writer {
	cfg.defaults()
	return &Writer{
		store:  store,
		userID: userID,
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("persistence"),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
}

// RecordMessage queues an emitted message for the history list.
func (w *Writer) RecordMessage(msg blackboard.OutputMessage) {
	w.enqueue(record{message: &msg, metric: "emitted", day: msg.CreatedAt})
}

// RecordFeedback queues a feedback entry.
func (w *Writer) RecordFeedback(entry blackboard.FeedbackEntry) {
	w.enqueue(record{feedback: &entry, metric: string(entry.Outcome), day: entry.Timestamp})
}

// RecordMetric queues a single daily counter increment.
func (w *Writer) RecordMetric(name string) {
	w.enqueue(record{metric: name, day: w.now()})
}

func (w *Writer) enqueue(r record) {
	if r.day.IsZero() {
		r.day = w.now()
	}

	w.mu.Lock()
	w.pending = append(w.pending, r)
	if over := len(w.pending) - w.cfg.MaxPending; over > 0 {
		w.pending = append([]record(nil), w.pending[over:]...)
		w.dropped += over
	}
	full := len(w.pending) >= w.cfg.BatchSize
	w.mu.Unlock()

	if full {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of queued records.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Dropped returns how many records were discarded because the queue was full.
func (w *Writer) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Run flushes periodically and whenever a full batch is queued. When ctx is
// cancelled it drains what is left with a short grace period and returns.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for w.Pending() > 0 {
				if err := w.Flush(drainCtx); err != nil && drainCtx.Err() != nil {
					break
				}
			}
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
		if err := w.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("persistence flush failed", zap.Error(err))
		}
	}
}

// Flush writes one batch of at most BatchSize records. The batch is removed
// from the queue whether or not the write succeeds.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	n := len(w.pending)
	if n > w.cfg.BatchSize {
		n = w.cfg.BatchSize
	}
	batch := w.pending[:n:n]
	w.pending = append([]record(nil), w.pending[n:]...)
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var (
		history  []blackboard.OutputMessage
		feedback []blackboard.FeedbackEntry
		metrics  = make(map[string]map[string]int64)
		days     = make(map[string]time.Time)
	)
	for _, r := range batch {
		if r.message != nil {
			history = append(history, *r.message)
		}
		if r.feedback != nil {
			feedback = append(feedback, *r.feedback)
		}
		if r.metric != "" {
			day := r.day.UTC().Format("2006-01-02")
			if metrics[day] == nil {
				metrics[day] = make(map[string]int64)
				days[day] = r.day
			}
			metrics[day][r.metric]++
		}
	}

	err := w.retry(ctx, func() error {
		if err := w.store.AppendHistory(ctx, w.userID, history); err != nil {
			return err
		}
		history = nil
		if err := w.store.AppendFeedback(ctx, w.userID, feedback); err != nil {
			return err
		}
		feedback = nil
		for day, counts := range metrics {
			if err := w.store.IncrementMetrics(ctx, w.userID, days[day], counts); err != nil {
				return err
			}
			delete(metrics, day)
		}
		return nil
	})
	if err != nil {
		logging.Event(w.logger, "batch_dropped", zap.Int("records", len(batch)), zap.Error(err))
		return fmt.Errorf("failed to write batch of %d records: %w", len(batch), err)
	}

	logging.Event(w.logger, "batch_written", zap.Int("records", len(batch)))
	return nil
}

func (w *Writer) retry(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryInterval
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, w.cfg.MaxRetries), ctx))
}
