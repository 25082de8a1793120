package core

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/internal/perception"
	"github.com/dyluth/hark/pkg/blackboard"
)

// EventSource delivers raw events from an external producer, such as the
// Redis ingress subscription.
type EventSource interface {
	Events() <-chan blackboard.RawEvent
	Errors() <-chan error
}

// Send enqueues raw for the drain loop. It returns false when the event is
// noise, the queue is full, or the core has stopped.
func (c *Core) Send(raw blackboard.RawEvent) bool {
	if !perception.QuickFilter(raw.Type) {
		return false
	}

	c.timersMu.Lock()
	stopped := c.stopped
	c.timersMu.Unlock()
	if stopped {
		return false
	}

	if raw.Timestamp.IsZero() {
		raw.Timestamp = c.now()
	}
	select {
	case c.queue <- raw:
		return true
	default:
		c.logger.Warn("event queue full, dropping event",
			zap.String("event_type", "queue_full"),
			zap.String("type", raw.Type),
		)
		return false
	}
}

// QueueDepth returns the number of events waiting to be processed.
func (c *Core) QueueDepth() int {
	return len(c.queue)
}

// Run drains the queue in FIFO order until ctx is cancelled, running periodic
// maintenance and, when persistence is wired, the background writer.
// Pending scheduled events are discarded on return.
func (c *Core) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if c.writer != nil {
		g.Go(func() error { return c.writer.Run(ctx) })
	}

	g.Go(func() error {
		defer c.stopTimers()
		ticker := time.NewTicker(c.maintenanceInterval)
		defer ticker.Stop()

		logging.Event(c.logger, "core_started", zap.Int("rules", len(c.engine.RuleIDs())))
		for {
			select {
			case <-ctx.Done():
				logging.Event(c.logger, "core_stopped", zap.Int("queued", len(c.queue)))
				return nil
			case raw := <-c.queue:
				c.Process(ctx, raw)
			case <-ticker.C:
				c.Maintain()
			}
		}
	})

	return g.Wait()
}

// Consume forwards events from src into the queue until ctx is cancelled or
// src closes. Source errors are logged and skipped.
func (c *Core) Consume(ctx context.Context, src EventSource) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case raw, ok := <-src.Events():
			if !ok {
				logging.Event(c.logger, "ingress_closed")
				return nil
			}
			c.Send(raw)

		case err, ok := <-src.Errors():
			if !ok {
				return nil
			}
			c.logger.Warn("ingress error", zap.String("event_type", "ingress_error"), zap.Error(err))
		}
	}
}

// Maintain prunes expired memory and recomputes learned patterns.
func (c *Core) Maintain() {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, blocks := c.memory.Cleanup()
	c.learner.RunAnalysis()
	logging.Event(c.logger, "maintenance",
		zap.Int("pruned_messages", msgs),
		zap.Int("pruned_blocks", blocks),
	)
}

// schedule re-sends raw at the given time with its deferral count incremented.
func (c *Core) schedule(raw blackboard.RawEvent, at time.Time) {
	next := raw
	next.Metadata = make(map[string]string, len(raw.Metadata)+1)
	for k, v := range raw.Metadata {
		next.Metadata[k] = v
	}
	next.Metadata[deferralsKey] = strconv.Itoa(deferrals(raw) + 1)

	delay := at.Sub(c.now())
	if delay < 0 {
		delay = 0
	}

	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if c.stopped {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.timersMu.Lock()
		delete(c.timers, t)
		c.timersMu.Unlock()
		c.Send(next)
	})
	c.timers[t] = struct{}{}

	logging.Event(c.logger, "event_scheduled",
		zap.String("type", raw.Type),
		zap.Duration("delay", delay),
		zap.String("deferrals", next.Metadata[deferralsKey]),
	)
}

// Pending returns the number of scheduled events not yet re-sent.
func (c *Core) Pending() int {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	return len(c.timers)
}

func (c *Core) stopTimers() {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	c.stopped = true
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[*time.Timer]struct{})
}
