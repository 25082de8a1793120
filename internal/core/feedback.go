package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/internal/persistence"
	"github.com/dyluth/hark/pkg/blackboard"
)

type listenerEntry struct {
	id int
	fn Listener
}

// Subscribe registers a listener for emitted messages and returns a function
// that removes it. Listeners are notified in subscription order.
func (c *Core) Subscribe(l Listener) func() {
	c.listenersMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: l})
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		for i, e := range c.listeners {
			if e.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Core) notify(msg blackboard.OutputMessage) {
	c.listenersMu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, e := range c.listeners {
		listeners = append(listeners, e.fn)
	}
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		if err := deliver(l, msg); err != nil {
			c.logger.Warn("listener failed",
				zap.String("event_type", "listener_failed"),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			c.state.RecordError("listener", err)
		}
	}
}

func deliver(l Listener, msg blackboard.OutputMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panic: %v", p)
		}
	}()
	return l(msg)
}

// ProvideFeedback records the viewer's reaction to an emitted message.
// Dismissal blocks the message's topic; the first outcome for a message feeds
// learning and later feedback on it is ignored. topic may be empty when the
// message is still in memory.
func (c *Core) ProvideFeedback(semanticHash, topic string, outcome blackboard.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return fmt.Errorf("invalid feedback: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		msg   blackboard.SentMessage
		known bool
	)
	switch outcome {
	case blackboard.OutcomeAccepted:
		msg, known = c.memory.MarkAccepted(semanticHash)
	case blackboard.OutcomeDismissed:
		msg, known = c.memory.MarkDismissed(semanticHash)
		if !known && topic != "" {
			c.memory.BlockTopic(topic, 0, "dismissed")
		}
	case blackboard.OutcomeIgnored:
		msg, known = c.memory.MarkIgnored(semanticHash)
	}
	if !known && msg.Outcome != "" {
		// outcome already recorded for this message
		logging.Event(c.logger, "feedback_repeated",
			zap.String("hash", semanticHash),
			zap.String("topic", msg.Topic),
			zap.String("outcome", string(outcome)),
			zap.String("recorded_outcome", string(msg.Outcome)),
		)
		return nil
	}
	if topic == "" {
		topic = msg.Topic
	}

	entry := c.learner.RecordFeedback(topic, msg.MessageType, outcome)
	c.learner.RunAnalysis()
	if c.writer != nil {
		c.writer.RecordFeedback(entry)
	}

	c.state.Update("feedback", func(st *blackboard.State) {
		switch outcome {
		case blackboard.OutcomeAccepted:
			st.Session.Metrics.Accepted++
		case blackboard.OutcomeDismissed:
			st.Session.Metrics.Dismissed++
		case blackboard.OutcomeIgnored:
			st.Session.Metrics.Ignored++
		}
	})

	logging.Event(c.logger, "feedback_recorded",
		zap.String("hash", semanticHash),
		zap.String("topic", topic),
		zap.String("outcome", string(outcome)),
		zap.Bool("known_message", known),
	)
	return nil
}

// RequestSilence opens a global silence window. Only critical or forced
// messages are emitted until it expires.
func (c *Core) RequestSilence(d time.Duration, reason string) time.Time {
	until := c.state.RequestSilence("core", d, reason)
	logging.Event(c.logger, "silence_requested",
		zap.Duration("duration", d),
		zap.Time("until", until),
		zap.String("reason", reason),
	)
	return until
}

// ClearSilence closes any active silence window.
func (c *Core) ClearSilence() {
	c.state.ClearSilence("core")
}

// SetActivity records what the viewer is currently doing.
func (c *Core) SetActivity(activity string) {
	c.state.SetActivity("ui", activity)
}

// Restore loads persisted preferences and feedback history. Failures mark
// persistence unavailable and the core continues with empty history.
func (c *Core) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	userID := c.cfg.Identity.UserID

	prefs, err := c.store.LoadPreferences(ctx, userID)
	switch {
	case persistence.IsNotFound(err):
	case err != nil:
		c.MarkUnavailable(ComponentPersistence, err)
		return fmt.Errorf("failed to restore preferences: %w", err)
	default:
		c.state.Update("persistence", func(st *blackboard.State) { st.Identity.Preferences = prefs })
	}

	entries, err := c.store.LoadFeedback(ctx, userID)
	if err != nil {
		c.MarkUnavailable(ComponentPersistence, err)
		return fmt.Errorf("failed to restore feedback: %w", err)
	}
	c.mu.Lock()
	c.learner.Restore(entries)
	c.mu.Unlock()

	logging.Event(c.logger, "state_restored", zap.Int("feedback_entries", len(entries)))
	return nil
}

// SetPreferences replaces the viewer's display preferences and persists them
// when persistence is wired. A persistence failure leaves the in-memory update in place.
func (c *Core) SetPreferences(ctx context.Context, prefs blackboard.Preferences) error {
	c.state.Update("preferences", func(st *blackboard.State) { st.Identity.Preferences = prefs })
	if c.store == nil {
		return nil
	}
	if err := c.store.SavePreferences(ctx, c.cfg.Identity.UserID, prefs); err != nil {
		c.state.RecordError(ComponentPersistence, err)
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
