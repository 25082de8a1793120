package core

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dyluth/hark/internal/learning"
	"github.com/dyluth/hark/internal/output"
	"github.com/dyluth/hark/internal/perception"
	"github.com/dyluth/hark/pkg/blackboard"
)

// Stats is the aggregate view served to the admin surface.
type Stats struct {
	Decisions   map[blackboard.DecisionType]int    `json:"decisions_by_type"`
	Rejections  map[perception.RejectionReason]int `json:"rejections_by_reason"`
	Output      output.Stats                       `json:"output"`
	Preferences learning.Preferences               `json:"learned_preferences"`
	Session     blackboard.SessionMetrics          `json:"session"`
	Health      blackboard.Health                  `json:"health"`
	QueueDepth  int                                `json:"queue_depth"`
	Scheduled   int                                `json:"scheduled"`
	Persistence *PersistenceStats                  `json:"persistence,omitempty"`
}

// PersistenceStats reports the background writer queue.
type PersistenceStats struct {
	Pending int `json:"pending"`
	Dropped int `json:"dropped"`
}

// Stats returns a snapshot of every counter.
func (c *Core) Stats() Stats {
	decisions, rejections := c.stats.snapshot()
	st := c.state.Snapshot()
	s := Stats{
		Decisions:   decisions,
		Rejections:  rejections,
		Output:      c.output.Stats(),
		Preferences: c.learner.Preferences(),
		Session:     st.Session.Metrics,
		Health:      st.Health,
		QueueDepth:  c.QueueDepth(),
		Scheduled:   c.Pending(),
	}
	if c.writer != nil {
		s.Persistence = &PersistenceStats{Pending: c.writer.Pending(), Dropped: c.writer.Dropped()}
	}
	return s
}

type counters struct {
	mu         sync.Mutex
	decisions  map[blackboard.DecisionType]int
	rejections map[perception.RejectionReason]int

	decisionCounter  metric.Int64Counter
	rejectionCounter metric.Int64Counter
}

func newCounters(meter metric.Meter) (*counters, error) {
	decisionCounter, err := meter.Int64Counter("hark.core.decisions",
		metric.WithDescription("Decisions made, by decision type"))
	if err != nil {
		return nil, err
	}
	rejectionCounter, err := meter.Int64Counter("hark.core.rejections",
		metric.WithDescription("Events rejected by perception, by reason"))
	if err != nil {
		return nil, err
	}
	return &counters{
		decisions:        make(map[blackboard.DecisionType]int),
		rejections:       make(map[perception.RejectionReason]int),
		decisionCounter:  decisionCounter,
		rejectionCounter: rejectionCounter,
	}, nil
}

func (c *counters) decide(ctx context.Context, t blackboard.DecisionType) {
	c.mu.Lock()
	c.decisions[t]++
	c.mu.Unlock()
	c.decisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(t))))
}

func (c *counters) reject(ctx context.Context, reason perception.RejectionReason) {
	c.mu.Lock()
	c.rejections[reason]++
	c.mu.Unlock()
	c.rejectionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (c *counters) snapshot() (map[blackboard.DecisionType]int, map[perception.RejectionReason]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	decisions := make(map[blackboard.DecisionType]int, len(c.decisions))
	for k, v := range c.decisions {
		decisions[k] = v
	}
	rejections := make(map[perception.RejectionReason]int, len(c.rejections))
	for k, v := range c.rejections {
		rejections[k] = v
	}
	return decisions, rejections
}
