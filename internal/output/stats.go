package output

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dyluth/hark/pkg/blackboard"
)

const meterName = "github.com/dyluth/hark/internal/output"

// Stats is a snapshot of gate counters.
type Stats struct {
	Emitted    map[blackboard.Channel]int       `json:"emitted_by_channel"`
	Silenced   map[blackboard.SilenceReason]int `json:"silenced_by_reason"`
	Forced     int                              `json:"forced"`
	Downgraded int                              `json:"downgraded"`
	Invalid    int                              `json:"invalid"`
}

// counters keeps in-memory totals for the admin surface and mirrors them
// to OpenTelemetry instruments for export.
type counters struct {
	mu         sync.Mutex
	emitted    map[blackboard.Channel]int
	silenced   map[blackboard.SilenceReason]int
	forced     int
	downgraded int
	invalid    int

	emittedCounter  metric.Int64Counter
	silencedCounter metric.Int64Counter
}

func newCounters(meter metric.Meter) (*counters, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	c := &counters{
		emitted:  make(map[blackboard.Channel]int),
		silenced: make(map[blackboard.SilenceReason]int),
	}

	var err error
	c.emittedCounter, err = meter.Int64Counter("hark.output.emitted",
		metric.WithDescription("Messages emitted by the output gate"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}
	c.silencedCounter, err = meter.Int64Counter("hark.output.silenced",
		metric.WithDescription("Output requests silenced by the output gate"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *counters) emit(channel blackboard.Channel, forced bool) {
	c.mu.Lock()
	c.emitted[channel]++
	if forced {
		c.forced++
	}
	c.mu.Unlock()
	c.emittedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("channel", string(channel))))
}

func (c *counters) silence(reason blackboard.SilenceReason) {
	c.mu.Lock()
	c.silenced[reason]++
	c.mu.Unlock()
	c.silencedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (c *counters) downgrade() {
	c.mu.Lock()
	c.downgraded++
	c.mu.Unlock()
}

func (c *counters) reject() {
	c.mu.Lock()
	c.invalid++
	c.mu.Unlock()
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Emitted:    make(map[blackboard.Channel]int, len(c.emitted)),
		Silenced:   make(map[blackboard.SilenceReason]int, len(c.silenced)),
		Forced:     c.forced,
		Downgraded: c.downgraded,
		Invalid:    c.invalid,
	}
	for k, v := range c.emitted {
		s.Emitted[k] = v
	}
	for k, v := range c.silenced {
		s.Silenced[k] = v
	}
	return s
}
