// Package core is the single entry point of the pipeline. It owns the event
// queue and drives each raw event through perception, decision and output,
// one event at a time, publishing emitted messages to listeners.
package core

import (
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/dyluth/hark/internal/advisor"
	"github.com/dyluth/hark/internal/config"
	"github.com/dyluth/hark/internal/decision"
	"github.com/dyluth/hark/internal/learning"
	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/internal/memory"
	"github.com/dyluth/hark/internal/output"
	"github.com/dyluth/hark/internal/perception"
	"github.com/dyluth/hark/internal/persistence"
	"github.com/dyluth/hark/pkg/blackboard"
)

const (
	meterName = "github.com/dyluth/hark/internal/core"

	defaultQueueSize           = 256
	defaultMaintenanceInterval = time.Minute

	// deferralsKey is the raw-event metadata field counting reschedules.
	deferralsKey = "hark_deferrals"
)

// Component names reported in Health.ActiveComponents.
const (
	ComponentLearning    = "learning"
	ComponentAdvisor     = "advisor"
	ComponentPersistence = "persistence"
)

// Listener receives every emitted message. A returned error or panic is
// recorded in Health and does not affect other listeners.
type Listener func(blackboard.OutputMessage) error

// Option configures a Core.
type Option func(*options)

type options struct {
	logger              *zap.Logger
	meter               metric.Meter
	now                 func() time.Time
	advisor             advisor.Advisor
	store               persistence.Store
	writerCfg           persistence.WriterConfig
	rules               []decision.Rule
	queueSize           int
	maintenanceInterval time.Duration
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeter sets the OpenTelemetry meter. The global provider is used otherwise.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithClock replaces time.Now in every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithAdvisor wires a language-model collaborator. Without one, delegate
// rules never fire and GenerateResponse is unavailable.
func WithAdvisor(a advisor.Advisor) Option {
	return func(o *options) { o.advisor = a }
}

// WithPersistence wires the persistence collaborator.
func WithPersistence(s persistence.Store, cfg persistence.WriterConfig) Option {
	return func(o *options) {
		o.store = s
		o.writerCfg = cfg
	}
}

// WithRules appends rules to the decision table on top of the built-in and
// domain rule sets.
func WithRules(rules ...decision.Rule) Option {
	return func(o *options) { o.rules = append(o.rules, rules...) }
}

// WithQueueSize bounds the event queue.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithMaintenanceInterval sets how often Run prunes memory and reruns learning analysis.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(o *options) { o.maintenanceInterval = d }
}

// Core owns the shared state and every pipeline stage for one viewer.
type Core struct {
	cfg    *config.HarkConfig
	logger *zap.Logger
	now    func() time.Time

	state      *blackboard.Store
	perception *perception.Gate
	engine     *decision.Engine
	memory     *memory.Memory
	output     *output.Gate
	learner    *learning.Learner
	advisor    *advisor.Guarded
	store      persistence.Store
	writer     *persistence.Writer

	queue               chan blackboard.RawEvent
	maintenanceInterval time.Duration

	// mu serialises pipeline runs and feedback so no two events are decided
	// against the shared state at once.
	mu sync.Mutex

	listenersMu  sync.RWMutex
	listeners    []listenerEntry
	nextListener int

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	stopped  bool

	stats *counters
}

// New builds a core from configuration. cfg may be nil to use defaults.
func New(cfg *config.HarkConfig, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{
		queueSize:           defaultQueueSize,
		maintenanceInterval: defaultMaintenanceInterval,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = otel.Meter(meterName)
	}
	if o.queueSize <= 0 {
		o.queueSize = defaultQueueSize
	}
	if o.maintenanceInterval <= 0 {
		o.maintenanceInterval = defaultMaintenanceInterval
	}
	logger := logging.OrNop(o.logger)

	state := blackboard.NewStoreWithClock(blackboard.Identity{
		UserID:     cfg.Identity.UserID,
		Role:       blackboard.Role(cfg.Identity.Role),
		Tier:       cfg.Identity.Tier,
		SkillLevel: cfg.Identity.SkillLevel,
	}, o.now)

	mem := memory.New(memory.Config{
		Retention:          cfg.Memory.Retention,
		DedupWindow:        cfg.Output.DedupWindow,
		ConversationWindow: cfg.Output.ConversationWindow,
		TopicSaturation:    cfg.Output.TopicSaturation,
		TopicBlock:         cfg.Output.TopicBlock,
		AcceptanceWindow:   cfg.Memory.AcceptanceWindow,
	}, o.now)
	learner := learning.New(o.now)

	gate, err := output.NewGate(output.Config{
		UserRatePerMinute:  cfg.Output.UserRatePerMinute,
		AdminRatePerMinute: cfg.Output.AdminRatePerMinute,
		MessageTTL:         cfg.Output.MessageTTL,
		SilentActivities:   cfg.Output.SilentActivities,
	}, mem, o.meter,
		output.WithLearner(learner),
		output.WithLogger(logger),
		output.WithClock(o.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create output gate: %w", err)
	}

	engine := decision.NewEngine(decision.Config{
		RescheduleDelay: cfg.Decision.RescheduleDelay,
		MaxDeferrals:    cfg.Decision.MaxDeferrals,
		BusyActivities:  cfg.Decision.BusyActivities,
	}, logger)
	if err := engine.AddRules(decision.DomainRules()); err != nil {
		return nil, fmt.Errorf("failed to load domain rules: %w", err)
	}
	if err := engine.AddRules(o.rules); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	stats, err := newCounters(o.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create core metrics: %w", err)
	}

	c := &Core{
		cfg:                 cfg,
		logger:              logger.Named("core"),
		now:                 o.now,
		state:               state,
		perception:          perception.NewGate(logger, o.now),
		engine:              engine,
		memory:              mem,
		output:              gate,
		learner:             learner,
		advisor:             advisor.NewGuarded(o.advisor, cfg.Advisor.Timeout, logger),
		store:               o.store,
		queue:               make(chan blackboard.RawEvent, o.queueSize),
		maintenanceInterval: o.maintenanceInterval,
		timers:              make(map[*time.Timer]struct{}),
		stats:               stats,
	}
	if o.store != nil {
		c.writer = persistence.NewWriter(o.store, cfg.Identity.UserID, o.writerCfg, logger)
	}

	state.SetComponentAvailable("core", ComponentLearning, true)
	if o.advisor != nil {
		state.SetComponentAvailable("core", ComponentAdvisor, true)
	}
	if o.store != nil {
		state.SetComponentAvailable("core", ComponentPersistence, true)
	}
	return c, nil
}

// State returns the shared state store. Callers outside the pipeline should
// only read from it.
func (c *Core) State() *blackboard.Store {
	return c.state
}

// Engine returns the decision engine so callers can add or remove rules.
func (c *Core) Engine() *decision.Engine {
	return c.engine
}

// MarkUnavailable records that an optional subsystem failed to initialise.
// The core keeps running without it.
func (c *Core) MarkUnavailable(component string, err error) {
	c.logger.Warn("component unavailable, continuing degraded",
		zap.String("event_type", "component_unavailable"),
		zap.String("component", component),
		zap.Error(err),
	)
	c.state.SetComponentAvailable("core", component, false)
}
