// Package output is the last gate before a message reaches a viewer. It
// applies silence windows, learned preferences, deduplication and per-channel
// rate limits, then formats and records whatever survives.
package output

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/internal/memory"
	"github.com/dyluth/hark/pkg/blackboard"
)

const (
	// adjustments at or below this downgrade the request severity
	downgradeThreshold = -0.2
	// the channel may run this far over the learned ideal frequency
	throttleFactor = 1.5
	// added to the silence wait when the viewer has been ignoring messages
	unreceptivePenalty = 5 * time.Minute
	// the hard per-channel cap is counted over this sliding window
	rateWindow = time.Minute
)

// Learner is the subset of learned preferences the gate consults.
type Learner interface {
	ShouldAvoidTopic(topic string) bool
	RelevanceAdjustment(topic string, typ blackboard.MessageType) float64
	IdealFrequency() (perHour int, known bool)
}

// Config holds the gate limits. Zero values are replaced by defaults.
type Config struct {
	UserRatePerMinute  int
	AdminRatePerMinute int
	MessageTTL         time.Duration
	SilentActivities   []string
}

func (c *Config) defaults() {
	if c.UserRatePerMinute <= 0 {
		c.UserRatePerMinute = 3
	}
	if c.AdminRatePerMinute <= 0 {
		c.AdminRatePerMinute = 10
	}
	if c.MessageTTL <= 0 {
		c.MessageTTL = 30 * time.Second
	}
	if c.SilentActivities == nil {
		c.SilentActivities = []string{"presenting", "typing_sensitive"}
	}
}

// Result is the outcome of ProcessOutput.
type Result struct {
	ShouldEmit    bool
	SilenceReason blackboard.SilenceReason
	Message       *blackboard.OutputMessage
	SuggestedWait time.Duration
	Err           error // Set when the request itself is invalid
}

// Gate decides whether an output request is emitted. It is not meant to be
// driven concurrently for the same viewer; the core serialises calls.
type Gate struct {
	cfg     Config
	mem     *memory.Memory
	learner Learner
	caps    map[blackboard.Channel]int
	silent  map[string]bool
	stats   *counters
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithLearner wires learned preferences into steps 3 to 5.
func WithLearner(l Learner) Option {
	return func(g *Gate) { g.learner = l }
}

// WithLogger sets the gate logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = logging.OrNop(l).Named("output") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates an output gate over the given memory. meter may be nil to
// use the global OpenTelemetry meter provider.
func NewGate(cfg Config, mem *memory.Memory, meter metric.Meter, opts ...Option) (*Gate, error) {
	cfg.defaults()
	stats, err := newCounters(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create output metrics: %w", err)
	}

	g := &Gate{
		cfg:    cfg,
		mem:    mem,
		stats:  stats,
		silent: make(map[string]bool, len(cfg.SilentActivities)),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, a := range cfg.SilentActivities {
		g.silent[a] = true
	}
	for _, opt := range opts {
		opt(g)
	}

	g.caps = map[blackboard.Channel]int{
		blackboard.ChannelUser:  cfg.UserRatePerMinute,
		blackboard.ChannelAdmin: cfg.AdminRatePerMinute,
	}
	return g, nil
}

// Stats returns a snapshot of the gate counters.
func (g *Gate) Stats() Stats {
	return g.stats.snapshot()
}

// ProcessOutput runs the ordered gate checks against req. Force skips every
// check; critical severity skips everything except deduplication and the
// hard rate limit.
func (g *Gate) ProcessOutput(req blackboard.OutputRequest, viewer blackboard.Viewer) Result {
	if err := req.Validate(); err != nil {
		g.stats.reject()
		g.logger.Warn("invalid output request", zap.String("event_type", "output_invalid"), zap.Error(err))
		return Result{Err: err}
	}

	now := g.now()
	topic := req.Topic
	guarded := !req.Force && req.Severity != blackboard.SeverityCritical

	if guarded {
		// 1. silence window
		if viewer.Silenced && now.Before(viewer.SilenceUntil) {
			wait := viewer.SilenceUntil.Sub(now)
			if !g.mem.IsReceptive() {
				wait += unreceptivePenalty
			}
			return g.silence(req, blackboard.SilenceRequested, wait)
		}

		// 2. silent activity
		if g.silent[viewer.Activity] {
			return g.silence(req, blackboard.SilenceUserBusy, 0)
		}

		// muted by the viewer
		if viewer.IsMuted(topic) {
			return g.silence(req, blackboard.SilenceLowRelevance, 0)
		}

		if g.learner != nil {
			// 3. learned avoidance
			if g.learner.ShouldAvoidTopic(topic) {
				return g.silence(req, blackboard.SilenceLowRelevance, 0)
			}

			// 4. learned relevance adjustment
			if g.learner.RelevanceAdjustment(topic, req.Type) <= downgradeThreshold {
				lower, ok := req.Severity.Downgrade()
				if !ok {
					return g.silence(req, blackboard.SilenceLowRelevance, 0)
				}
				req.Severity = lower
				g.stats.downgrade()
			}

			// 5. frequency throttle
			if ideal, known := g.learner.IdealFrequency(); known && ideal > 0 {
				sent := g.mem.ChannelCount(req.Channel, time.Hour)
				if float64(sent) >= float64(ideal)*throttleFactor {
					return g.silence(req, blackboard.SilenceRateLimited, time.Hour/time.Duration(ideal))
				}
			}
		}
	}

	hash := memory.SemanticHash(string(req.Type), topic, hashText(req))

	if !req.Force {
		// 6. duplication
		if dup := g.mem.CheckDuplication(hash, topic); dup.IsDuplicate {
			var wait time.Duration
			if dup.Original != nil {
				wait = g.mem.Config().DedupWindow - dup.TimeSinceOriginal
			}
			return g.silence(req, dup.Reason, wait)
		}

		// 7. hard rate limit
		if wait, limited := g.rateLimitWait(req.Channel, now); limited {
			return g.silence(req, blackboard.SilenceRateLimited, wait)
		}
	}

	// 8. receptivity floor for low-value messages
	if guarded && (req.Severity == blackboard.SeverityLow || req.Severity == blackboard.SeverityInfo) {
		switch {
		case viewer.Verbosity == blackboard.VerbosityQuiet:
			return g.silence(req, blackboard.SilenceLowRelevance, 0)
		case viewer.Verbosity != blackboard.VerbosityChatty && !g.mem.IsReceptive():
			return g.silence(req, blackboard.SilenceLowRelevance, 0)
		}
	}

	// 9. format, record, count
	return g.emit(req, hash, viewer, now)
}

// hashText is the content fingerprinted for deduplication.
func hashText(req blackboard.OutputRequest) string {
	if req.Message != "" {
		return req.Message
	}
	return req.Title
}

// rateLimitWait reports whether the channel already carried its cap of
// messages in the last minute and, if so, how long until the oldest of them
// leaves the window. Forced messages count towards the cap.
func (g *Gate) rateLimitWait(channel blackboard.Channel, now time.Time) (time.Duration, bool) {
	count, oldest := g.mem.ChannelWindow(channel, rateWindow)
	if count < g.caps[channel] {
		return 0, false
	}
	wait := oldest.Add(rateWindow).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, true
}

func (g *Gate) emit(req blackboard.OutputRequest, hash string, viewer blackboard.Viewer, now time.Time) Result {
	ctx := make(map[string]string, len(req.Context)+1)
	for k, v := range req.Context {
		ctx[k] = v
	}
	ctx["timestamp"] = now.UTC().Format(time.RFC3339)

	msg := &blackboard.OutputMessage{
		ID:           uuid.New().String(),
		SemanticHash: hash,
		Type:         req.Type,
		Severity:     req.Severity,
		Title:        req.Title,
		Message:      req.Message,
		Channel:      req.Channel,
		Topic:        req.Topic,
		Actions:      append([]blackboard.Action(nil), req.Actions...),
		Context:      ctx,
		Dismissable:  req.Dismissable && req.Severity != blackboard.SeverityCritical,
		TTL:          g.cfg.MessageTTL,
		CreatedAt:    now,
	}

	g.mem.Remember(blackboard.SentMessage{
		ID:           msg.ID,
		SemanticHash: hash,
		MessageType:  msg.Type,
		Channel:      msg.Channel,
		SentAt:       now,
		Screen:       viewer.Screen,
		Topic:        msg.Topic,
	})
	g.stats.emit(msg.Channel, req.Force)

	logging.Event(g.logger, "message_emitted",
		zap.String("message_id", msg.ID),
		zap.String("semantic_hash", hash),
		zap.String("channel", string(msg.Channel)),
		zap.String("topic", msg.Topic),
		zap.String("severity", string(msg.Severity)),
		zap.Bool("forced", req.Force),
	)
	return Result{ShouldEmit: true, Message: msg}
}

func (g *Gate) silence(req blackboard.OutputRequest, reason blackboard.SilenceReason, wait time.Duration) Result {
	g.stats.silence(reason)
	logging.Event(g.logger, "message_silenced",
		zap.String("reason", string(reason)),
		zap.String("channel", string(req.Channel)),
		zap.String("topic", req.Topic),
		zap.Duration("suggested_wait", wait),
	)
	return Result{SilenceReason: reason, SuggestedWait: wait}
}
