// Package decision implements the rule engine that turns a normalized event
// and the current viewer snapshot into exactly one Decision.
//
// Rules are evaluated in descending priority, first match wins. The table is
// kept sorted with a stable sort so rules sharing a priority keep their
// registration order.
package decision

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/pkg/blackboard"
)

// Context is everything a rule may look at.
type Context struct {
	Event            *blackboard.NormalizedEvent
	Relevance        float64
	Viewer           blackboard.Viewer
	Deferrals        int  // Times this event has already been rescheduled
	AdvisorAvailable bool // A language-model collaborator is wired
	Now              time.Time
}

// Rule is one row of the decision table.
type Rule struct {
	ID       string
	Priority int
	When     func(Context) bool
	Then     func(Context) blackboard.Decision
}

// Config tunes the built-in rules. Zero values are replaced by defaults.
type Config struct {
	RescheduleDelay time.Duration
	MaxDeferrals    int
	BusyActivities  []string
}

func (c *Config) defaults() {
	if c.RescheduleDelay <= 0 {
		c.RescheduleDelay = 30 * time.Second
	}
	if c.MaxDeferrals <= 0 {
		c.MaxDeferrals = 3
	}
	if c.BusyActivities == nil {
		c.BusyActivities = []string{"filling_form", "calculating"}
	}
}

// Engine holds the ordered rule table.
type Engine struct {
	mu     sync.RWMutex
	rules  []Rule
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates an engine loaded with the built-in rules.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	cfg.defaults()
	e := &Engine{cfg: cfg, logger: logging.OrNop(logger).Named("decision")}
	for _, r := range builtinRules(cfg) {
		// built-in ids are unique
		_ = e.AddRule(r)
	}
	return e
}

// AddRule inserts a rule and re-sorts the table.
func (e *Engine) AddRule(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if r.When == nil || r.Then == nil {
		return fmt.Errorf("rule %s: When and Then are required", r.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("rule %s already registered", r.ID)
		}
	}
	e.rules = append(e.rules, r)
	sort.SliceStable(e.rules, func(i, j int) bool { return e.rules[i].Priority > e.rules[j].Priority })
	return nil
}

// AddRules registers a rule set, stopping at the first error.
func (e *Engine) AddRules(rules []Rule) error {
	for _, r := range rules {
		if err := e.AddRule(r); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRule deletes a rule by id. The remaining table stays sorted.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// RuleIDs returns the rule ids in evaluation order.
func (e *Engine) RuleIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID
	}
	return ids
}

// Decide evaluates the table against ctx. A rule that panics is skipped and
// logged. If nothing matches, a zero-confidence silence is returned and the
// miss is logged as an engine defect.
func (e *Engine) Decide(ctx Context) blackboard.Decision {
	if ctx.Now.IsZero() {
		ctx.Now = time.Now()
	}

	e.mu.RLock()
	rules := append([]Rule(nil), e.rules...)
	e.mu.RUnlock()

	for _, r := range rules {
		d, matched, err := evaluate(r, ctx)
		if err != nil {
			e.logger.Error("rule evaluation failed",
				zap.String("event_type", "rule_panic"),
				zap.String("rule_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		if !matched {
			continue
		}

		d.RuleID = r.ID
		d.Confidence = clamp01(d.Confidence)
		if d.ShouldLog {
			logging.Event(e.logger, "decision_made",
				zap.String("event_id", ctx.Event.ID),
				zap.String("rule_id", r.ID),
				zap.String("decision", string(d.Type)),
				zap.String("reason", d.Reason),
				zap.Float64("confidence", d.Confidence),
			)
		}
		return d
	}

	e.logger.Error("no rule matched",
		zap.String("event_type", "engine_defect"),
		zap.String("event_id", ctx.Event.ID),
		zap.String("type", ctx.Event.Type),
	)
	return blackboard.Decision{
		Type:      blackboard.DecisionSilence,
		Reason:    "no rule matched",
		ShouldLog: true,
	}
}

func evaluate(r Rule, ctx Context) (d blackboard.Decision, matched bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in rule %s: %v", r.ID, p)
		}
	}()
	if !r.When(ctx) {
		return blackboard.Decision{}, false, nil
	}
	return r.Then(ctx), true, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
