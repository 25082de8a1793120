package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/hark/internal/advisor"
	"github.com/dyluth/hark/internal/decision"
	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/internal/output"
	"github.com/dyluth/hark/internal/perception"
	"github.com/dyluth/hark/pkg/blackboard"
)

// Result describes what happened to one raw event.
type Result struct {
	Perception  perception.Perception
	Decision    *blackboard.Decision // Nil when perception rejected the event
	Output      *output.Result       // Set for emit, suggest, escalate and delegate decisions
	Advisor     *advisor.Outcome     // Set for delegate decisions
	ScheduledAt time.Time            // Set for schedule decisions
	Err         error                // Internal failure; the event was dropped
}

// Emitted reports whether the event produced a message.
func (r Result) Emitted() bool {
	return r.Output != nil && r.Output.ShouldEmit
}

// Process runs raw through the whole pipeline synchronously and returns what
// happened. It never panics; internal failures are reported in Result.Err.
// Listeners are notified after the pipeline lock is released so they may call
// back into the core.
func (c *Core) Process(ctx context.Context, raw blackboard.RawEvent) Result {
	res := c.run(ctx, raw)
	if res.Emitted() {
		c.notify(*res.Output.Message)
	}
	return res
}

func (c *Core) run(ctx context.Context, raw blackboard.RawEvent) (res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("pipeline panic: %v", p)
			c.logger.Error("event dropped after panic",
				zap.String("event_type", "pipeline_panic"),
				zap.String("type", raw.Type),
				zap.Error(err),
			)
			c.state.RecordError("core", err)
			res = Result{Err: err}
		}
	}()

	if raw.Timestamp.IsZero() {
		raw.Timestamp = c.now()
	}
	c.state.Update("core", func(st *blackboard.State) { st.Session.Metrics.EventsReceived++ })
	c.recordMetric("events_received")

	p := c.perception.Perceive(raw, c.state.Viewer())
	res.Perception = p
	if !p.ShouldProcess {
		c.stats.reject(ctx, p.RejectionReason)
		c.state.Update("perception", func(st *blackboard.State) { st.Session.Metrics.EventsRejected++ })
		return res
	}

	ev := p.Event
	if nav, ok := ev.Details.(blackboard.NavigationDetails); ok {
		c.state.SetScreen("perception", nav.To)
	}

	d := c.engine.Decide(decision.Context{
		Event:            ev,
		Relevance:        p.RelevanceScore,
		Viewer:           c.state.Viewer(),
		Deferrals:        deferrals(raw),
		AdvisorAvailable: c.advisor.Available(),
		Now:              c.now(),
	})
	res.Decision = &d
	c.stats.decide(ctx, d.Type)
	c.state.Update("decision", func(st *blackboard.State) { st.Session.Metrics.Decisions++ })

	c.execute(ctx, raw, ev, d, &res)
	return res
}

// execute carries out a decision.
func (c *Core) execute(ctx context.Context, raw blackboard.RawEvent, ev *blackboard.NormalizedEvent, d blackboard.Decision, res *Result) {
	switch d.Type {
	case blackboard.DecisionEmit, blackboard.DecisionSuggest, blackboard.DecisionEscalate:
		req := outputRequest(ev, d)
		if d.Type == blackboard.DecisionSuggest && req.Type == blackboard.MessageInfo {
			req.Type = blackboard.MessageSuggestion
		}
		res.Output = c.gate(req)

	case blackboard.DecisionDelegate:
		outcome, req, ok := c.delegate(ctx, ev, d)
		res.Advisor = &outcome
		if !ok {
			c.silenced()
			return
		}
		res.Output = c.gate(req)

	case blackboard.DecisionSchedule:
		at := c.now().Add(c.cfg.Decision.RescheduleDelay)
		if d.Payload != nil && !d.Payload.ScheduleAt.IsZero() {
			at = d.Payload.ScheduleAt
		}
		res.ScheduledAt = at
		c.schedule(raw, at)

	case blackboard.DecisionExecute:
		// no built-in actions; custom rules act in Then and report here
		logging.Event(c.logger, "decision_executed",
			zap.String("event_id", ev.ID),
			zap.String("rule", d.RuleID),
		)

	default:
		c.silenced()
	}
}

func outputRequest(ev *blackboard.NormalizedEvent, d blackboard.Decision) blackboard.OutputRequest {
	if d.Payload != nil && d.Payload.OutputRequest != nil {
		return *d.Payload.OutputRequest
	}
	return *decision.RequestFromEvent(ev)
}

// gate passes a request through the output gate and records the outcome.
func (c *Core) gate(req blackboard.OutputRequest) *output.Result {
	out := c.output.ProcessOutput(req, c.state.Viewer())
	if !out.ShouldEmit {
		c.silenced()
		return &out
	}

	msg := *out.Message
	c.state.Update("output", func(st *blackboard.State) {
		st.Communication.MessagesSent++
		st.Communication.LastMessageAt = msg.CreatedAt
		st.Session.Metrics.Emitted++
	})
	if c.writer != nil {
		c.writer.RecordMessage(msg)
	}
	return &out
}

func (c *Core) silenced() {
	c.state.Update("output", func(st *blackboard.State) {
		st.Communication.MessagesSilent++
		st.Session.Metrics.Silenced++
	})
	c.recordMetric("silenced")
}

// delegate asks the advisor about ev. ok is false when the verdict is not to emit.
func (c *Core) delegate(ctx context.Context, ev *blackboard.NormalizedEvent, d blackboard.Decision) (advisor.Outcome, blackboard.OutputRequest, bool) {
	req := advisor.Request{
		EventType: ev.Type,
		Category:  ev.Category,
		Viewer:    c.state.Viewer(),
		Prompt:    ev.Type,
	}
	base := outputRequest(ev, d)
	if d.Payload != nil && d.Payload.AgentRequest != nil {
		req.Prompt = d.Payload.AgentRequest.Prompt
		req.Hints = d.Payload.AgentRequest.Hints
	}

	outcome := c.advisor.Analyze(ctx, req)
	if outcome.Fallback {
		c.state.RecordError(ComponentAdvisor, outcome.Err)
	}
	a := outcome.Analysis
	if !a.ShouldEmit {
		return outcome, base, false
	}

	if a.Message == "" && !outcome.Fallback {
		if text, ok := c.advisor.GenerateResponse(ctx, a.Title, req); ok {
			a.Message = text
		}
	}

	out := base
	if a.MessageType != "" {
		out.Type = a.MessageType
	}
	if a.Title != "" {
		out.Title = a.Title
	}
	if a.Message != "" {
		out.Message = a.Message
	}
	if a.Topic != "" {
		out.Topic = a.Topic
	}
	if len(a.Actions) > 0 {
		out.Actions = a.Actions
	}
	return outcome, out, true
}

func deferrals(raw blackboard.RawEvent) int {
	n, err := strconv.Atoi(raw.Metadata[deferralsKey])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (c *Core) recordMetric(name string) {
	if c.writer != nil {
		c.writer.RecordMetric(name)
	}
}
