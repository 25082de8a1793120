package decision

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dyluth/hark/pkg/blackboard"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func event(typ string, category blackboard.Category, priority blackboard.Priority, details blackboard.Details) *blackboard.NormalizedEvent {
	audience := blackboard.AudienceUser
	if category == blackboard.CategoryGovernance {
		audience = blackboard.AudienceAdmin
	}
	if details == nil {
		details = blackboard.GenericDetails{}
	}
	return blackboard.NewNormalizedEvent(blackboard.NormalizedEvent{
		ID:             uuid.New().String(),
		Type:           typ,
		Category:       category,
		Details:        details,
		Timestamp:      now,
		Priority:       priority,
		TargetAudience: audience,
		RelevanceScore: 0.6,
	}, nil, nil)
}

func ctxFor(ev *blackboard.NormalizedEvent, relevance float64, viewer blackboard.Viewer) Context {
	return Context{Event: ev, Relevance: relevance, Viewer: viewer, Now: now}
}

func user() blackboard.Viewer {
	return blackboard.Viewer{Role: blackboard.RoleUser, Activity: "idle"}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(Config{}, nil)
	require.NoError(t, e.AddRules(DomainRules()))
	return e
}

func TestEngine_RuleOrder(t *testing.T) {
	e := newEngine(t)
	assert.Equal(t, []string{
		"critical_emit",
		"silence_window",
		"busy_activity",
		"admin_only",
		"governance_escalate",
		"margin_negative",
		"margin_critical",
		"margin_low",
		"margin_excellent",
		"ai_delegate",
		"low_relevance",
		"navigation_track",
		"calculation_while_calculating",
		"default_emit",
		"fallback_silence",
	}, e.RuleIDs())
}

func TestEngine_AddRemoveRule(t *testing.T) {
	e := NewEngine(Config{}, nil)
	always := func(Context) bool { return true }
	then := func(Context) blackboard.Decision {
		return blackboard.Decision{Type: blackboard.DecisionSuggest, Confidence: 0.4}
	}

	require.NoError(t, e.AddRule(Rule{ID: "outrank", Priority: 200, When: always, Then: then}))
	require.NoError(t, e.AddRule(Rule{ID: "tie_a", Priority: 50, When: always, Then: then}))
	require.NoError(t, e.AddRule(Rule{ID: "tie_b", Priority: 50, When: always, Then: then}))

	ids := e.RuleIDs()
	assert.Equal(t, "outrank", ids[0])
	assert.Less(t, indexOf(ids, "tie_a"), indexOf(ids, "tie_b"), "ties keep registration order")

	d := e.Decide(ctxFor(event("click", blackboard.CategoryInteraction, blackboard.PriorityCritical, nil), 1, user()))
	assert.Equal(t, "outrank", d.RuleID)

	assert.Error(t, e.AddRule(Rule{ID: "outrank", Priority: 1, When: always, Then: then}))
	assert.Error(t, e.AddRule(Rule{ID: "", When: always, Then: then}))
	assert.Error(t, e.AddRule(Rule{ID: "x"}))

	assert.True(t, e.RemoveRule("outrank"))
	assert.False(t, e.RemoveRule("outrank"))
	assert.Equal(t, "critical_emit", e.RuleIDs()[0])
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestEngine_ScenarioMarginCritical(t *testing.T) {
	e := newEngine(t)
	ev := event("calc:completed", blackboard.CategoryCalculation, blackboard.PriorityMedium,
		blackboard.CalculationDetails{Values: map[string]float64{"margemLucro": 3}})

	d := e.Decide(ctxFor(ev, 0.6, user()))

	assert.Equal(t, blackboard.DecisionEmit, d.Type)
	assert.GreaterOrEqual(t, d.Confidence, 0.9)
	require.NotNil(t, d.Payload)
	req := d.Payload.OutputRequest
	require.NotNil(t, req)
	assert.Equal(t, blackboard.MessageWarning, req.Type)
	assert.Equal(t, blackboard.SeverityHigh, req.Severity)
	assert.Equal(t, "margem_critica", req.Topic)
	assert.Equal(t, blackboard.ChannelUser, req.Channel)
	assert.NoError(t, req.Validate())
}

func TestEngine_MarginBands(t *testing.T) {
	tests := []struct {
		margin   float64
		key      string
		rule     string
		topic    string
		severity blackboard.Severity
	}{
		{-2, "margemLucro", "margin_negative", "margem_negativa", blackboard.SeverityCritical},
		{0, "profitMargin", "margin_critical", "margem_critica", blackboard.SeverityHigh},
		{10, "margemLucro", "margin_low", "margem_baixa", blackboard.SeverityMedium},
		{45, "profitMargin", "margin_excellent", "margem_excelente", blackboard.SeverityLow},
		{25, "margemLucro", "default_emit", "calc:completed", blackboard.SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			e := newEngine(t)
			ev := event("calc:completed", blackboard.CategoryCalculation, blackboard.PriorityMedium,
				blackboard.CalculationDetails{Values: map[string]float64{tt.key: tt.margin}})
			d := e.Decide(ctxFor(ev, 0.6, user()))
			assert.Equal(t, tt.rule, d.RuleID)
			require.NotNil(t, d.Payload.OutputRequest)
			assert.Equal(t, tt.topic, d.Payload.OutputRequest.Topic)
			assert.Equal(t, tt.severity, d.Payload.OutputRequest.Severity)
		})
	}
}

func TestEngine_BuiltinRules(t *testing.T) {
	silenced := user()
	silenced.Silenced = true
	silenced.SilenceUntil = now.Add(5 * time.Minute)
	admin := blackboard.Viewer{Role: blackboard.RoleAdmin}
	filling := blackboard.Viewer{Role: blackboard.RoleUser, Activity: "filling_form"}
	calculating := blackboard.Viewer{Role: blackboard.RoleUser, Activity: "calculating"}

	tests := []struct {
		name      string
		ev        *blackboard.NormalizedEvent
		relevance float64
		viewer    blackboard.Viewer
		deferrals int
		wantRule  string
		wantType  blackboard.DecisionType
	}{
		{"critical beats silence", event("click", blackboard.CategoryInteraction, blackboard.PriorityCritical, nil), 1, silenced, 0, "critical_emit", blackboard.DecisionEmit},
		{"silence window", event("click", blackboard.CategoryInteraction, blackboard.PriorityHigh, nil), 0.9, silenced, 0, "silence_window", blackboard.DecisionSilence},
		{"busy reschedules high", event("insight:x", blackboard.CategoryInsight, blackboard.PriorityHigh, nil), 0.7, filling, 0, "busy_activity", blackboard.DecisionSchedule},
		{"busy silences medium", event("insight:x", blackboard.CategoryInsight, blackboard.PriorityMedium, nil), 0.7, filling, 0, "busy_activity", blackboard.DecisionSilence},
		{"deferrals exhausted fall through", event("insight:x", blackboard.CategoryInsight, blackboard.PriorityHigh, nil), 0.7, filling, 3, "default_emit", blackboard.DecisionEmit},
		{"admin only for user", event("gov:x", blackboard.CategoryGovernance, blackboard.PriorityHigh, nil), 0.7, user(), 0, "admin_only", blackboard.DecisionSilence},
		{"governance escalates for admin", event("gov:x", blackboard.CategoryGovernance, blackboard.PriorityHigh, nil), 0.7, admin, 0, "governance_escalate", blackboard.DecisionEscalate},
		{"low relevance", event("click", blackboard.CategoryInteraction, blackboard.PriorityLow, nil), 0.25, user(), 0, "low_relevance", blackboard.DecisionSilence},
		{"navigation is quiet", event("page_view", blackboard.CategoryNavigation, blackboard.PriorityLow, blackboard.NavigationDetails{To: "quote"}), 0.5, user(), 0, "navigation_track", blackboard.DecisionSilence},
		{"calculation while calculating", event("calc:completed", blackboard.CategoryCalculation, blackboard.PriorityMedium, blackboard.CalculationDetails{}), 0.8, calculating, 0, "calculation_while_calculating", blackboard.DecisionEmit},
		{"default emit", event("click", blackboard.CategoryInteraction, blackboard.PriorityLow, nil), 0.3, user(), 0, "default_emit", blackboard.DecisionEmit},
		{"ai without advisor falls to floor", event("ai:summary", blackboard.CategoryAI, blackboard.PriorityLow, nil), 0.1, user(), 0, "low_relevance", blackboard.DecisionSilence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			c := ctxFor(tt.ev, tt.relevance, tt.viewer)
			c.Deferrals = tt.deferrals
			d := e.Decide(c)
			assert.Equal(t, tt.wantRule, d.RuleID)
			assert.Equal(t, tt.wantType, d.Type)
			assert.GreaterOrEqual(t, d.Confidence, 0.0)
			assert.LessOrEqual(t, d.Confidence, 1.0)
		})
	}
}

func TestEngine_Schedule(t *testing.T) {
	e := NewEngine(Config{RescheduleDelay: 45 * time.Second}, nil)
	ev := event("insight:x", blackboard.CategoryInsight, blackboard.PriorityHigh, nil)
	d := e.Decide(ctxFor(ev, 0.7, blackboard.Viewer{Role: blackboard.RoleUser, Activity: "calculating"}))

	require.Equal(t, blackboard.DecisionSchedule, d.Type)
	assert.Equal(t, now.Add(45*time.Second), d.Payload.ScheduleAt)
}

func TestEngine_CriticalRequestIsForced(t *testing.T) {
	e := newEngine(t)
	d := e.Decide(ctxFor(event("click", blackboard.CategoryInteraction, blackboard.PriorityCritical, nil), 1, user()))
	require.NotNil(t, d.Payload.OutputRequest)
	assert.True(t, d.Payload.OutputRequest.Force)
	assert.Equal(t, blackboard.SeverityCritical, d.Payload.OutputRequest.Severity)
	assert.False(t, d.Payload.OutputRequest.Dismissable)
}

func TestEngine_AdvisorDelegate(t *testing.T) {
	e := newEngine(t)
	c := ctxFor(event("ai:summary", blackboard.CategoryAI, blackboard.PriorityLow, blackboard.GenericDetails{Text: "summarise quote"}), 0.1, user())
	c.AdvisorAvailable = true

	d := e.Decide(c)
	require.Equal(t, blackboard.DecisionDelegate, d.Type)
	require.NotNil(t, d.Payload.AgentRequest)
	assert.Equal(t, "summarise quote", d.Payload.AgentRequest.Prompt)
	assert.Equal(t, "ai:summary", d.Payload.AgentRequest.Hints["event_type"])
}

func TestEngine_NoMatchIsDefect(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := NewEngine(Config{}, zap.New(core))
	for _, id := range e.RuleIDs() {
		e.RemoveRule(id)
	}

	d := e.Decide(ctxFor(event("click", blackboard.CategoryInteraction, blackboard.PriorityLow, nil), 0.5, user()))
	assert.Equal(t, blackboard.DecisionSilence, d.Type)
	assert.Equal(t, 0.0, d.Confidence)
	assert.Equal(t, 1, logs.FilterField(zap.String("event_type", "engine_defect")).Len())
}

func TestEngine_PanickingRuleIsSkipped(t *testing.T) {
	e := NewEngine(Config{}, nil)
	require.NoError(t, e.AddRule(Rule{
		ID:       "boom",
		Priority: 500,
		When:     func(Context) bool { panic("bad rule") },
		Then:     func(Context) blackboard.Decision { return blackboard.Decision{} },
	}))

	d := e.Decide(ctxFor(event("click", blackboard.CategoryInteraction, blackboard.PriorityLow, nil), 0.5, user()))
	assert.Equal(t, "default_emit", d.RuleID)
}

func TestTitleFor(t *testing.T) {
	assert.Equal(t, "Calc completed", titleFor("calc:completed"))
	assert.Equal(t, "Page view", titleFor("page_view"))
	assert.Equal(t, "Édition x", titleFor("édition:x"))
	assert.Equal(t, "Ação concluída", titleFor("ação_concluída"))
}
