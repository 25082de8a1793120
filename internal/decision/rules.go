package decision

import (
	"github.com/dyluth/hark/internal/perception"
	"github.com/dyluth/hark/pkg/blackboard"
)

// Built-in rule priorities. Domain rule sets slot in between.
const (
	PriorityCriticalEmit  = 100
	PrioritySilenceWindow = 95
	PriorityBusy          = 90
	PriorityAdminOnly     = 85
	PriorityGovernance    = 80
	PriorityLowRelevance  = 70
	PriorityCalcActivity  = 60
	PriorityDefaultEmit   = 10
	PriorityFallback      = 0
)

// RelevanceFloor is the minimum relevance for a non-critical event to be emitted.
const RelevanceFloor = 0.3

const (
	calculatingActivity = "calculating"
	// default emits below this relevance are routine and not audited
	routineLogFloor = 0.5
)

func builtinRules(cfg Config) []Rule {
	busy := make(map[string]bool, len(cfg.BusyActivities))
	for _, a := range cfg.BusyActivities {
		busy[a] = true
	}

	return []Rule{
		{
			ID:       "critical_emit",
			Priority: PriorityCriticalEmit,
			When: func(c Context) bool {
				return c.Event.Priority == blackboard.PriorityCritical
			},
			Then: func(c Context) blackboard.Decision {
				return emit(c, "critical event always emits", 1.0)
			},
		},
		{
			ID:       "silence_window",
			Priority: PrioritySilenceWindow,
			When: func(c Context) bool {
				return c.Viewer.Silenced
			},
			Then: func(c Context) blackboard.Decision {
				return blackboard.Decision{
					Type:       blackboard.DecisionSilence,
					Reason:     "silence window active until " + c.Viewer.SilenceUntil.Format("15:04:05"),
					Confidence: 1.0,
					ShouldLog:  true,
				}
			},
		},
		{
			ID:       "busy_activity",
			Priority: PriorityBusy,
			When: func(c Context) bool {
				if !busy[c.Viewer.Activity] {
					return false
				}
				// the result the viewer is working on is never held back
				if cat, ok := perception.ActivityCategory(c.Viewer.Activity); ok && cat == c.Event.Category {
					return false
				}
				if c.Event.Priority.Rank() >= blackboard.PriorityHigh.Rank() {
					return c.Deferrals < cfg.MaxDeferrals
				}
				return true
			},
			Then: func(c Context) blackboard.Decision {
				if c.Event.Priority.Rank() >= blackboard.PriorityHigh.Rank() {
					return blackboard.Decision{
						Type:       blackboard.DecisionSchedule,
						Reason:     "viewer busy with " + c.Viewer.Activity + ", rescheduling",
						Confidence: 0.8,
						Payload:    &blackboard.DecisionPayload{ScheduleAt: c.Now.Add(cfg.RescheduleDelay)},
						ShouldLog:  true,
					}
				}
				return blackboard.Decision{
					Type:       blackboard.DecisionSilence,
					Reason:     "viewer busy with " + c.Viewer.Activity,
					Confidence: 0.7,
				}
			},
		},
		{
			ID:       "admin_only",
			Priority: PriorityAdminOnly,
			When: func(c Context) bool {
				return c.Event.TargetAudience == blackboard.AudienceAdmin && c.Viewer.Role != blackboard.RoleAdmin
			},
			Then: func(c Context) blackboard.Decision {
				return blackboard.Decision{
					Type:       blackboard.DecisionSilence,
					Reason:     "admin-only event for non-admin viewer",
					Confidence: 1.0,
				}
			},
		},
		{
			ID:       "governance_escalate",
			Priority: PriorityGovernance,
			When: func(c Context) bool {
				return c.Event.Category == blackboard.CategoryGovernance && c.Viewer.Role == blackboard.RoleAdmin
			},
			Then: func(c Context) blackboard.Decision {
				req := RequestFromEvent(c.Event)
				req.Channel = blackboard.ChannelAdmin
				req.Type = blackboard.MessageWarning
				return blackboard.Decision{
					Type:       blackboard.DecisionEscalate,
					Reason:     "governance event escalated to admin",
					Confidence: 0.9,
					Payload:    &blackboard.DecisionPayload{OutputRequest: req},
					ShouldLog:  true,
				}
			},
		},
		{
			ID:       "low_relevance",
			Priority: PriorityLowRelevance,
			When: func(c Context) bool {
				return c.Relevance < RelevanceFloor
			},
			Then: func(c Context) blackboard.Decision {
				return blackboard.Decision{
					Type:       blackboard.DecisionSilence,
					Reason:     "relevance below floor",
					Confidence: 1 - c.Relevance,
				}
			},
		},
		{
			ID:       "calculation_while_calculating",
			Priority: PriorityCalcActivity,
			When: func(c Context) bool {
				return c.Event.Category == blackboard.CategoryCalculation && c.Viewer.Activity == calculatingActivity
			},
			Then: func(c Context) blackboard.Decision {
				return emit(c, "calculation result for active calculation", c.Relevance)
			},
		},
		{
			ID:       "default_emit",
			Priority: PriorityDefaultEmit,
			When: func(c Context) bool {
				return c.Relevance >= RelevanceFloor
			},
			Then: func(c Context) blackboard.Decision {
				d := emit(c, "relevant event", c.Relevance)
				d.ShouldLog = c.Relevance >= routineLogFloor
				return d
			},
		},
		{
			ID:       "fallback_silence",
			Priority: PriorityFallback,
			When:     func(Context) bool { return true },
			Then: func(Context) blackboard.Decision {
				return blackboard.Decision{
					Type:       blackboard.DecisionSilence,
					Reason:     "no rule wanted to speak",
					Confidence: 0.5,
				}
			},
		},
	}
}

func emit(c Context, reason string, confidence float64) blackboard.Decision {
	return blackboard.Decision{
		Type:       blackboard.DecisionEmit,
		Reason:     reason,
		Confidence: confidence,
		Payload:    &blackboard.DecisionPayload{OutputRequest: RequestFromEvent(c.Event)},
		ShouldLog:  true,
	}
}
