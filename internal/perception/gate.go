// Package perception is the entry filter of the pipeline. It drops noise,
// classifies raw events into normalized events and scores their relevance
// for the current viewer.
package perception

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/pkg/blackboard"
)

// RejectionReason explains why perception dropped an event.
type RejectionReason string

const (
	RejectMalformedEvent   RejectionReason = "malformed_event"
	RejectMalformedPayload RejectionReason = "malformed_payload"
	RejectNoise            RejectionReason = "noise"
	RejectAdminOnly        RejectionReason = "admin_only"
	RejectLowRelevance     RejectionReason = "low_relevance"
)

const (
	baseRelevance      = 0.5
	audienceMatchBonus = 0.1
	systemPenalty      = 0.3
	activityBonus      = 0.2
	alertFloor         = 0.6
	backgroundFloor    = 0.2
)

// Perception is the result of Perceive. Event is set whenever the event could
// be normalized, including scored rejections.
type Perception struct {
	ShouldProcess   bool
	RejectionReason RejectionReason
	Event           *blackboard.NormalizedEvent
	RelevanceScore  float64
}

// Gate normalizes raw events. It holds no mutable state and is safe for concurrent use.
type Gate struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewGate creates a perception gate. logger and now may be nil.
func NewGate(logger *zap.Logger, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{logger: logging.OrNop(logger).Named("perception"), now: now}
}

// QuickFilter reports whether an event type is worth queueing at all.
// It rejects noise and internal system-only types without normalizing.
func QuickFilter(eventType string) bool {
	if eventType == "" {
		return false
	}
	return !isNoise(eventType) && !isSystemOnly(eventType)
}

// Perceive classifies, prioritises and scores a raw event for the given viewer.
func (g *Gate) Perceive(raw blackboard.RawEvent, viewer blackboard.Viewer) Perception {
	if err := raw.Validate(); err != nil {
		return g.reject(raw, RejectMalformedEvent, nil, zap.Error(err))
	}
	if isNoise(raw.Type) {
		return g.reject(raw, RejectNoise, nil)
	}

	category := Categorize(raw.Type)
	details, err := decodeDetails(category, raw.Payload)
	if err != nil {
		return g.reject(raw, RejectMalformedPayload, nil, zap.Error(err))
	}

	audience := targetAudience(raw.Type, category)
	priority := computePriority(raw, category, details)
	score := relevance(category, priority, audience, viewer)

	ev := blackboard.NewNormalizedEvent(blackboard.NormalizedEvent{
		ID:             uuid.New().String(),
		Type:           raw.Type,
		Category:       category,
		Details:        details,
		Timestamp:      g.now(),
		Source:         raw.Source,
		Priority:       priority,
		TargetAudience: audience,
		RelevanceScore: score,
		Raw:            raw,
	}, raw.Payload, raw.Metadata)

	if audience == blackboard.AudienceAdmin && viewer.Role != blackboard.RoleAdmin && priority != blackboard.PriorityCritical {
		return g.reject(raw, RejectAdminOnly, ev)
	}
	if score < backgroundFloor && priority == blackboard.PriorityBackground {
		return g.reject(raw, RejectLowRelevance, ev)
	}

	logging.Event(g.logger, "event_perceived",
		zap.String("event_id", ev.ID),
		zap.String("type", ev.Type),
		zap.String("category", string(category)),
		zap.String("priority", string(priority)),
		zap.String("audience", string(audience)),
		zap.Float64("relevance", score),
	)
	return Perception{ShouldProcess: true, Event: ev, RelevanceScore: score}
}

func (g *Gate) reject(raw blackboard.RawEvent, reason RejectionReason, ev *blackboard.NormalizedEvent, extra ...zap.Field) Perception {
	p := Perception{RejectionReason: reason, Event: ev}
	if ev != nil {
		p.RelevanceScore = ev.RelevanceScore
	}
	// noise is the bulk of traffic and would drown the log
	if reason != RejectNoise {
		fields := append([]zap.Field{
			zap.String("type", raw.Type),
			zap.String("reason", string(reason)),
			zap.Float64("relevance", p.RelevanceScore),
		}, extra...)
		logging.Event(g.logger, "event_rejected", fields...)
	}
	return p
}

func targetAudience(eventType string, category blackboard.Category) blackboard.Audience {
	if _, ok := adminEvents[strings.ToLower(eventType)]; ok {
		return blackboard.AudienceAdmin
	}
	switch category {
	case blackboard.CategoryGovernance:
		return blackboard.AudienceAdmin
	case blackboard.CategorySystem, blackboard.CategoryAI:
		return blackboard.AudienceSystem
	default:
		return blackboard.AudienceUser
	}
}

func computePriority(raw blackboard.RawEvent, category blackboard.Category, details blackboard.Details) blackboard.Priority {
	p := basePriority[category]

	if raw.Priority != nil {
		switch {
		case *raw.Priority >= 8:
			p = atLeast(p, blackboard.PriorityCritical)
		case *raw.Priority >= 6:
			p = atLeast(p, blackboard.PriorityHigh)
		}
	}

	severity := strings.ToLower(stringField(raw.Payload, "severity"))
	if a, ok := details.(blackboard.AlertDetails); ok && a.Severity != "" {
		severity = a.Severity
	}
	switch severity {
	case "critical":
		p = atLeast(p, blackboard.PriorityCritical)
	case "high":
		p = atLeast(p, blackboard.PriorityHigh)
	}

	if category == blackboard.CategoryError {
		p = atLeast(p, blackboard.PriorityHigh)
	}

	if (p == blackboard.PriorityLow || p == blackboard.PriorityBackground) && containsRiskWord(raw.Type) {
		p = p.Raise()
	}
	return p
}

// atLeast escalates p to floor; it never lowers a priority.
func atLeast(p, floor blackboard.Priority) blackboard.Priority {
	if p.Rank() < floor.Rank() {
		return floor
	}
	return p
}

func relevance(category blackboard.Category, priority blackboard.Priority, audience blackboard.Audience, viewer blackboard.Viewer) float64 {
	score := baseRelevance + priorityBoost[priority]

	switch {
	case audience == blackboard.AudienceSystem:
		score -= systemPenalty
	case string(audience) == string(viewer.Role):
		score += audienceMatchBonus
	}

	if c, ok := ActivityCategory(viewer.Activity); ok && c == category {
		score += activityBonus
	}

	if (category == blackboard.CategoryAlert || category == blackboard.CategoryError) && score < alertFloor {
		score = alertFloor
	}

	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
