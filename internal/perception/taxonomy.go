package perception

import (
	"strings"

	"github.com/dyluth/hark/pkg/blackboard"
)

// noiseTypes are dropped before any classification.
var noiseTypes = map[string]struct{}{
	"heartbeat": {},
	"ping":      {},
	"pong":      {},
	"keepalive": {},
	"tick":      {},
}

var noisePrefixes = []string{"debug:", "debug_", "trace:", "trace_"}

// systemOnlyPrefixes mark internal plumbing events that never reach a viewer.
// QuickFilter drops them; Perceive still classifies them as system events.
var systemOnlyPrefixes = []string{"metrics:", "internal:"}

// exactTypes maps well-known event types to their category.
var exactTypes = map[string]blackboard.Category{
	"calc:completed":        blackboard.CategoryCalculation,
	"calculation_completed": blackboard.CategoryCalculation,
	"pricing_updated":       blackboard.CategoryCalculation,
	"tax_computed":          blackboard.CategoryCalculation,
	"margin_computed":       blackboard.CategoryCalculation,
	"page_view":             blackboard.CategoryNavigation,
	"route_change":          blackboard.CategoryNavigation,
	"screen_changed":        blackboard.CategoryNavigation,
	"click":                 blackboard.CategoryInteraction,
	"form_submit":           blackboard.CategoryInteraction,
	"form_started":          blackboard.CategoryInteraction,
	"anomaly_detected":      blackboard.CategoryAlert,
	"threshold_breached":    blackboard.CategoryAlert,
	"policy_violation":      blackboard.CategoryGovernance,
	"audit_required":        blackboard.CategoryGovernance,
	"permission_change":     blackboard.CategoryGovernance,
	"user_management":       blackboard.CategoryGovernance,
	"exception":             blackboard.CategoryError,
	"error":                 blackboard.CategoryError,
	"llm_response":          blackboard.CategoryAI,
	"insight_generated":     blackboard.CategoryInsight,
	"pattern_found":         blackboard.CategoryInsight,
	"system_startup":        blackboard.CategorySystem,
	"config_changed":        blackboard.CategorySystem,
}

// prefixCategories is consulted in order when no exact type matches.
var prefixCategories = []struct {
	prefix   string
	category blackboard.Category
}{
	{"calc:", blackboard.CategoryCalculation},
	{"nav:", blackboard.CategoryNavigation},
	{"user:", blackboard.CategoryInteraction},
	{"ui:", blackboard.CategoryInteraction},
	{"insight:", blackboard.CategoryInsight},
	{"alert:", blackboard.CategoryAlert},
	{"gov:", blackboard.CategoryGovernance},
	{"admin:", blackboard.CategoryGovernance},
	{"system:", blackboard.CategorySystem},
	{"ai:", blackboard.CategoryAI},
	{"error:", blackboard.CategoryError},
}

// adminEvents are always addressed to administrators.
var adminEvents = map[string]struct{}{
	"user_management":   {},
	"audit_required":    {},
	"permission_change": {},
	"billing_alert":     {},
	"system_config":     {},
}

// basePriority is the starting priority for each category.
var basePriority = map[blackboard.Category]blackboard.Priority{
	blackboard.CategoryAlert:       blackboard.PriorityHigh,
	blackboard.CategoryError:       blackboard.PriorityHigh,
	blackboard.CategoryGovernance:  blackboard.PriorityHigh,
	blackboard.CategoryCalculation: blackboard.PriorityMedium,
	blackboard.CategoryInsight:     blackboard.PriorityMedium,
	blackboard.CategoryInteraction: blackboard.PriorityLow,
	blackboard.CategoryNavigation:  blackboard.PriorityLow,
	blackboard.CategoryAI:          blackboard.PriorityLow,
	blackboard.CategorySystem:      blackboard.PriorityBackground,
}

// priorityBoost is added to the base relevance score.
var priorityBoost = map[blackboard.Priority]float64{
	blackboard.PriorityCritical:   0.4,
	blackboard.PriorityHigh:       0.2,
	blackboard.PriorityMedium:     0,
	blackboard.PriorityLow:        -0.1,
	blackboard.PriorityBackground: -0.2,
}

// riskWords nudge low-priority events up one level.
var riskWords = []string{"risk", "loss", "prejuizo", "fraud", "deficit", "overdue", "negative"}

// activityCategories maps a viewer activity to the category it makes relevant.
var activityCategories = map[string]blackboard.Category{
	"calculating":   blackboard.CategoryCalculation,
	"navigating":    blackboard.CategoryNavigation,
	"filling_form":  blackboard.CategoryInteraction,
	"reviewing":     blackboard.CategoryInsight,
	"administering": blackboard.CategoryGovernance,
}

// ActivityCategory returns the category an activity makes relevant, if any.
func ActivityCategory(activity string) (blackboard.Category, bool) {
	c, ok := activityCategories[activity]
	return c, ok
}

func isNoise(eventType string) bool {
	t := strings.ToLower(eventType)
	if _, ok := noiseTypes[t]; ok {
		return true
	}
	return hasAnyPrefix(t, noisePrefixes)
}

func isSystemOnly(eventType string) bool {
	return hasAnyPrefix(strings.ToLower(eventType), systemOnlyPrefixes)
}

// Categorize classifies an event type by exact match, then prefix, defaulting to system.
func Categorize(eventType string) blackboard.Category {
	t := strings.ToLower(eventType)
	if c, ok := exactTypes[t]; ok {
		return c
	}
	for _, p := range prefixCategories {
		if strings.HasPrefix(t, p.prefix) {
			return p.category
		}
	}
	return blackboard.CategorySystem
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsRiskWord(eventType string) bool {
	t := strings.ToLower(eventType)
	for _, w := range riskWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}
