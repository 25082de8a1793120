package decision

import (
	"fmt"

	"github.com/dyluth/hark/pkg/blackboard"
)

// Domain rule set priorities.
const (
	PriorityMargin     = 75
	PriorityAdvisor    = 72
	PriorityNavigation = 65
)

// marginKeys are the payload fields a margin may arrive under, in lookup order.
var marginKeys = []string{"margemLucro", "profitMargin"}

// Margin returns the profit margin carried by a calculation event, if any.
func Margin(ev *blackboard.NormalizedEvent) (float64, bool) {
	d, ok := ev.Details.(blackboard.CalculationDetails)
	if !ok {
		return 0, false
	}
	for _, k := range marginKeys {
		if v, ok := d.Values[k]; ok {
			return v, true
		}
	}
	return 0, false
}

type marginBand struct {
	id         string
	match      func(m float64) bool
	typ        blackboard.MessageType
	severity   blackboard.Severity
	topic      string
	title      string
	format     string
	confidence float64
}

var marginBands = []marginBand{
	{
		id:         "margin_negative",
		match:      func(m float64) bool { return m < 0 },
		typ:        blackboard.MessageAlert,
		severity:   blackboard.SeverityCritical,
		topic:      "margem_negativa",
		title:      "Margem negativa",
		format:     "A operação está com margem de %.1f%%: a venda gera prejuízo.",
		confidence: 0.98,
	},
	{
		id:         "margin_critical",
		match:      func(m float64) bool { return m >= 0 && m < 5 },
		typ:        blackboard.MessageWarning,
		severity:   blackboard.SeverityHigh,
		topic:      "margem_critica",
		title:      "Margem crítica",
		format:     "A margem de lucro está em %.1f%%, abaixo do mínimo de 5%%.",
		confidence: 0.95,
	},
	{
		id:         "margin_low",
		match:      func(m float64) bool { return m >= 5 && m < 15 },
		typ:        blackboard.MessageWarning,
		severity:   blackboard.SeverityMedium,
		topic:      "margem_baixa",
		title:      "Margem baixa",
		format:     "A margem de lucro está em %.1f%%. Revise custos ou preço.",
		confidence: 0.8,
	},
	{
		id:         "margin_excellent",
		match:      func(m float64) bool { return m >= 40 },
		typ:        blackboard.MessageSuccess,
		severity:   blackboard.SeverityLow,
		topic:      "margem_excelente",
		title:      "Margem excelente",
		format:     "Margem de lucro de %.1f%%.",
		confidence: 0.7,
	},
}

// MarginRules reacts to calculation results that carry a profit margin.
// Margins between 15 and 40 fall through to the generic rules.
func MarginRules() []Rule {
	rules := make([]Rule, 0, len(marginBands))
	for _, band := range marginBands {
		band := band
		rules = append(rules, Rule{
			ID:       band.id,
			Priority: PriorityMargin,
			When: func(c Context) bool {
				m, ok := Margin(c.Event)
				return ok && band.match(m)
			},
			Then: func(c Context) blackboard.Decision {
				m, _ := Margin(c.Event)
				req := RequestFromEvent(c.Event)
				req.Type = band.typ
				req.Severity = band.severity
				req.Topic = band.topic
				req.Title = band.title
				req.Message = fmt.Sprintf(band.format, m)
				req.Dismissable = band.severity != blackboard.SeverityCritical
				req.Context["margin"] = fmt.Sprintf("%.2f", m)
				return blackboard.Decision{
					Type:       blackboard.DecisionEmit,
					Reason:     fmt.Sprintf("profit margin %.1f%% matched %s", m, band.id),
					Confidence: band.confidence,
					Payload:    &blackboard.DecisionPayload{OutputRequest: req},
					ShouldLog:  true,
				}
			},
		})
	}
	return rules
}

// NavigationRules keeps screen changes quiet. The core records the journey
// before deciding, so the only thing left is to not talk about it.
func NavigationRules() []Rule {
	return []Rule{{
		ID:       "navigation_track",
		Priority: PriorityNavigation,
		When: func(c Context) bool {
			return c.Event.Category == blackboard.CategoryNavigation
		},
		Then: func(c Context) blackboard.Decision {
			reason := "navigation recorded"
			if d, ok := c.Event.Details.(blackboard.NavigationDetails); ok {
				reason = "navigation to " + d.To + " recorded"
			}
			return blackboard.Decision{
				Type:       blackboard.DecisionSilence,
				Reason:     reason,
				Confidence: 1.0,
			}
		},
	}}
}

// AdvisorRules hands ai-category events to the language-model collaborator
// when one is wired.
func AdvisorRules() []Rule {
	return []Rule{{
		ID:       "ai_delegate",
		Priority: PriorityAdvisor,
		When: func(c Context) bool {
			return c.AdvisorAvailable && c.Event.Category == blackboard.CategoryAI
		},
		Then: func(c Context) blackboard.Decision {
			hints := map[string]string{
				"event_type": c.Event.Type,
				"activity":   c.Viewer.Activity,
				"screen":     c.Viewer.Screen,
				"role":       string(c.Viewer.Role),
			}
			prompt := c.Event.Type
			if d, ok := c.Event.Details.(blackboard.GenericDetails); ok && d.Text != "" {
				prompt = d.Text
			}
			return blackboard.Decision{
				Type:       blackboard.DecisionDelegate,
				Reason:     "ai event delegated to advisor",
				Confidence: 0.6,
				Payload: &blackboard.DecisionPayload{
					AgentRequest:  &blackboard.AgentRequest{Prompt: prompt, Hints: hints},
					OutputRequest: RequestFromEvent(c.Event),
				},
				ShouldLog: true,
			}
		},
	}}
}

// DomainRules is every domain rule set shipped with the engine.
func DomainRules() []Rule {
	var rules []Rule
	rules = append(rules, MarginRules()...)
	rules = append(rules, AdvisorRules()...)
	rules = append(rules, NavigationRules()...)
	return rules
}
