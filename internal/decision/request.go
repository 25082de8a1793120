package decision

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dyluth/hark/pkg/blackboard"
)

var severityByPriority = map[blackboard.Priority]blackboard.Severity{
	blackboard.PriorityCritical:   blackboard.SeverityCritical,
	blackboard.PriorityHigh:       blackboard.SeverityHigh,
	blackboard.PriorityMedium:     blackboard.SeverityMedium,
	blackboard.PriorityLow:        blackboard.SeverityLow,
	blackboard.PriorityBackground: blackboard.SeverityInfo,
}

var messageTypeByCategory = map[blackboard.Category]blackboard.MessageType{
	blackboard.CategoryAlert:      blackboard.MessageAlert,
	blackboard.CategoryError:      blackboard.MessageAlert,
	blackboard.CategoryGovernance: blackboard.MessageWarning,
	blackboard.CategoryInsight:    blackboard.MessageInsight,
}

// RequestFromEvent builds the default output request for an event.
// Critical events are forced through every output gate check.
func RequestFromEvent(ev *blackboard.NormalizedEvent) *blackboard.OutputRequest {
	typ, ok := messageTypeByCategory[ev.Category]
	if !ok {
		typ = blackboard.MessageInfo
	}
	severity := severityByPriority[ev.Priority]

	channel := blackboard.ChannelUser
	if ev.TargetAudience == blackboard.AudienceAdmin {
		channel = blackboard.ChannelAdmin
	}

	return &blackboard.OutputRequest{
		Type:        typ,
		Severity:    severity,
		Title:       titleFor(ev.Type),
		Message:     messageFor(ev),
		Channel:     channel,
		Topic:       topicFor(ev),
		Context:     eventContext(ev),
		Dismissable: severity != blackboard.SeverityCritical,
		Force:       ev.Priority == blackboard.PriorityCritical,
	}
}

func topicFor(ev *blackboard.NormalizedEvent) string {
	if t, ok := ev.Payload()["topic"].(string); ok && t != "" {
		return t
	}
	return ev.Type
}

// titleFor turns "calc:completed" into "Calc completed".
func titleFor(eventType string) string {
	t := strings.NewReplacer(":", " ", "_", " ", "-", " ").Replace(eventType)
	t = strings.Join(strings.Fields(t), " ")
	if t == "" {
		return eventType
	}
	r, size := utf8.DecodeRuneInString(t)
	return string(unicode.ToUpper(r)) + t[size:]
}

func messageFor(ev *blackboard.NormalizedEvent) string {
	switch d := ev.Details.(type) {
	case blackboard.AlertDetails:
		return d.Message
	case blackboard.NavigationDetails:
		return "Navigated to " + d.To
	case blackboard.GenericDetails:
		if d.Text != "" {
			return d.Text
		}
	case blackboard.CalculationDetails:
		if d.Kind != "" {
			return fmt.Sprintf("%s calculation finished", d.Kind)
		}
		return "Calculation finished"
	}
	return titleFor(ev.Type)
}

func eventContext(ev *blackboard.NormalizedEvent) map[string]string {
	ctx := map[string]string{
		"event_id": ev.ID,
		"category": string(ev.Category),
	}
	if ev.Source != "" {
		ctx["source"] = ev.Source
	}
	return ctx
}
