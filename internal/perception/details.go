package perception

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyluth/hark/pkg/blackboard"
)

// decodeDetails builds the typed view of a payload for the given category.
// Navigation needs a destination; alerts and errors need a message.
func decodeDetails(category blackboard.Category, payload map[string]any) (blackboard.Details, error) {
	switch category {
	case blackboard.CategoryCalculation:
		return blackboard.CalculationDetails{
			Kind:   stringField(payload, "kind", "calculator"),
			Values: numericFields(payload),
		}, nil

	case blackboard.CategoryNavigation:
		to := stringField(payload, "to", "screen", "path")
		if to == "" {
			return nil, fmt.Errorf("navigation payload requires one of to, screen or path")
		}
		return blackboard.NavigationDetails{From: stringField(payload, "from"), To: to}, nil

	case blackboard.CategoryAlert, blackboard.CategoryError:
		msg := stringField(payload, "message", "error", "description")
		if msg == "" {
			return nil, fmt.Errorf("%s payload requires one of message, error or description", category)
		}
		return blackboard.AlertDetails{
			Severity: strings.ToLower(stringField(payload, "severity")),
			Message:  msg,
			Code:     stringField(payload, "code"),
		}, nil

	default:
		return blackboard.GenericDetails{Text: stringField(payload, "message", "text")}, nil
	}
}

// stringField returns the first non-empty string among keys.
// A present key with a non-string value is skipped.
func stringField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// numericFields collects every numeric payload value. JSON-decoded payloads
// carry float64 or json.Number; in-process producers may pass Go integers.
func numericFields(payload map[string]any) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range payload {
		if f, ok := toFloat(v); ok {
			out[k] = f
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
