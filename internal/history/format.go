package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/hark/pkg/blackboard"
)

// FormatTable writes messages as a table with columns ID, SEV, CHANNEL, TOPIC,
// AGE and MESSAGE (truncated). Returns the number of messages formatted.
func FormatTable(w io.Writer, msgs []blackboard.OutputMessage, userID string, now time.Time) int {
	if len(msgs) == 0 {
		fmt.Fprintf(w, "No messages found for user '%s'\n", userID)
		return 0
	}

	fmt.Fprintf(w, "Messages for user '%s':\n\n", userID)

	fmt.Fprintf(w, "%-10s %-8s %-7s %-18s %-8s %s\n",
		"ID", "SEV", "CHANNEL", "TOPIC", "AGE", "MESSAGE")
	fmt.Fprintf(w, "%-10s %-8s %-7s %-18s %-8s %s\n",
		"----------", "--------", "-------", "------------------", "--------", "----------------------------------------")

	for _, m := range msgs {
		fmt.Fprintf(w, "%-10s %-8s %-7s %-18s %-8s %s\n",
			formatID(m.ID),
			m.Severity,
			m.Channel,
			formatTopic(m.Topic),
			formatAge(m.CreatedAt, now),
			formatText(m.Title, m.Message),
		)
	}

	noun := "message"
	if len(msgs) != 1 {
		noun = "messages"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(msgs), noun)

	return len(msgs)
}

// FormatJSONL writes one compact JSON object per message, for piping to jq.
func FormatJSONL(w io.Writer, msgs []blackboard.OutputMessage) error {
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one message as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, msg blackboard.OutputMessage) error {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTopic(topic string) string {
	if topic == "" {
		return "-"
	}
	if len(topic) > 18 {
		return topic[:15] + "..."
	}
	return topic
}

// formatText shows the title when present, otherwise the first non-empty
// line of the body, truncated to 40 characters.
func formatText(title, body string) string {
	text := strings.TrimSpace(title)
	if text == "" {
		for _, line := range strings.Split(body, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				text = trimmed
				break
			}
		}
	}
	if text == "" {
		return "-"
	}
	if len(text) > 40 {
		return text[:37] + "..."
	}
	return text
}

// formatAge renders relative time like "2m ago".
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
