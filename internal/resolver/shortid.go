// Package resolver maps short message ID prefixes to full message IDs.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/hark/pkg/blackboard"
)

// MinShortIDLength is the minimum accepted prefix length.
const MinShortIDLength = 6

// ResolveMessage finds the message whose ID is id or starts with id.
// Returns NotFoundError when nothing matches and AmbiguousError when more than one does.
func ResolveMessage(msgs []blackboard.OutputMessage, id string) (blackboard.OutputMessage, error) {
	full := len(id) == 36 && strings.Count(id, "-") == 4
	if !full && len(id) < MinShortIDLength {
		return blackboard.OutputMessage{}, fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(id))
	}

	var matches []blackboard.OutputMessage
	for _, m := range msgs {
		if m.ID == id || (!full && strings.HasPrefix(m.ID, id)) {
			matches = append(matches, m)
		}
	}

	switch len(matches) {
	case 0:
		return blackboard.OutputMessage{}, &NotFoundError{ShortID: id}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return blackboard.OutputMessage{}, &AmbiguousError{ShortID: id, Matches: ids}
	}
}

// NotFoundError indicates no message matched the ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no messages found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple messages matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d messages", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists up to 10 matching IDs, then "...and N more".
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: ambiguous short ID '%s' matches %d messages:\n", err.ShortID, len(err.Matches))

	shown := len(err.Matches)
	if shown > 10 {
		shown = 10
	}
	for _, id := range err.Matches[:shown] {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the message.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var amb *AmbiguousError
	return errors.As(err, &amb)
}
