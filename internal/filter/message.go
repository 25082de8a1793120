// Package filter selects emitted messages for the history commands.
package filter

import (
	"path/filepath"
	"time"

	"github.com/dyluth/hark/pkg/blackboard"
)

// Criteria defines filtering criteria for emitted messages.
// All filters are ANDed together; zero values match everything.
type Criteria struct {
	Since     time.Time          // Created at or after
	Until     time.Time          // Created at or before
	TopicGlob string             // Glob pattern for the message topic
	Channel   blackboard.Channel // Exact channel match
	Severity  blackboard.Severity
}

// Matches returns true if the message matches all filter criteria.
func (c *Criteria) Matches(msg *blackboard.OutputMessage) bool {
	if !c.Since.IsZero() && msg.CreatedAt.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && msg.CreatedAt.After(c.Until) {
		return false
	}

	if c.TopicGlob != "" {
		matched, err := filepath.Match(c.TopicGlob, msg.Topic)
		if err != nil || !matched {
			return false
		}
	}

	if c.Channel != "" && msg.Channel != c.Channel {
		return false
	}
	if c.Severity != "" && msg.Severity != c.Severity {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return !c.Since.IsZero() ||
		!c.Until.IsZero() ||
		c.TopicGlob != "" ||
		c.Channel != "" ||
		c.Severity != ""
}
