// Package watch waits for the pipeline to emit a message after an event is sent.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/hark/internal/filter"
	"github.com/dyluth/hark/internal/history"
	"github.com/dyluth/hark/pkg/blackboard"
)

// PollInterval is how often the stored history is re-read.
const PollInterval = 200 * time.Millisecond

// ErrTimeout is wrapped by ForMessage when nothing matching appears in time.
var ErrTimeout = fmt.Errorf("timeout waiting for message")

// ForMessage polls the user's history until a message matching criteria appears.
// Only messages created at or after criteria.Since count, so callers pass the
// time the event was sent.
func ForMessage(ctx context.Context, src history.Source, userID string, criteria filter.Criteria, timeout time.Duration) (blackboard.OutputMessage, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return blackboard.OutputMessage{}, ctx.Err()

		case <-timer.C:
			return blackboard.OutputMessage{}, fmt.Errorf("%w after %v", ErrTimeout, timeout)

		case <-ticker.C:
			msgs, err := history.Fetch(ctx, src, userID, 0, &criteria)
			if err != nil {
				return blackboard.OutputMessage{}, fmt.Errorf("failed to query history: %w", err)
			}
			if len(msgs) > 0 {
				return msgs[0], nil
			}
		}
	}
}
