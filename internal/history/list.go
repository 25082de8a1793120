// Package history reads and renders the per-user log of emitted messages.
package history

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dyluth/hark/internal/filter"
	"github.com/dyluth/hark/pkg/blackboard"
)

// OutputFormat specifies how to format the message list.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with truncated text
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete messages as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// Source reads a user's stored history, newest first.
type Source interface {
	History(ctx context.Context, userID string, n int) ([]blackboard.OutputMessage, error)
}

// Fetch returns up to limit stored messages matching criteria, oldest first.
// criteria may be nil. limit <= 0 reads everything retained.
func Fetch(ctx context.Context, src Source, userID string, limit int, criteria *filter.Criteria) ([]blackboard.OutputMessage, error) {
	msgs, err := src.History(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	out := msgs[:0]
	for i := range msgs {
		if criteria == nil || criteria.Matches(&msgs[i]) {
			out = append(out, msgs[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// List fetches matching messages and writes them in the requested format.
func List(ctx context.Context, src Source, userID string, limit int, format OutputFormat, criteria *filter.Criteria, w io.Writer, now time.Time) error {
	if format != OutputFormatDefault && format != OutputFormatJSONL {
		return fmt.Errorf("unknown output format: %s", format)
	}

	msgs, err := Fetch(ctx, src, userID, limit, criteria)
	if err != nil {
		return err
	}

	if format == OutputFormatJSONL {
		if err := FormatJSONL(w, msgs); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
		return nil
	}
	FormatTable(w, msgs, userID, now)
	return nil
}
