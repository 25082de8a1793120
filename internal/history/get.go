package history

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/hark/internal/resolver"
	"github.com/dyluth/hark/pkg/blackboard"
)

// Get resolves a full or short message ID against the stored history and
// writes the message as pretty-printed JSON.
func Get(ctx context.Context, src Source, userID, id string, w io.Writer) (blackboard.OutputMessage, error) {
	msgs, err := src.History(ctx, userID, 0)
	if err != nil {
		return blackboard.OutputMessage{}, fmt.Errorf("failed to read history: %w", err)
	}

	msg, err := resolver.ResolveMessage(msgs, id)
	if err != nil {
		return blackboard.OutputMessage{}, err
	}

	if err := FormatSingleJSON(w, msg); err != nil {
		return blackboard.OutputMessage{}, fmt.Errorf("failed to format message: %w", err)
	}
	return msg, nil
}
