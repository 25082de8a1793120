// Package advisor defines the language-model collaborator contract and the
// guarded wrapper the core uses to call it. Every call is bounded by a
// timeout and degrades to a local rule-based Heuristic on failure.
package advisor

import (
	"context"
	"errors"

	"github.com/dyluth/hark/pkg/blackboard"
)

// ErrNoAdvisor is reported when no collaborator is wired.
var ErrNoAdvisor = errors.New("no advisor configured")

// Request is what the collaborator is asked to analyse.
type Request struct {
	Prompt    string              `json:"prompt"`
	EventType string              `json:"event_type"`
	Category  blackboard.Category `json:"category"`
	Hints     map[string]string   `json:"hints,omitempty"`
	Viewer    blackboard.Viewer   `json:"-"`
}

// Analysis is the collaborator's verdict on a request.
type Analysis struct {
	ShouldEmit  bool                   `json:"should_emit"`
	MessageType blackboard.MessageType `json:"message_type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Topic       string                 `json:"topic"`
	Confidence  float64                `json:"confidence"`
	Actions     []blackboard.Action    `json:"actions,omitempty"`
}

// Advisor is the external language-model capability.
type Advisor interface {
	Analyze(ctx context.Context, req Request) (Analysis, error)
	GenerateResponse(ctx context.Context, text string, req Request) (string, error)
}
