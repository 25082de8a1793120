package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyluth/hark/pkg/blackboard"
)

// Completer is a text-completion backend.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const analyzeSystemPrompt = `You decide whether a business application should tell its user something.
Reply with a single JSON object and nothing else:
{"should_emit": bool, "message_type": "info|suggestion|warning|alert|success|insight",
 "title": string, "message": string, "topic": string, "confidence": number between 0 and 1,
 "actions": [{"id": string, "label": string}]}
Keep title under 60 characters and message under 200. Prefer silence when unsure.`

const respondSystemPrompt = `You are a concise assistant embedded in a business application.
Answer in the user's language in at most three sentences.`

// LLMAdvisor implements Advisor over any Completer by asking for a JSON verdict.
type LLMAdvisor struct {
	completer Completer
}

// NewLLMAdvisor creates an advisor backed by c.
func NewLLMAdvisor(c Completer) *LLMAdvisor {
	return &LLMAdvisor{completer: c}
}

// Analyze asks the model for a verdict and validates it.
func (a *LLMAdvisor) Analyze(ctx context.Context, req Request) (Analysis, error) {
	prompt, err := json.Marshal(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to encode advisor request: %w", err)
	}

	raw, err := a.completer.Complete(ctx, analyzeSystemPrompt, string(prompt))
	if err != nil {
		return Analysis{}, fmt.Errorf("advisor completion failed: %w", err)
	}
	return parseAnalysis(raw)
}

// GenerateResponse asks the model for a free-text reply.
func (a *LLMAdvisor) GenerateResponse(ctx context.Context, text string, req Request) (string, error) {
	prompt := text
	if req.EventType != "" {
		prompt = fmt.Sprintf("Context: event %s on screen %q.\n\n%s", req.EventType, req.Viewer.Screen, text)
	}
	out, err := a.completer.Complete(ctx, respondSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("advisor completion failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// parseAnalysis accepts a bare JSON object, optionally wrapped in a markdown fence.
func parseAnalysis(raw string) (Analysis, error) {
	body := strings.TrimSpace(raw)
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			body = body[start : end+1]
		}
	}

	var a Analysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return Analysis{}, fmt.Errorf("failed to parse advisor verdict: %w", err)
	}
	if a.MessageType == "" {
		a.MessageType = blackboard.MessageInsight
	}
	if err := a.MessageType.Validate(); err != nil {
		return Analysis{}, fmt.Errorf("invalid advisor verdict: %w", err)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return Analysis{}, fmt.Errorf("invalid advisor verdict: confidence %f out of range", a.Confidence)
	}
	if a.ShouldEmit && a.Title == "" && a.Message == "" {
		return Analysis{}, fmt.Errorf("invalid advisor verdict: emit without title or message")
	}
	return a, nil
}
