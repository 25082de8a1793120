package advisor

import (
	"context"
	"strings"

	"github.com/dyluth/hark/pkg/blackboard"
)

// heuristic verdicts carry low confidence
const heuristicConfidence = 0.4

var keywordTypes = []struct {
	words []string
	typ   blackboard.MessageType
}{
	{[]string{"erro", "error", "falha", "failure", "fail"}, blackboard.MessageAlert},
	{[]string{"risco", "risk", "prejuizo", "loss", "atraso", "overdue"}, blackboard.MessageWarning},
	{[]string{"sugest", "suggest", "recomend", "recommend", "dica", "tip"}, blackboard.MessageSuggestion},
	{[]string{"sucesso", "success", "concluido", "completed"}, blackboard.MessageSuccess},
}

// Heuristic is the local, deterministic stand-in for the collaborator.
type Heuristic struct{}

// Analyze classifies a request by keyword. Empty prompts are never emitted.
func (Heuristic) Analyze(req Request) Analysis {
	prompt := strings.TrimSpace(req.Prompt)
	topic := req.EventType
	if topic == "" {
		topic = "advisor"
	}

	a := Analysis{
		MessageType: blackboard.MessageInsight,
		Title:       "Insight",
		Message:     prompt,
		Topic:       topic,
		Confidence:  heuristicConfidence,
	}
	if prompt == "" {
		return a
	}

	lower := strings.ToLower(prompt)
	for _, kt := range keywordTypes {
		for _, w := range kt.words {
			if strings.Contains(lower, w) {
				a.MessageType = kt.typ
				a.ShouldEmit = true
				a.Title = titleFor(kt.typ)
				return a
			}
		}
	}
	// an unclassified prompt is only worth showing when it was an explicit insight
	a.ShouldEmit = req.Category == blackboard.CategoryInsight
	return a
}

func titleFor(t blackboard.MessageType) string {
	switch t {
	case blackboard.MessageAlert:
		return "Atenção"
	case blackboard.MessageWarning:
		return "Risco identificado"
	case blackboard.MessageSuggestion:
		return "Sugestão"
	case blackboard.MessageSuccess:
		return "Concluído"
	default:
		return "Insight"
	}
}

// Local serves the heuristic as a full Advisor for deployments without a
// language model. Responses are passed through unchanged.
type Local struct {
	Heuristic
}

var _ Advisor = Local{}

// Analyze never fails.
func (l Local) Analyze(_ context.Context, req Request) (Analysis, error) {
	return l.Heuristic.Analyze(req), nil
}

// GenerateResponse returns text as given.
func (Local) GenerateResponse(_ context.Context, text string, _ Request) (string, error) {
	return text, nil
}
