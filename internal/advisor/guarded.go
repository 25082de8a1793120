package advisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/hark/internal/logging"
)

// DefaultTimeout bounds every collaborator call.
const DefaultTimeout = 10 * time.Second

// Outcome is the explicit result of a guarded call. Fallback is true when the
// heuristic produced the analysis; Err then holds the reason.
type Outcome struct {
	Analysis Analysis
	Fallback bool
	Err      error
	Elapsed  time.Duration
}

// Guarded calls an Advisor with a timeout and falls back to a Heuristic.
// A nil advisor is valid and always falls back.
type Guarded struct {
	advisor  Advisor
	fallback Heuristic
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGuarded wraps a. timeout <= 0 uses DefaultTimeout.
func NewGuarded(a Advisor, timeout time.Duration, logger *zap.Logger) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guarded{
		advisor: a,
		timeout: timeout,
		logger:  logging.OrNop(logger).Named("advisor"),
	}
}

// Available reports whether a collaborator is wired.
func (g *Guarded) Available() bool {
	return g != nil && g.advisor != nil
}

type analysisResult struct {
	analysis Analysis
	err      error
}

// Analyze never blocks longer than the timeout and never fails: collaborator
// errors, panics and timeouts all produce a heuristic Outcome.
func (g *Guarded) Analyze(ctx context.Context, req Request) Outcome {
	start := time.Now()
	if !g.Available() {
		return g.fall(req, ErrNoAdvisor, start)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan analysisResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- analysisResult{err: fmt.Errorf("advisor panic: %v", p)}
			}
		}()
		a, err := g.advisor.Analyze(ctx, req)
		done <- analysisResult{analysis: a, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return g.fall(req, res.err, start)
		}
		logging.Event(g.logger, "advisor_analysis",
			zap.String("event", req.EventType),
			zap.Bool("should_emit", res.analysis.ShouldEmit),
			zap.Float64("confidence", res.analysis.Confidence),
			zap.Duration("elapsed", time.Since(start)),
		)
		return Outcome{Analysis: res.analysis, Elapsed: time.Since(start)}
	case <-ctx.Done():
		return g.fall(req, fmt.Errorf("advisor call abandoned: %w", ctx.Err()), start)
	}
}

// GenerateResponse returns the collaborator's text, or ok=false when it is
// absent, failing or too slow.
func (g *Guarded) GenerateResponse(ctx context.Context, text string, req Request) (string, bool) {
	if !g.Available() {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type textResult struct {
		text string
		err  error
	}
	done := make(chan textResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- textResult{err: fmt.Errorf("advisor panic: %v", p)}
			}
		}()
		out, err := g.advisor.GenerateResponse(ctx, text, req)
		done <- textResult{text: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil || res.text == "" {
			if res.err != nil {
				g.logger.Warn("advisor response failed", zap.String("event_type", "advisor_failed"), zap.Error(res.err))
			}
			return "", false
		}
		return res.text, true
	case <-ctx.Done():
		g.logger.Warn("advisor response timed out", zap.String("event_type", "advisor_timeout"), zap.Error(ctx.Err()))
		return "", false
	}
}

func (g *Guarded) fall(req Request, err error, start time.Time) Outcome {
	g.logger.Warn("advisor unavailable, using heuristic",
		zap.String("event_type", "advisor_fallback"),
		zap.String("event", req.EventType),
		zap.Error(err),
	)
	return Outcome{
		Analysis: g.fallback.Analyze(req),
		Fallback: true,
		Err:      err,
		Elapsed:  time.Since(start),
	}
}
