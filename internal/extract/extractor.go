// Package extract turns free text and fetched pages into a structured policy
// analysis through a generative completion backend.
package extract

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/cost"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/resilience"
)

// AnalyzeRequest is one piece of content to analyze.
type AnalyzeRequest struct {
	Message    string
	URL        string
	URLContent string
}

// Usage reports what a call consumed.
type Usage struct {
	Model         string  `json:"model"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	Tokens        int     `json:"tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// Result is the outcome of Analyze. Parsed is false when the model answer
// was replaced by the fallback analysis.
type Result struct {
	Analysis Analysis
	Parsed   bool
	Usage    Usage
}

// Options tunes an Extractor.
type Options struct {
	MaxInputChars int
	MaxTokens     int
	Retry         resilience.Policy
	Breaker       *resilience.Breaker
}

// Extractor runs verification analyses.
type Extractor struct {
	completer Completer
	calc      *cost.Calculator
	opts      Options
}

// New creates an Extractor.
func New(c Completer, calc *cost.Calculator, opts Options) *Extractor {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = 10000
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker("extract", 5, 30*time.Second)
	}
	if opts.Retry.Notify == nil {
		opts.Retry.Notify = resilience.LogRetries("extract", c.Model())
	}
	return &Extractor{completer: c, calc: calc, opts: opts}
}

// Model returns the backend model id.
func (e *Extractor) Model() string { return e.completer.Model() }

// Analyze asks the backend for a verdict on req. Upstream failures after
// retries are returned as errors; an unusable answer is not an error and
// yields the fallback analysis with Parsed false.
func (e *Extractor) Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	prompt := Prompt{
		System:      verifySystem,
		User:        buildVerifyPrompt(req.Message, req.URLContent, e.opts.MaxInputChars),
		MaxTokens:   e.opts.MaxTokens,
		Temperature: 0.3,
	}

	comp, err := resilience.DoVal(ctx, e.opts.Retry, func(ctx context.Context) (*Completion, error) {
		return resilience.Guard(ctx, e.opts.Breaker, func(ctx context.Context) (*Completion, error) {
			return e.completer.Complete(ctx, prompt)
		})
	})
	if err != nil {
		return nil, err
	}

	usage := Usage{
		Model:        comp.Model,
		InputTokens:  comp.InputTokens,
		OutputTokens: comp.OutputTokens,
		Tokens:       comp.InputTokens + comp.OutputTokens,
	}
	if e.calc != nil {
		usage.EstimatedCost = e.calc.Estimate(comp.Model, comp.InputTokens, comp.OutputTokens)
	}
	metrics.ObserveCompletion(usage.Model, usage.InputTokens, usage.OutputTokens, usage.EstimatedCost)

	analysis, parsed := parseAnalysis(ctx, comp.Text)
	metrics.AIConfidence.WithLabelValues("verify").Observe(analysis.Confidence)

	zap.L().Info("extract: analysis",
		zap.String("model", usage.Model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("estimated_cost_usd", usage.EstimatedCost),
		zap.Bool("parsed", parsed),
		zap.Float64("confidence", analysis.Confidence),
		zap.String("url", req.URL),
	)

	return &Result{Analysis: analysis, Parsed: parsed, Usage: usage}, nil
}
