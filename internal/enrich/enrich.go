// Package enrich labels article text with a summary, a category and a
// sentiment using the Anthropic Messages API.
package enrich

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/newsstream/internal/model"
	"github.com/sells-group/newsstream/internal/resilience"
	"github.com/sells-group/newsstream/pkg/anthropic"
)

var (
	// ErrSchema is returned when the model reply is not the expected object.
	ErrSchema = eris.New("enrich: reply does not match schema")
	// ErrEmptyInput is returned for blank article text.
	ErrEmptyInput = eris.New("enrich: article text is empty")
)

// Options configures an Enricher.
type Options struct {
	Model         string
	MaxTokens     int64
	Temperature   float64
	MaxInputChars int
	Retry         resilience.RetryConfig
	// Breaker is shared across a pass so a failing endpoint stops being
	// called. Nil creates a private breaker.
	Breaker *resilience.CircuitBreaker
}

// Enricher turns article text into a validated Enrichment.
type Enricher struct {
	client  anthropic.Client
	opts    Options
	breaker *resilience.CircuitBreaker
}

// New creates an Enricher.
func New(client anthropic.Client, opts Options) *Enricher {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = 5000
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("anthropic.create_message")
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "anthropic"})
	}
	return &Enricher{client: client, opts: opts, breaker: breaker}
}

// Enrich sends the first MaxInputChars runes of text to the model and
// validates the reply. Transient transport errors are retried; schema errors
// are returned at once.
func (e *Enricher) Enrich(ctx context.Context, text string) (model.Enrichment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Enrichment{}, ErrEmptyInput
	}

	temp := e.opts.Temperature
	req := anthropic.MessageRequest{
		Model:     e.opts.Model,
		MaxTokens: e.opts.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: userMessage(truncateRunes(text, e.opts.MaxInputChars))},
			{Role: "assistant", Content: prefill},
		},
		Temperature: &temp,
	}

	resp, err := resilience.Guard(ctx, e.breaker, e.opts.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return model.Enrichment{}, eris.Wrap(err, "enrich: model call")
	}
	resp.Usage.LogCost(e.opts.Model, "enrich")

	out, err := parseReply(completeReply(resp.Text()))
	if err != nil {
		zap.L().Debug("enrich: rejected reply",
			zap.String("stop_reason", resp.StopReason),
			zap.String("reply", truncateRunes(resp.Text(), 200)),
		)
		return model.Enrichment{}, err
	}
	return out, nil
}

// completeReply restores the prefilled brace unless the model restated the
// whole object itself.
func completeReply(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	return prefill + trimmed
}
