package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/p-shah256/coverbot/internal/cleaner"
	"github.com/p-shah256/coverbot/internal/metrics"
)

var clean = cleaner.NewCleaner()

const defaultTimeout = 60 * time.Second

// Writer renders named prompt templates and completes them with a Provider.
type Writer struct {
	provider Provider
	timeout  time.Duration
	metrics  *metrics.Metrics
}

type WriterOption func(*Writer)

func WithTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) WriterOption {
	return func(w *Writer) {
		w.metrics = m
	}
}

func NewWriter(provider Provider, opts ...WriterOption) *Writer {
	w := &Writer{
		provider: provider,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Complete renders templateName with variables and returns the generated text.
func (w *Writer) Complete(ctx context.Context, templateName string, variables map[string]string) (string, error) {
	logger := slog.With(
		"component", "llm",
		"operation", templateName,
	)

	prompt, err := render(templateName, variables)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	logger.Debug("sending prompt to LLM", "prompt_length", len(prompt))
	startTime := time.Now()

	content, err := w.provider.Generate(ctx, systemPrompt, prompt)
	w.metrics.ObserveLLM(templateName, time.Since(startTime), err)
	if err != nil {
		logger.Error("completion failed", "error", err, "duration_ms", time.Since(startTime).Milliseconds())
		return "", fmt.Errorf("%s completion failed: %w", templateName, err)
	}

	text := clean.CleanLlmResponse(content)
	logger.Info("received LLM response",
		"duration_ms", time.Since(startTime).Milliseconds(),
		"response_length", len(text))
	if text == "" {
		return "", fmt.Errorf("%s completion failed: empty response", templateName)
	}

	return text, nil
}

func render(templateName string, variables map[string]string) (string, error) {
	pt, ok := templates[templateName]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", templateName)
	}

	var missing []string
	for _, key := range pt.required {
		if strings.TrimSpace(variables[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q is missing variables: %s", templateName, strings.Join(missing, ", "))
	}

	var b strings.Builder
	if err := pt.tmpl.Execute(&b, variables); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", templateName, err)
	}
	return b.String(), nil
}
