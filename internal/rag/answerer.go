package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Answerer wraps a remote generative-text capability. Implementations enforce
// a bounded per-call timeout and never retry internally: retry policy belongs
// to the caller, since generation is not idempotent and duplicate calls cost
// quota.
type Answerer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DefaultGenModel is used when no generation model is configured.
const DefaultGenModel = "gemini-2.0-flash"

// DefaultGenTimeout bounds a single generation call.
const DefaultGenTimeout = 30 * time.Second

// GeminiAnswerer generates text through the Gemini API.
type GeminiAnswerer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiAnswerer builds the Gemini-backed Answerer. A missing API key is
// an immediate error so callers can fall back during wiring instead of at
// request time.
func NewGeminiAnswerer(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiAnswerer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("rag: generation api key is required")
	}
	if model == "" {
		model = DefaultGenModel
	}
	if timeout <= 0 {
		timeout = DefaultGenTimeout
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	return &GeminiAnswerer{client: client, model: model, timeout: timeout}, nil
}

// Generate produces text for the prompt within the configured timeout.
// Failures come back as errors for the pipeline to classify; safety blocks
// (empty candidate set with a block reason) are mapped to ErrSafetyBlocked.
func (a *GeminiAnswerer) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("rag: empty generation response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", ErrSafetyBlocked
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("rag: generation returned no text")
	}
	return text, nil
}
