package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIClient implements Client using Google's Gemini API.
type GenAIClient struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// GenAIConfig holds configuration for the GenAI client.
type GenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// NewGenAIClient creates a new Gemini-backed client.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{
		client:      client,
		model:       cfg.Model,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}, nil
}

// WithModel returns a client that targets a different model but shares the
// underlying connection. Used to derive the baseline fallback profile.
func (c *GenAIClient) WithModel(model string) *GenAIClient {
	clone := *c
	clone.model = model
	return &clone
}

// Complete generates text for a bare prompt.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, nil, prompt)
}

// CompleteWithSystem generates text with a system instruction.
func (c *GenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var system *genai.Content
	if systemPrompt != "" {
		system = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return c.generate(ctx, system, userPrompt)
}

func (c *GenAIClient) generate(ctx context.Context, system *genai.Content, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: system,
			MaxOutputTokens:   c.maxTokens,
			Temperature:       genai.Ptr(c.temperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("GenAI generation failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}

// Name returns the client identifier for logs.
func (c *GenAIClient) Name() string {
	return fmt.Sprintf("genai:%s", c.model)
}
