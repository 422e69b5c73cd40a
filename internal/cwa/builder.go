// Package cwa assembles the context window: a token-budgeted composite
// prompt built from priority-ordered layers, tolerant of per-layer
// generation failures.
package cwa

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"swarmgov/internal/config"
	"swarmgov/internal/llm"
	"swarmgov/internal/logging"
)

// Builder assembles context windows from a fixed layer set. The layer order
// is computed once at construction: descending priority, declaration order
// breaking ties.
type Builder struct {
	layers   []Layer
	budget   int
	retries  int
	backoff  time.Duration
	baseline llm.Client
}

// NewBuilder creates a builder over the given layers. The baseline client
// serves fallback generation when a layer's validator rejects its content;
// it may be nil, in which case rejection degrades straight to the error
// placeholder.
func NewBuilder(cfg config.WindowConfig, baseline llm.Client, layers []Layer) *Builder {
	ordered := append([]Layer{}, layers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	retries := cfg.LayerRetries
	if retries < 1 {
		retries = 1
	}

	return &Builder{
		layers:   ordered,
		budget:   cfg.MaxTokens,
		retries:  retries,
		backoff:  cfg.LayerBackoff,
		baseline: baseline,
	}
}

// EstimateTokens is the cheap deterministic cost proxy: one token per four
// characters, rounded up. Not a real tokenizer.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Build assembles the window for a user query. The query is sanitized before
// any layer sees it. A single layer's failure never aborts the build: after
// retries are exhausted the layer carries an error placeholder instead.
func (b *Builder) Build(ctx context.Context, userQuery string, data ContextData) string {
	timer := logging.StartTimer(logging.CategoryContext, "Builder.Build")
	defer timer.Stop()

	buildID := uuid.New().String()
	log := logging.Get(logging.CategoryContext).With("build_id", buildID)

	data.Query = Sanitize(userQuery)

	type block struct {
		name string
		text string
	}
	var blocks []block
	total := 0

	for _, layer := range b.layers {
		content, err := b.generateWithRetry(ctx, layer, data)
		if err != nil {
			content = fmt.Sprintf("[Error retrieving %s content]", layer.Name)
			log.Warn("layer %q failed after %d attempts: %v", layer.Name, b.retries, err)
		} else if layer.Validate != nil && !layer.Validate(content) {
			log.Warn("layer %q content rejected, falling back to baseline generation", layer.Name)
			content = b.fallback(ctx, layer, data)
		}

		text := fmt.Sprintf("### %s\n%s", layer.Name, content)
		cost := EstimateTokens(text)

		if !layer.AlwaysInclude && total+cost > b.budget {
			log.Info("layer %q skipped: cost %d would exceed budget %d (used %d)", layer.Name, cost, b.budget, total)
			continue
		}

		total += cost
		blocks = append(blocks, block{name: layer.Name, text: text})
		log.Debug("layer %q included: cost %d, running total %d", layer.Name, cost, total)
	}

	// The user's query, when present, anchors the end of the window.
	for i, bl := range blocks {
		if bl.name == UserQueryLayer && i != len(blocks)-1 {
			blocks = append(append(blocks[:i:i], blocks[i+1:]...), bl)
			break
		}
	}

	parts := make([]string, 0, len(blocks))
	for _, bl := range blocks {
		parts = append(parts, bl.text)
	}

	log.Info("assembled %d/%d layers at ~%d tokens (budget %d)", len(blocks), len(b.layers), total, b.budget)
	return strings.Join(parts, "\n\n")
}

// generateWithRetry invokes the layer generator up to the retry bound with a
// fixed backoff between attempts.
func (b *Builder) generateWithRetry(ctx context.Context, layer Layer, data ContextData) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= b.retries; attempt++ {
		content, err := layer.Generate(ctx, data)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if attempt < b.retries && b.backoff > 0 {
			select {
			case <-time.After(b.backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

// fallback asks the baseline capability profile for generic layer content,
// passing the shared context as JSON. If that also fails the layer carries
// the error placeholder.
func (b *Builder) fallback(ctx context.Context, layer Layer, data ContextData) string {
	if b.baseline == nil {
		return fmt.Sprintf("[Error retrieving %s content]", layer.Name)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("[Error retrieving %s content]", layer.Name)
	}

	prompt := fmt.Sprintf("Produce concise content for the %q section of a governance context window.\nShared context:\n%s", layer.Name, encoded)
	content, err := b.baseline.Complete(ctx, prompt)
	if err != nil {
		logging.Get(logging.CategoryContext).Warn("baseline fallback for layer %q failed: %v", layer.Name, err)
		return fmt.Sprintf("[Error retrieving %s content]", layer.Name)
	}
	return content
}
