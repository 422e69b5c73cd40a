package cwa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"swarmgov/internal/dao"
	"swarmgov/internal/trust"
)

// UserQueryLayer is the layer name subject to the move-last rule: when a
// layer with this name is included, its block always ends the assembled
// window regardless of priority.
const UserQueryLayer = "User Query"

// ContextData is the shared material layers draw from during one build. The
// query arrives already sanitized.
type ContextData struct {
	Query     string        `json:"query"`
	DAO       *dao.State    `json:"dao,omitempty"`
	Trust     []trust.Entry `json:"trust,omitempty"`
	TaskState interface{}   `json:"task_state,omitempty"`
	Knowledge []string      `json:"knowledge,omitempty"`
}

// GenerateFunc produces a layer's content from the shared context.
type GenerateFunc func(ctx context.Context, data ContextData) (string, error)

// ValidateFunc accepts or rejects generated content. Rejection routes the
// layer through fallback generation, not through retry.
type ValidateFunc func(content string) bool

// Layer is one named, priority-ordered unit of prompt content. AlwaysInclude
// layers bypass the token budget.
type Layer struct {
	Name          string
	Priority      int
	AlwaysInclude bool
	Generate      GenerateFunc
	Validate      ValidateFunc
}

// NonEmpty is the default validator: content must contain something beyond
// whitespace.
func NonEmpty(content string) bool {
	return strings.TrimSpace(content) != ""
}

// DefaultLayers returns the standard governance layer set. Instructions and
// the user query are mandatory; everything else degrades under budget
// pressure in priority order.
func DefaultLayers(instructions string) []Layer {
	return []Layer{
		{
			Name:          "Instructions",
			Priority:      100,
			AlwaysInclude: true,
			Generate: func(ctx context.Context, data ContextData) (string, error) {
				return instructions, nil
			},
			Validate: NonEmpty,
		},
		{
			Name:          UserQueryLayer,
			Priority:      90,
			AlwaysInclude: true,
			Generate: func(ctx context.Context, data ContextData) (string, error) {
				if data.Query == "" {
					return "", fmt.Errorf("empty user query")
				}
				return data.Query, nil
			},
			Validate: NonEmpty,
		},
		{
			Name:     "DAO State",
			Priority: 80,
			Generate: daoStateContent,
			Validate: NonEmpty,
		},
		{
			Name:     "Trust Entries",
			Priority: 70,
			Generate: trustEntriesContent,
			Validate: NonEmpty,
		},
		{
			Name:     "Task State",
			Priority: 60,
			Generate: taskStateContent,
			Validate: NonEmpty,
		},
		{
			Name:     "Knowledge",
			Priority: 40,
			Generate: knowledgeContent,
			Validate: NonEmpty,
		},
	}
}

func daoStateContent(ctx context.Context, data ContextData) (string, error) {
	if data.DAO == nil {
		return "", fmt.Errorf("no dao snapshot available")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stakeholders (%d): %s\n", len(data.DAO.Stakeholders), strings.Join(data.DAO.Stakeholders, ", "))
	if len(data.DAO.Proposals) == 0 {
		b.WriteString("No norm-update proposals on record.")
		return b.String(), nil
	}
	fmt.Fprintf(&b, "Proposals (%d):\n", len(data.DAO.Proposals))
	for _, p := range data.DAO.Proposals {
		fmt.Fprintf(&b, "- %s targeting %s: %s (%d votes cast)\n", p.Status, p.TargetAgent, p.Description, len(p.Votes))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// trustEntriesContent summarizes the most recent chain entries, newest
// last. A nil slice means no chain was wired in; an empty chain is a valid
// state worth stating.
func trustEntriesContent(ctx context.Context, data ContextData) (string, error) {
	if data.Trust == nil {
		return "", fmt.Errorf("no trust graph available")
	}
	if len(data.Trust) == 0 {
		return "No trust entries recorded.", nil
	}

	const window = 5
	entries := data.Trust
	if len(entries) > window {
		entries = entries[len(entries)-window:]
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s by %s at %s (hash %.8s)\n", e.Action, e.AgentID, e.Timestamp.Format("2006-01-02 15:04:05"), e.CurrentHash)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func taskStateContent(ctx context.Context, data ContextData) (string, error) {
	if data.TaskState == nil {
		return "", fmt.Errorf("no task state available")
	}
	out, err := json.MarshalIndent(data.TaskState, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode task state: %w", err)
	}
	return string(out), nil
}

func knowledgeContent(ctx context.Context, data ContextData) (string, error) {
	if len(data.Knowledge) == 0 {
		return "", fmt.Errorf("no knowledge available")
	}
	var b strings.Builder
	for _, k := range data.Knowledge {
		fmt.Fprintf(&b, "- %s\n", k)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
