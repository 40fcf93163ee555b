// Package aiconflict implements syncengine.ConflictResolver by asking a
// language model to propose a merge between the local and server copies
// of a conflicted item. It is never imported by syncengine itself; it's
// an optional plugin an embedder wires in at startup rather than
// something the sync engine core depends on.
package aiconflict

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

// completer sends a single prompt to a model and returns its text
// response. It narrows the anthropic SDK down to the one call this
// package needs, so tests can substitute a fake without making real
// network calls.
type completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Resolver asks a model for a merged document on every conflict. Any
// failure to reach the model, or a response that doesn't parse as a JSON
// item, returns (nil, nil) rather than an error. syncengine treats a nil
// result like an error: the conflict is recorded on the operation and the
// operation stays pending, exactly as when no resolver is configured.
type Resolver struct {
	model completer
}

// Config configures a Resolver.
type Config struct {
	// APIKey is the Anthropic API key. Required.
	APIKey string

	// Model selects the model used to propose merges. Defaults to
	// anthropic.ModelClaude3_5HaikuLatest, a cheap model appropriate for
	// the small, frequent prompts a conflict resolution asks for.
	Model anthropic.Model
}

// New builds a Resolver from cfg.
func New(cfg Config) *Resolver {
	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	return &Resolver{
		model: &anthropicCompleter{
			client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
			model:  model,
		},
	}
}

// anthropicCompleter is the real completer backed by anthropic-sdk-go.
type anthropicCompleter struct {
	client anthropic.Client
	model  anthropic.Model
}

func (a *anthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	return msg.Content[0].Text, nil
}

// Resolve implements syncengine.ConflictResolver.
func (r *Resolver) Resolve(ctx context.Context, conflict *syncengine.ConflictError, localItem syncengine.Item) (syncengine.Item, error) {
	localJSON, err := json.Marshal(localItem)
	if err != nil {
		return nil, nil
	}
	serverJSON, err := json.Marshal(conflict.ServerItem)
	if err != nil {
		return nil, nil
	}

	prompt := fmt.Sprintf(`Two copies of the same record diverged during sync.
Local (the user's pending, unsynced edit):
%s

Server (the authoritative copy after another writer's update):
%s

Reply with ONLY a JSON object for the merged record. Prefer the server's
system fields (id, __version, __updatedAt). If you cannot produce a
confident merge, reply with exactly: null`, localJSON, serverJSON)

	text, err := r.model.Complete(ctx, prompt)
	if err != nil {
		return nil, nil
	}

	var merged syncengine.Item
	if err := json.Unmarshal([]byte(text), &merged); err != nil {
		return nil, nil
	}
	if merged == nil {
		return nil, nil
	}
	return merged, nil
}

// AsResolver adapts r to syncengine.ConflictResolver's function type.
func (r *Resolver) AsResolver() syncengine.ConflictResolver {
	return r.Resolve
}
