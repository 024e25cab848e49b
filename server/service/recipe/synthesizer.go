package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hearthfire/cookforge/fanout"
	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/plugin/ai"
	"github.com/hearthfire/cookforge/session"
	"github.com/hearthfire/cookforge/store"
)

// SynthesizerConfig wires the synthesizer's collaborators.
type SynthesizerConfig struct {
	Chatter     ai.Chatter
	Manager     *session.Manager
	Factory     session.Factory
	Parallelism int
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Synthesizer writes full recipes for an order's requested items, at
// most one recipe per remaining customer credit.
type Synthesizer struct {
	chatter     ai.Chatter
	manager     *session.Manager
	factory     session.Factory
	parallelism int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Synthesizer{
		chatter:     cfg.Chatter,
		manager:     cfg.Manager,
		factory:     cfg.Factory,
		parallelism: cfg.Parallelism,
		logger:      logger,
		metrics:     metrics,
	}
}

// Synthesize produces recipes for the order's items, bounded at
// min(credits, len(items)). Every synthesized recipe costs one credit;
// the credit is reserved before the AI call so the number of produced
// recipes never exceeds the budget even with more items in flight. The
// parent scope must already be attached to sess; each item additionally
// runs under its own child scope. The exchange is recorded on the
// session's synthesis conversation for persistence at session end.
func (s *Synthesizer) Synthesize(ctx context.Context, parent *session.Scope, sess *session.Session, order *store.Order, credits int32) ([]store.Recipe, error) {
	if order == nil {
		return nil, errs.InvalidArgument("order is nil")
	}
	systemPrompt, err := ai.SystemPrompt(ai.CatalogRecipeSynthesis)
	if err != nil {
		return nil, err
	}
	conv, err := s.manager.InitializeConversation(parent.ID, "synth-"+order.UID, systemPrompt, ai.CatalogRecipeSynthesis)
	if err != nil {
		return nil, err
	}

	gate := fanout.NewCreditGate(credits, int32(len(order.Items)))
	var mu sync.Mutex
	var recipes []store.Recipe

	err = fanout.ForEach(ctx, s.factory, parent, order.Items,
		func(ctx context.Context, scope *session.Scope, item store.OrderItem) (fanout.Decision, error) {
			// An exhausted budget skips the item without stopping the
			// fan-out: reserved items may still be mid-flight, and only
			// Complete may fire the stop once their results exist.
			if !gate.Acquire() {
				return fanout.Continue, nil
			}
			if err := s.manager.AddScopeToSession(sess, scope.ID); err != nil {
				return fanout.Continue, err
			}
			defer func() {
				if err := s.manager.RemoveScopeFromSession(scope.ID); err != nil {
					s.logger.Warn("detach synthesis scope failed",
						slog.String(observability.LogFieldScopeID, scope.ID),
						slog.String("error", err.Error()))
				}
			}()

			request := synthesisPromptFor(item)
			reply, err := s.chatter.Chat(ctx, []ai.Message{
				{Role: ai.RoleSystem, Content: systemPrompt},
				{Role: ai.RoleUser, Content: request},
			})
			if err != nil {
				return fanout.Continue, err
			}

			recipe, err := parseRecipe(reply)
			if err != nil {
				return fanout.Continue, errs.Wrap(err, errs.CodeInvalidArgument,
					fmt.Sprintf("synthesized recipe for %q is malformed", item.Title))
			}

			conv.Append(session.NewMessage(ai.RoleUser, session.TextPayload(request)))
			payload, err := session.StructuredPayload(recipe)
			if err != nil {
				return fanout.Continue, err
			}
			conv.Append(session.NewMessage(ai.RoleAssistant, payload))

			mu.Lock()
			recipes = append(recipes, recipe)
			mu.Unlock()
			return gate.Complete(), nil
		},
		fanout.WithParallelism(s.parallelism),
		fanout.WithLogger(s.logger),
		fanout.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

func synthesisPromptFor(item store.OrderItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a recipe for: %s\n", item.Title)
	if item.Notes != "" {
		fmt.Fprintf(&b, "Customer notes: %s\n", item.Notes)
	}
	return b.String()
}

// parseRecipe decodes a model reply into a recipe. Markdown code fences
// around the JSON are tolerated.
func parseRecipe(reply string) (store.Recipe, error) {
	trimmed := strings.TrimSpace(reply)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var recipe store.Recipe
	if err := json.Unmarshal([]byte(trimmed), &recipe); err != nil {
		return store.Recipe{}, err
	}
	if recipe.Title == "" {
		return store.Recipe{}, errs.InvalidArgument("recipe has no title")
	}
	return recipe, nil
}
