// Package recipe implements the AI recipe workflows: ranking candidate
// recipes against a cookbook theme and synthesizing full recipes under
// a customer's credit budget. Both fan work out across a bounded worker
// pool and stop early once enough results are in.
package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hearthfire/cookforge/fanout"
	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/plugin/ai"
	"github.com/hearthfire/cookforge/session"
)

// Candidate is a recipe idea offered for ranking.
type Candidate struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

// Ranked is a candidate with its match score.
type Ranked struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
}

// RankerConfig wires the ranker's collaborators.
type RankerConfig struct {
	Chatter ai.Chatter
	Manager *session.Manager
	Factory session.Factory
	// Target is how many candidates must cross Threshold before the
	// fan-out stops early.
	Target      int
	Threshold   float64
	Parallelism int
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Ranker scores candidate recipes against a cookbook theme.
type Ranker struct {
	chatter     ai.Chatter
	manager     *session.Manager
	factory     session.Factory
	target      int
	threshold   float64
	parallelism int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewRanker creates a ranker.
func NewRanker(cfg RankerConfig) *Ranker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	target := cfg.Target
	if target <= 0 {
		target = 10
	}
	return &Ranker{
		chatter:     cfg.Chatter,
		manager:     cfg.Manager,
		factory:     cfg.Factory,
		target:      target,
		threshold:   cfg.Threshold,
		parallelism: cfg.Parallelism,
		logger:      logger,
		metrics:     metrics,
	}
}

// Rank scores each candidate against the theme and returns the
// candidates that crossed the acceptability threshold, best first. The
// fan-out stops launching new candidates once the target number of
// acceptable ones is collected; unstarted candidates are skipped. Each
// candidate runs under its own child scope attached to sess for the
// duration of its call.
func (r *Ranker) Rank(ctx context.Context, parent *session.Scope, sess *session.Session, theme string, candidates []Candidate) ([]Ranked, error) {
	systemPrompt, err := ai.SystemPrompt(ai.CatalogRecipeRank)
	if err != nil {
		return nil, err
	}

	gate := fanout.NewRankGate(r.target, r.threshold)
	var mu sync.Mutex
	var ranked []Ranked

	err = fanout.ForEach(ctx, r.factory, parent, candidates,
		func(ctx context.Context, scope *session.Scope, candidate Candidate) (fanout.Decision, error) {
			if err := r.manager.AddScopeToSession(sess, scope.ID); err != nil {
				return fanout.Continue, err
			}
			defer func() {
				if err := r.manager.RemoveScopeFromSession(scope.ID); err != nil {
					r.logger.Warn("detach rank scope failed",
						slog.String(observability.LogFieldScopeID, scope.ID),
						slog.String("error", err.Error()))
				}
			}()

			reply, err := r.chatter.Chat(ctx, []ai.Message{
				{Role: ai.RoleSystem, Content: systemPrompt},
				{Role: ai.RoleUser, Content: rankPromptFor(theme, candidate)},
			})
			if err != nil {
				return fanout.Continue, err
			}

			score, err := parseScore(reply)
			if err != nil {
				// An unparsable reply disqualifies the candidate but
				// does not abort the run.
				r.logger.Warn("unparsable rank reply",
					slog.String(observability.LogFieldScopeID, scope.ID),
					slog.String("reply", reply))
				return fanout.Continue, nil
			}

			decision := gate.Offer(score)
			if score >= r.threshold {
				mu.Lock()
				ranked = append(ranked, Ranked{Candidate: candidate, Score: score})
				mu.Unlock()
			}
			return decision, nil
		},
		fanout.WithParallelism(r.parallelism),
		fanout.WithLogger(r.logger),
		fanout.WithMetrics(r.metrics),
	)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

func rankPromptFor(theme string, candidate Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cookbook theme: %s\n", theme)
	fmt.Fprintf(&b, "Candidate recipe: %s\n", candidate.Title)
	if candidate.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", candidate.Notes)
	}
	return b.String()
}

// parseScore extracts a 0-100 score from a model reply. Replies are
// expected to be a bare number but stray whitespace and percent signs
// are tolerated.
func parseScore(reply string) (float64, error) {
	trimmed := strings.TrimSpace(reply)
	trimmed = strings.TrimSuffix(trimmed, "%")
	trimmed = strings.TrimSpace(trimmed)
	score, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}
