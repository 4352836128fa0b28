// Package reinforcement persists test outcomes and adjusts the accumulated
// experience (prompt templates, ODG edge weights) that biases future runs.
package reinforcement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// defaultTemplateName identifies the template seeded when the store is empty.
const defaultTemplateName = "test-generation-default"

const defaultTemplateText = `Generate an executable test script for the operation sequence below.
Read the target base URL from the API_BASE_URL environment variable.
Assert every listed response constraint and emit an XUnit-style report.

Sequence: {{sequence}}
Constraints: {{constraints}}
`

// Policy adjusts templates and weights based on a suite's outcome
// distribution. Implementations must not mutate their inputs.
type Policy interface {
	Adjust(templates []schema.PromptTemplate, weights []schema.EdgeWeight, results schema.TestResults) ([]schema.PromptTemplate, []schema.EdgeWeight)
}

// ReadThroughPolicy is the minimum policy: stored state passes through
// unchanged. It is the default and a fully valid configuration.
type ReadThroughPolicy struct{}

func (ReadThroughPolicy) Adjust(templates []schema.PromptTemplate, weights []schema.EdgeWeight, _ schema.TestResults) ([]schema.PromptTemplate, []schema.EdgeWeight) {
	return templates, weights
}

// Engine runs reinforcement passes over a Repository.
type Engine struct {
	repo   Repository
	policy Policy
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPolicy replaces the default read-through adjustment policy.
func WithPolicy(p Policy) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a reinforcement engine over the given repository.
func NewEngine(repo Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:   repo,
		policy: ReadThroughPolicy{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs one reinforcement pass: append every outcome to the durable
// log, load templates and weights, apply the adjustment policy, and write the
// adjusted state back. Individual write failures are logged and skipped so one
// bad record never aborts the pass; the returned update reflects what was
// actually persisted.
func (e *Engine) Process(ctx context.Context, results schema.TestResults) (*schema.ReinforcementUpdate, error) {
	for _, outcome := range results.Outcomes {
		if err := e.repo.AppendOutcome(ctx, results.SuiteID, outcome); err != nil {
			e.logger.WarnContext(ctx, "append outcome failed",
				slog.String("test", outcome.TestName), slog.String("error", err.Error()))
		}
	}

	templates, err := e.repo.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		seed := schema.PromptTemplate{
			Name:         defaultTemplateName,
			TemplateText: defaultTemplateText,
			Version:      "1",
		}
		if err := e.repo.SaveTemplate(ctx, seed); err != nil {
			return nil, err
		}
		templates = []schema.PromptTemplate{seed}
	}

	weights, err := e.repo.GetEdgeWeights(ctx)
	if err != nil {
		return nil, err
	}

	adjustedTemplates, adjustedWeights := e.policy.Adjust(templates, weights, results)

	persistedTemplates := make([]schema.PromptTemplate, 0, len(adjustedTemplates))
	for _, tpl := range adjustedTemplates {
		if err := e.repo.SaveTemplate(ctx, tpl); err != nil {
			e.logger.WarnContext(ctx, "save template failed",
				slog.String("template", tpl.Name), slog.String("error", err.Error()))
			continue
		}
		persistedTemplates = append(persistedTemplates, tpl)
	}

	weightMap := make(map[string]float64, len(adjustedWeights))
	for _, w := range adjustedWeights {
		if err := e.repo.UpsertEdgeWeight(ctx, w); err != nil {
			e.logger.WarnContext(ctx, "upsert edge weight failed",
				slog.String("edge", edgeKey(w.Src, w.Dst)), slog.String("error", err.Error()))
			continue
		}
		weightMap[edgeKey(w.Src, w.Dst)] = w.Weight
	}

	return &schema.ReinforcementUpdate{
		RefinedPrompts: persistedTemplates,
		UpdatedWeights: weightMap,
	}, nil
}

// WeightMap exports the current edge-weight map keyed "src->dst".
func (e *Engine) WeightMap(ctx context.Context) (map[string]float64, error) {
	weights, err := e.repo.GetEdgeWeights(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]float64, len(weights))
	for _, w := range weights {
		m[edgeKey(w.Src, w.Dst)] = w.Weight
	}
	return m, nil
}

// Templates exports the current prompt-template list.
func (e *Engine) Templates(ctx context.Context) ([]schema.PromptTemplate, error) {
	return e.repo.ListTemplates(ctx)
}

func edgeKey(src, dst string) string {
	return fmt.Sprintf("%s->%s", src, dst)
}
