package reinforcement

import (
	"context"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// OutcomeRecord is one row of the append-only outcome log.
type OutcomeRecord struct {
	ID      int64
	SuiteID string
	Outcome schema.TestOutcome
}

// Repository is the durable store behind experience reinforcement. It holds
// three record sets: an append-only outcome log, named prompt templates, and
// ODG edge weights keyed by (src, dst). Implementations must be safe for
// concurrent use; read-modify-write serialization per logical key is the
// repository's responsibility, not the caller's.
type Repository interface {
	// Outcome log (append-only, never rewritten)
	AppendOutcome(ctx context.Context, suiteID string, outcome schema.TestOutcome) error
	ListOutcomes(ctx context.Context, suiteID string) ([]OutcomeRecord, error)

	// Prompt templates (keyed by unique name)
	AddTemplate(ctx context.Context, tpl schema.PromptTemplate) error
	SaveTemplate(ctx context.Context, tpl schema.PromptTemplate) error
	GetTemplate(ctx context.Context, name string) (*schema.PromptTemplate, error)
	ListTemplates(ctx context.Context) ([]schema.PromptTemplate, error)

	// Edge weights (keyed by ordered operation-id pair)
	UpsertEdgeWeight(ctx context.Context, weight schema.EdgeWeight) error
	GetEdgeWeights(ctx context.Context) ([]schema.EdgeWeight, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
