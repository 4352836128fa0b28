// Package pipeline chains the engine stages into one testing run:
// graph building, sequencing, constraint mining and combination, script
// execution, and reinforcement. Stages run strictly in order; no stage starts
// before its predecessor's output is fully materialized.
package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/HZeroxium/KAT-RBC/internal/executor"
	"github.com/HZeroxium/KAT-RBC/internal/graph"
	"github.com/HZeroxium/KAT-RBC/internal/logging"
	"github.com/HZeroxium/KAT-RBC/internal/mining"
	"github.com/HZeroxium/KAT-RBC/internal/reinforcement"
	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// Input carries everything one testing run consumes. Scripts and exchanges
// come from external stages (script generation, traffic recording) and may be
// empty.
type Input struct {
	Spec      *schema.ParsedSpec
	Exchanges []schema.RecordedExchange
	Scripts   []schema.TestScript
}

// Output is the materialized result of every stage. Results is always
// populated, even when every script failed to execute.
type Output struct {
	RunID       string
	Graph       *schema.OperationDependencyGraph
	Sequences   schema.SequenceCollection
	Constraints []schema.UnifiedConstraint
	Results     schema.TestResults
	Update      *schema.ReinforcementUpdate
}

// Pipeline wires the stage implementations together.
type Pipeline struct {
	builder       *graph.Builder
	sequencerOpts []graph.SequencerOption
	staticMiner   mining.StaticMiner
	dynamicMiner  *mining.DynamicMiner
	combiner      *mining.Combiner
	executor      *executor.Executor
	reinforcement *reinforcement.Engine
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBuilder replaces the default graph builder.
func WithBuilder(b *graph.Builder) Option {
	return func(p *Pipeline) {
		if b != nil {
			p.builder = b
		}
	}
}

// WithSequencerOptions sets options passed to the per-run sequencer.
func WithSequencerOptions(opts ...graph.SequencerOption) Option {
	return func(p *Pipeline) { p.sequencerOpts = opts }
}

// WithStaticMiner replaces the default no-op static miner.
func WithStaticMiner(m mining.StaticMiner) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.staticMiner = m
		}
	}
}

// WithDynamicMiner replaces the default dynamic miner.
func WithDynamicMiner(m *mining.DynamicMiner) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.dynamicMiner = m
		}
	}
}

// WithReinforcement attaches a reinforcement engine. Without one the run
// still completes; accumulated experience is simply not updated.
func WithReinforcement(e *reinforcement.Engine) Option {
	return func(p *Pipeline) { p.reinforcement = e }
}

// WithLogger sets the pipeline's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline around the given script executor.
func New(exec *executor.Executor, opts ...Option) *Pipeline {
	p := &Pipeline{
		builder:      graph.NewBuilder(),
		staticMiner:  mining.NoopStaticMiner{},
		dynamicMiner: mining.NewDynamicMiner(nil),
		combiner:     mining.NewCombiner(),
		executor:     exec,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one full testing run. It always returns an Output with a
// Results suite; the error reports reinforcement persistence trouble and
// never means the run itself was lost.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Output, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	out := &Output{RunID: runID}

	// Stored edge weights bias the sequencer toward historically productive
	// paths. Losing them degrades ordering, not correctness.
	var weights map[string]float64
	if p.reinforcement != nil {
		var err error
		weights, err = p.reinforcement.WeightMap(ctx)
		if err != nil {
			p.logger.WarnContext(ctx, "load edge weights failed", slog.String("error", err.Error()))
			weights = nil
		}
	}

	odg, _, _ := p.builder.Build(ctx, in.Spec)
	out.Graph = odg
	p.logger.InfoContext(ctx, "dependency graph built",
		slog.Int("nodes", len(odg.Nodes)), slog.Int("edges", len(odg.Edges)))

	seqOpts := append(append([]graph.SequencerOption(nil), p.sequencerOpts...),
		graph.WithEdgeWeights(weights))
	out.Sequences = graph.NewSequencer(seqOpts...).Generate(odg)
	p.logger.InfoContext(ctx, "sequences generated", slog.Int("count", len(out.Sequences.Sequences)))

	// Static and dynamic mining are independent of each other and run
	// concurrently. An absent or failing static capability is an empty
	// contribution, never a run failure.
	var (
		static     []schema.StaticConstraint
		invariants []schema.DynamicInvariant
	)
	g, mineCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mined, err := p.staticMiner.Mine(mineCtx, in.Spec)
		if err != nil {
			p.logger.WarnContext(mineCtx, "static mining failed, continuing without",
				slog.String("error", err.Error()))
			return nil
		}
		static = mined
		return nil
	})
	g.Go(func() error {
		invariants = p.dynamicMiner.Mine(mineCtx, in.Exchanges)
		return nil
	})
	_ = g.Wait()

	out.Constraints = p.combiner.Combine(static, invariants)
	p.logger.InfoContext(ctx, "constraints combined",
		slog.Int("static", len(static)), slog.Int("dynamic", len(invariants)),
		slog.Int("unified", len(out.Constraints)))

	out.Results = p.executor.Execute(ctx, in.Scripts)

	if p.reinforcement != nil {
		update, err := p.reinforcement.Process(ctx, out.Results)
		if err != nil {
			p.logger.WarnContext(ctx, "reinforcement pass failed", slog.String("error", err.Error()))
			return out, err
		}
		out.Update = update
	}
	return out, nil
}
