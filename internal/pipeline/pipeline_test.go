package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HZeroxium/KAT-RBC/internal/executor"
	"github.com/HZeroxium/KAT-RBC/internal/reinforcement"
	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

func flightSpec() *schema.ParsedSpec {
	return &schema.ParsedSpec{
		Title:   "Flight Booking API",
		Version: "1.0.0",
		Operations: []schema.Operation{
			{ID: "getFlight", Path: "/flights/{id}", Method: schema.MethodGet},
			{ID: "bookFlight", Path: "/flights", Method: schema.MethodPost},
		},
		Components: map[string]schema.ComponentSchema{},
	}
}

func newShellExecutor() *executor.Executor {
	return executor.NewExecutor("http://localhost:9999", executor.WithRuntime(schema.RuntimePython, executor.Runtime{
		Binary:     "sh",
		ScriptFile: "script.sh",
		Args:       []string{"script.sh"},
	}))
}

func newTestEngine(t *testing.T) *reinforcement.Engine {
	t.Helper()
	repo, err := reinforcement.NewLibSQLRepository("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })
	return reinforcement.NewEngine(repo)
}

func TestRunProducesAllStageOutputs(t *testing.T) {
	p := New(newShellExecutor(), WithReinforcement(newTestEngine(t)))

	exchanges := []schema.RecordedExchange{
		{URL: "/flights/fl-1", Method: schema.MethodGet, StatusCode: 200,
			Body: map[string]any{"seats": 10.0}, Timestamp: time.Now()},
		{URL: "/flights/fl-2", Method: schema.MethodGet, StatusCode: 200,
			Body: map[string]any{"seats": 3.0}, Timestamp: time.Now()},
	}
	scripts := []schema.TestScript{
		{SequenceID: "sequence-1", Runtime: schema.RuntimePython, Content: "true"},
	}

	out, err := p.Run(context.Background(), Input{
		Spec:      flightSpec(),
		Exchanges: exchanges,
		Scripts:   scripts,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)

	// Graph: getFlight and bookFlight share the flight resource group.
	require.NotNil(t, out.Graph)
	assert.Len(t, out.Graph.Nodes, 2)
	require.Len(t, out.Graph.Edges, 1)
	assert.Equal(t, "getFlight", out.Graph.Edges[0].Src)
	assert.Equal(t, "bookFlight", out.Graph.Edges[0].Dst)

	require.Len(t, out.Sequences.Sequences, 1)
	assert.Equal(t, []string{"getFlight", "bookFlight"}, out.Sequences.Sequences[0].Operations)

	// Dynamic mining found the numeric invariant; no static miner configured.
	require.Len(t, out.Constraints, 1)
	assert.Equal(t, "response.seats >= 0", out.Constraints[0].Expression)

	require.Len(t, out.Results.Outcomes, 1)
	assert.Equal(t, schema.StatusMatched, out.Results.Outcomes[0].Status)

	require.NotNil(t, out.Update)
	assert.NotEmpty(t, out.Update.RefinedPrompts, "empty template store must be seeded")
}

func TestRunAlwaysYieldsSuite(t *testing.T) {
	p := New(newShellExecutor())

	out, err := p.Run(context.Background(), Input{
		Spec: flightSpec(),
		Scripts: []schema.TestScript{
			{SequenceID: "sequence-1", Runtime: schema.ScriptRuntime("ruby"), Content: "puts 1"},
		},
	})
	require.NoError(t, err)

	require.Len(t, out.Results.Outcomes, 1)
	assert.Equal(t, schema.StatusUnknown, out.Results.Outcomes[0].Status)
	assert.Nil(t, out.Update, "no reinforcement engine configured")
}

func TestRunEmptySpecEmptyScripts(t *testing.T) {
	p := New(newShellExecutor())

	out, err := p.Run(context.Background(), Input{
		Spec: &schema.ParsedSpec{Title: "Empty", Version: "0.0.0"},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Graph.Edges)
	assert.Empty(t, out.Sequences.Sequences)
	assert.Empty(t, out.Constraints)
	assert.Empty(t, out.Results.Outcomes)
	assert.NotEmpty(t, out.Results.SuiteID, "a run always yields a suite")
}
