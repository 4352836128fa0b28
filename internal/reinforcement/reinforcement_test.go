package reinforcement

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

func newTestRepo(t *testing.T) *LibSQLRepository {
	t.Helper()
	dbPath := "file:" + filepath.Join(t.TempDir(), "test.db")
	repo, err := NewLibSQLRepository(dbPath)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var ee *schema.EngineError
	require.True(t, errors.As(err, &ee), "expected EngineError, got %T", err)
	return ee.Code
}

func TestAppendAndListOutcomes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	outcomes := []schema.TestOutcome{
		{TestName: "tests.test_ok", Status: schema.StatusMatched, Details: "test passed"},
		{TestName: "tests.test_bad", Status: schema.StatusMismatched, Expected: ">= 0", Actual: "-1"},
	}
	for _, o := range outcomes {
		require.NoError(t, repo.AppendOutcome(ctx, "suite-1", o))
	}

	records, err := repo.ListOutcomes(ctx, "suite-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tests.test_ok", records[0].Outcome.TestName)
	assert.Equal(t, schema.StatusMismatched, records[1].Outcome.Status)
	assert.Equal(t, ">= 0", records[1].Outcome.Expected)

	other, err := repo.ListOutcomes(ctx, "suite-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAddTemplateRejectsDuplicateName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tpl := schema.PromptTemplate{Name: "booking-flow", TemplateText: "generate tests for {{sequence}}"}
	require.NoError(t, repo.AddTemplate(ctx, tpl))

	err := repo.AddTemplate(ctx, tpl)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, errorCode(t, err))

	// The first insert stays intact.
	got, err := repo.GetTemplate(ctx, "booking-flow")
	require.NoError(t, err)
	assert.Equal(t, "generate tests for {{sequence}}", got.TemplateText)
	assert.Equal(t, "1", got.Version)
}

func TestSaveTemplateUpserts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveTemplate(ctx, schema.PromptTemplate{Name: "t", TemplateText: "v1"}))
	require.NoError(t, repo.SaveTemplate(ctx, schema.PromptTemplate{Name: "t", TemplateText: "v2", Version: "2"}))

	got, err := repo.GetTemplate(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.TemplateText)
	assert.Equal(t, "2", got.Version)

	all, err := repo.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetTemplateNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetTemplate(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, errorCode(t, err))
}

func TestUpsertEdgeWeightKeepsSingleRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertEdgeWeight(ctx, schema.EdgeWeight{
		Src: "getFlight", Dst: "bookFlight", Weight: 1.0,
	}))
	require.NoError(t, repo.UpsertEdgeWeight(ctx, schema.EdgeWeight{
		Src: "getFlight", Dst: "bookFlight", Weight: 2.0, Successes: 3, Failures: 1,
	}))

	weights, err := repo.GetEdgeWeights(ctx)
	require.NoError(t, err)
	require.Len(t, weights, 1, "upsert must never create a second record for the same pair")
	assert.Equal(t, 2.0, weights[0].Weight)
	assert.Equal(t, 3, weights[0].Successes)
	assert.Equal(t, 1, weights[0].Failures)
	assert.False(t, weights[0].LastUpdated.IsZero())
}

func TestUpsertEdgeWeightRefreshesTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.UpsertEdgeWeight(ctx, schema.EdgeWeight{
		Src: "a", Dst: "b", Weight: 1.0, LastUpdated: old,
	}))
	require.NoError(t, repo.UpsertEdgeWeight(ctx, schema.EdgeWeight{
		Src: "a", Dst: "b", Weight: 1.5,
	}))

	weights, err := repo.GetEdgeWeights(ctx)
	require.NoError(t, err)
	require.Len(t, weights, 1)
	assert.True(t, weights[0].LastUpdated.After(old))
}

func TestEngineSeedsDefaultTemplate(t *testing.T) {
	repo := newTestRepo(t)
	engine := NewEngine(repo)

	update, err := engine.Process(context.Background(), schema.TestResults{
		SuiteID: "suite-1",
		Outcomes: []schema.TestOutcome{
			{TestName: "t1", Status: schema.StatusMatched},
		},
	})
	require.NoError(t, err)
	require.Len(t, update.RefinedPrompts, 1, "empty store must yield a seeded default template")
	assert.Equal(t, defaultTemplateName, update.RefinedPrompts[0].Name)

	// The seed is durable, not just returned.
	got, err := repo.GetTemplate(context.Background(), defaultTemplateName)
	require.NoError(t, err)
	assert.NotEmpty(t, got.TemplateText)
}

func TestEnginePersistsOutcomesAndExportsWeights(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertEdgeWeight(ctx, schema.EdgeWeight{
		Src: "getFlight", Dst: "bookFlight", Weight: 1.0,
	}))

	engine := NewEngine(repo)
	results := schema.TestResults{
		SuiteID: "suite-9",
		Outcomes: []schema.TestOutcome{
			{TestName: "t1", Status: schema.StatusMatched},
			{TestName: "t2", Status: schema.StatusUnknown, Details: "timed out"},
		},
	}

	update, err := engine.Process(ctx, results)
	require.NoError(t, err)
	assert.Equal(t, 1.0, update.UpdatedWeights["getFlight->bookFlight"])

	records, err := repo.ListOutcomes(ctx, "suite-9")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	exported, err := engine.WeightMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, update.UpdatedWeights, exported)
}

type halvingPolicy struct{}

func (halvingPolicy) Adjust(templates []schema.PromptTemplate, weights []schema.EdgeWeight, _ schema.TestResults) ([]schema.PromptTemplate, []schema.EdgeWeight) {
	adjusted := make([]schema.EdgeWeight, len(weights))
	for i, w := range weights {
		w.Weight /= 2
		adjusted[i] = w
	}
	return templates, adjusted
}

func TestEngineAppliesCustomPolicy(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertEdgeWeight(ctx, schema.EdgeWeight{Src: "a", Dst: "b", Weight: 4.0}))

	engine := NewEngine(repo, WithPolicy(halvingPolicy{}))
	update, err := engine.Process(ctx, schema.TestResults{SuiteID: "s"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, update.UpdatedWeights["a->b"])

	weights, err := repo.GetEdgeWeights(ctx)
	require.NoError(t, err)
	require.Len(t, weights, 1)
	assert.Equal(t, 2.0, weights[0].Weight, "policy output must be written back")
}
