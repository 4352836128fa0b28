package mining

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

func chargeExchange(path string, body map[string]any) schema.RecordedExchange {
	return schema.RecordedExchange{
		URL:        path,
		Method:     schema.MethodGet,
		StatusCode: 200,
		Body:       body,
		Timestamp:  time.Now(),
	}
}

func expressionsOf(invariants []schema.DynamicInvariant) []string {
	out := make([]string, 0, len(invariants))
	for _, inv := range invariants {
		out = append(out, inv.Expression)
	}
	return out
}

func TestMineNumericInvariant(t *testing.T) {
	exchanges := []schema.RecordedExchange{
		chargeExchange("/v1/charges/ch_1", map[string]any{"amount": 1500.0, "currency": "usd"}),
		chargeExchange("/v1/charges/ch_2", map[string]any{"amount": 0.0, "currency": "eur"}),
	}

	invariants := NewDynamicMiner(nil).Mine(context.Background(), exchanges)
	require.Len(t, invariants, 1, "currency is a string and yields nothing")
	assert.Equal(t, "response.amount >= 0", invariants[0].Expression)
	assert.Equal(t, []string{"response.amount"}, invariants[0].Variables)
	assert.NotEmpty(t, invariants[0].ID)
}

func TestMineNegativeValueBlocksInvariant(t *testing.T) {
	exchanges := []schema.RecordedExchange{
		chargeExchange("/v1/charges/ch_1", map[string]any{"amount": 100.0}),
		chargeExchange("/v1/charges/ch_2", map[string]any{"amount": -5.0}),
	}

	invariants := NewDynamicMiner(nil).Mine(context.Background(), exchanges)
	assert.Empty(t, invariants)
}

func TestMineMissingPropertyBlocksInvariant(t *testing.T) {
	exchanges := []schema.RecordedExchange{
		chargeExchange("/v1/charges/ch_1", map[string]any{"amount": 100.0}),
		chargeExchange("/v1/charges/ch_2", map[string]any{"total": 7.0}),
	}

	invariants := NewDynamicMiner(nil).Mine(context.Background(), exchanges)
	assert.Empty(t, invariants, "a property must hold in every exchange of the group")
}

func TestMineListInvariant(t *testing.T) {
	exchanges := []schema.RecordedExchange{
		chargeExchange("/v1/charges/ch_1", map[string]any{"tags": []any{"a", "b"}}),
		chargeExchange("/v1/charges/ch_2", map[string]any{"tags": []any{}}),
	}

	invariants := NewDynamicMiner(nil).Mine(context.Background(), exchanges)
	require.Len(t, invariants, 1)
	assert.Equal(t, "size(response.tags) >= 0", invariants[0].Expression)
}

func TestMineNestedProperties(t *testing.T) {
	exchanges := []schema.RecordedExchange{
		chargeExchange("/v1/charges/ch_1", map[string]any{
			"card": map[string]any{"exp_month": 12.0},
		}),
		chargeExchange("/v1/charges/ch_2", map[string]any{
			"card": map[string]any{"exp_month": 3.0},
		}),
	}

	invariants := NewDynamicMiner(nil).Mine(context.Background(), exchanges)
	require.Len(t, invariants, 1)
	assert.Equal(t, "response.card.exp_month >= 0", invariants[0].Expression)
}

func TestMineGroupsByEndpointAndMethod(t *testing.T) {
	// Same normalized endpoint, different methods: separate groups, so the
	// mismatching GET body cannot block the POST group's invariant.
	get := chargeExchange("/v1/charges/ch_1", map[string]any{"amount": "n/a"})
	post := schema.RecordedExchange{
		URL: "/v1/charges", Method: schema.MethodPost, StatusCode: 201,
		Body: map[string]any{"amount": 900.0}, Timestamp: time.Now(),
	}

	invariants := NewDynamicMiner(nil).Mine(context.Background(), []schema.RecordedExchange{get, post})
	assert.Contains(t, expressionsOf(invariants), "response.amount >= 0")
}

func TestMineEmptyLog(t *testing.T) {
	assert.Nil(t, NewDynamicMiner(nil).Mine(context.Background(), nil))
}

func TestFlattenBody(t *testing.T) {
	out := map[string]bool{}
	flattenBody(map[string]any{
		"id":   "ch_1",
		"card": map[string]any{"brand": "visa"},
		"tags": []any{"x"},
		"refunds": []any{
			map[string]any{"amount": 3.0},
		},
		"empty": []any{},
	}, "", out)

	assert.Equal(t, map[string]bool{
		"id":             true,
		"card.brand":     true,
		"tags[]":         true,
		"refunds.amount": true,
	}, out)
}
