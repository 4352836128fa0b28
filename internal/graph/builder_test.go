package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

func bookingSpec() *schema.ParsedSpec {
	return &schema.ParsedSpec{
		Title:   "Flight Booking API",
		Version: "1.0.0",
		Operations: []schema.Operation{
			{ID: "getFlight", Path: "/flights/{id}", Method: schema.MethodGet,
				Responses: []schema.Response{{StatusCode: 200, SchemaRef: "#/components/schemas/Flight"}}},
			{ID: "bookFlight", Path: "/flights", Method: schema.MethodPost},
			{ID: "updateFlight", Path: "/flights/{id}", Method: schema.MethodPut},
			{ID: "getHotel", Path: "/hotels/{id}", Method: schema.MethodGet},
		},
		Components: map[string]schema.ComponentSchema{
			"Flight": {
				Name: "Flight",
				Properties: map[string]schema.SchemaProperty{
					"legs":   {Name: "legs", Type: "array", Items: "Leg"},
					"seller": {Name: "seller", Type: "Seller"},
				},
			},
			"Leg":    {Name: "Leg", Properties: map[string]schema.SchemaProperty{}},
			"Seller": {Name: "Seller", Properties: map[string]schema.SchemaProperty{}},
		},
	}
}

func findEdge(edges []schema.ODGEdge, src, dst string) *schema.ODGEdge {
	for i := range edges {
		if edges[i].Src == src && edges[i].Dst == dst {
			return &edges[i]
		}
	}
	return nil
}

func TestBuildResourceGroupEdges(t *testing.T) {
	odg, _, _ := NewBuilder().Build(context.Background(), bookingSpec())

	assert.Len(t, odg.Nodes, 4)

	// GET precedes every write in the flight group.
	readModify := findEdge(odg.Edges, "getFlight", "bookFlight")
	require.NotNil(t, readModify)
	assert.Equal(t, "read before modify", readModify.Reason)
	require.NotNil(t, findEdge(odg.Edges, "getFlight", "updateFlight"))

	// POST precedes GET in the same group.
	readAfter := findEdge(odg.Edges, "bookFlight", "getFlight")
	require.NotNil(t, readAfter)
	assert.Equal(t, "read after creation", readAfter.Reason)

	// Hotels and flights are separate resource groups.
	assert.Nil(t, findEdge(odg.Edges, "getHotel", "bookFlight"))
	assert.Nil(t, findEdge(odg.Edges, "getFlight", "getHotel"))
}

func TestBuildSkipsMalformedPaths(t *testing.T) {
	spec := &schema.ParsedSpec{
		Operations: []schema.Operation{
			{ID: "weird", Path: "", Method: schema.MethodGet},
			{ID: "rootOnly", Path: "/", Method: schema.MethodPost},
			{ID: "getThing", Path: "/things/{id}", Method: schema.MethodGet},
			{ID: "makeThing", Path: "/things", Method: schema.MethodPost},
		},
		Components: map[string]schema.ComponentSchema{},
	}

	odg, _, _ := NewBuilder().Build(context.Background(), spec)

	// Malformed operations stay as nodes but contribute no edges.
	assert.Len(t, odg.Nodes, 4)
	require.Len(t, odg.Edges, 2)
	assert.NotNil(t, findEdge(odg.Edges, "getThing", "makeThing"))
	assert.NotNil(t, findEdge(odg.Edges, "makeThing", "getThing"))
}

func TestBuildOperationSchemaDeps(t *testing.T) {
	_, osDeps, _ := NewBuilder().Build(context.Background(), bookingSpec())

	require.Len(t, osDeps, 1)
	assert.Equal(t, "getFlight", osDeps[0].OperationID)
	assert.Equal(t, "Flight", osDeps[0].SchemaName)
	assert.NotNil(t, osDeps[0].ParamToField)
	assert.Empty(t, osDeps[0].ParamToField)
}

func TestBuildSchemaSchemaDeps(t *testing.T) {
	_, _, ssDeps := NewBuilder().Build(context.Background(), bookingSpec())

	require.Len(t, ssDeps, 2)
	// Sorted by schema then property name: legs (array of Leg) before seller.
	assert.Equal(t, schema.SchemaSchemaDep{Parent: "Flight", Child: "Leg"}, ssDeps[0])
	assert.Equal(t, schema.SchemaSchemaDep{Parent: "Flight", Child: "Seller"}, ssDeps[1])
}

type stubInference struct {
	edges []schema.ODGEdge
	err   error
}

func (s stubInference) ProposeEdges(context.Context, *schema.ParsedSpec,
	[]schema.OperationSchemaDep, []schema.SchemaSchemaDep) ([]schema.ODGEdge, error) {
	return s.edges, s.err
}

func TestBuildWithInference(t *testing.T) {
	inf := stubInference{edges: []schema.ODGEdge{
		{Src: "getHotel", Dst: "bookFlight", Reason: "inferred"},
		{Src: "ghost", Dst: "bookFlight", Reason: "unknown endpoint, skipped"},
	}}

	odg, _, _ := NewBuilder(WithInference(inf)).Build(context.Background(), bookingSpec())

	assert.NotNil(t, findEdge(odg.Edges, "getHotel", "bookFlight"))
	assert.Nil(t, findEdge(odg.Edges, "ghost", "bookFlight"))
}

func TestBuildInferenceFailureKeepsHeuristics(t *testing.T) {
	inf := stubInference{err: errors.New("backend unreachable")}

	odg, _, _ := NewBuilder(WithInference(inf)).Build(context.Background(), bookingSpec())

	assert.NotNil(t, findEdge(odg.Edges, "getFlight", "bookFlight"),
		"inference failure must not lose heuristic edges")
}

func TestBuildEmptySpec(t *testing.T) {
	odg, osDeps, ssDeps := NewBuilder().Build(context.Background(),
		&schema.ParsedSpec{Components: map[string]schema.ComponentSchema{}})

	assert.Empty(t, odg.Nodes)
	assert.Empty(t, odg.Edges)
	assert.Empty(t, osDeps)
	assert.Empty(t, ssDeps)
}
