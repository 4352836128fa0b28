package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

func flightSpec() *schema.ParsedSpec {
	return &schema.ParsedSpec{
		Title:   "Flight Booking API",
		Version: "1.0.0",
		Components: map[string]schema.ComponentSchema{
			"Flight": {
				Name: "Flight",
				Properties: map[string]schema.SchemaProperty{
					"id":    {Name: "id", Type: "string"},
					"seats": {Name: "seats", Type: "integer"},
					"legs":  {Name: "legs", Type: "array", Items: "Leg"},
				},
			},
		},
	}
}

func TestValidatePayload(t *testing.T) {
	v := NewValidator(flightSpec())

	err := v.ValidatePayload("Flight", map[string]any{
		"id":    "fl-1",
		"seats": 120,
		"legs":  []any{map[string]any{"origin": "VIE"}},
	})
	assert.NoError(t, err)

	err = v.ValidatePayload("Flight", map[string]any{
		"id":    "fl-1",
		"seats": "many",
	})
	require.Error(t, err)
	var ee *schema.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, schema.ErrCodeValidation, ee.Code)
}

func TestValidatePayloadUnknownComponent(t *testing.T) {
	v := NewValidator(flightSpec())

	err := v.ValidatePayload("Booking", map[string]any{})
	require.Error(t, err)
	var ee *schema.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, schema.ErrCodeNotFound, ee.Code)
}

func TestCheckDataFile(t *testing.T) {
	v := NewValidator(flightSpec())

	valid := schema.TestDataFile{
		OperationID: "bookFlight",
		Kind:        schema.DataSetValid,
		Items: []schema.TestDataItem{
			{Data: map[string]any{"id": "fl-1", "seats": 10}, ExpectedCode: 201},
			{Data: map[string]any{"seats": "full"}, ExpectedCode: 201}, // wrong type
		},
	}
	issues, err := v.CheckDataFile(valid, "Flight")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Index)
	assert.Contains(t, issues[0].Reason, "rejected")

	invalid := schema.TestDataFile{
		OperationID: "bookFlight",
		Kind:        schema.DataSetInvalid,
		Items: []schema.TestDataItem{
			{Data: map[string]any{"seats": "full"}, ExpectedCode: 400},
			{Data: map[string]any{"id": "fl-2"}, ExpectedCode: 400}, // actually valid
		},
	}
	issues, err = v.CheckDataFile(invalid, "Flight")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Index)
	assert.Contains(t, issues[0].Reason, "accepted")
}
