// Package validation checks generated test-data payloads against the parsed
// specification's component schemas. Valid-kind items are expected to satisfy
// the schema and invalid-kind items are expected to violate it; divergence in
// either direction is reported so bad generated data never reaches execution.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// jsonSchemaTypes are the primitive type names JSON Schema understands. A
// component property typed with another schema's name maps to "object".
var jsonSchemaTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"array":   true,
	"object":  true,
	"null":    true,
}

// Validator validates payloads against component schemas of one parsed spec.
// It is safe for concurrent use.
type Validator struct {
	spec *schema.ParsedSpec

	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewValidator creates a validator over the given parsed specification.
func NewValidator(spec *schema.ParsedSpec) *Validator {
	return &Validator{
		spec:  spec,
		cache: make(map[string]*jsonschema.Schema),
	}
}

// ValidatePayload validates one payload against a named component schema.
// Violations come back as a VALIDATION_ERROR carrying each leaf message.
func (v *Validator) ValidatePayload(componentName string, payload any) error {
	compiled, err := v.getOrCompile(componentName)
	if err != nil {
		return err
	}

	doc, err := toJSONValue(payload)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize payload").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toValidationError(err)
	}
	return nil
}

// ItemIssue reports one test-data item whose payload diverges from its
// declared kind.
type ItemIssue struct {
	Index  int
	Kind   schema.DataSetKind
	Reason string
}

// CheckDataFile validates every item of a test-data file against the named
// component schema. Valid-kind items failing validation and invalid-kind
// items passing it are both issues.
func (v *Validator) CheckDataFile(file schema.TestDataFile, componentName string) ([]ItemIssue, error) {
	if _, err := v.getOrCompile(componentName); err != nil {
		return nil, err
	}

	var issues []ItemIssue
	for i, item := range file.Items {
		err := v.ValidatePayload(componentName, item.Data)
		switch file.Kind {
		case schema.DataSetValid:
			if err != nil {
				issues = append(issues, ItemIssue{
					Index:  i,
					Kind:   file.Kind,
					Reason: fmt.Sprintf("valid item rejected by schema %s: %v", componentName, err),
				})
			}
		case schema.DataSetInvalid:
			if err == nil {
				issues = append(issues, ItemIssue{
					Index:  i,
					Kind:   file.Kind,
					Reason: fmt.Sprintf("invalid item accepted by schema %s", componentName),
				})
			}
		}
	}
	return issues, nil
}

// getOrCompile returns a cached compiled schema or builds one from the
// component definition.
func (v *Validator) getOrCompile(componentName string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if cached, ok := v.cache[componentName]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[componentName]; ok {
		return cached, nil
	}

	component, ok := v.spec.Components[componentName]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "component schema %q not found", componentName)
	}

	schemaJSON, err := json.Marshal(componentToJSONSchema(component))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "build component schema").WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "unmarshal component schema").WithCause(err)
	}

	url := fmt.Sprintf("katrbc://component-schema/%s", componentName)
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "add component schema resource").WithCause(err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "compile component schema").WithCause(err)
	}

	v.cache[componentName] = compiled
	return compiled, nil
}

// componentToJSONSchema renders a component definition as a JSON Schema
// document. Properties typed with another schema's name become plain objects;
// cross-schema structure is the graph builder's concern, not validation's.
func componentToJSONSchema(component schema.ComponentSchema) map[string]any {
	properties := make(map[string]any, len(component.Properties))
	for name, prop := range component.Properties {
		properties[name] = propertyToJSONSchema(prop)
	}
	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": properties,
	}
}

func propertyToJSONSchema(prop schema.SchemaProperty) map[string]any {
	propType := prop.Type
	if !jsonSchemaTypes[propType] {
		propType = "object"
	}

	out := map[string]any{"type": propType}
	if propType == "array" {
		itemType := prop.Items
		if itemType == "" || !jsonSchemaTypes[itemType] {
			itemType = "object"
		}
		out["items"] = map[string]any{"type": itemType}
	}
	return out
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func toValidationError(err error) *schema.EngineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
