// Package specparse loads OpenAPI documents (JSON or YAML) into the engine's
// parsed-specification model. Parsing degrades gracefully: operations without
// an operationId get a derived id, and malformed parameters or responses are
// skipped rather than failing the document.
package specparse

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

var methodOrder = []schema.HTTPMethod{
	schema.MethodGet,
	schema.MethodPost,
	schema.MethodPut,
	schema.MethodPatch,
	schema.MethodDelete,
	schema.MethodHead,
	schema.MethodOptions,
}

// ParseFile loads and parses an OpenAPI document from disk.
func ParseFile(path string) (*schema.ParsedSpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "read spec %s: %v", path, err).WithCause(err)
	}
	return Parse(content)
}

// Parse parses an OpenAPI document. JSON is tried first, then YAML.
func Parse(content []byte) (*schema.ParsedSpec, error) {
	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		if yerr := yaml.Unmarshal(content, &raw); yerr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeParse, "spec is neither valid JSON nor YAML: %v", yerr).WithCause(yerr)
		}
	}

	info := asMap(raw["info"])
	parsed := &schema.ParsedSpec{
		Title:      getString(info, "title", "Unnamed API"),
		Version:    getString(info, "version", "0.0.0"),
		Operations: parseOperations(raw),
		Components: parseComponents(raw),
	}
	return parsed, nil
}

// parseOperations walks the paths section. Paths are visited in sorted order
// and methods in a fixed canonical order so the operation list is stable
// across loads of the same document.
func parseOperations(raw map[string]any) []schema.Operation {
	paths := asMap(raw["paths"])
	pathKeys := sortedKeys(paths)

	var operations []schema.Operation
	for _, path := range pathKeys {
		pathItem := asMap(paths[path])
		for _, method := range methodOrder {
			opData := asMap(pathItem[strings.ToLower(string(method))])
			if opData == nil {
				continue
			}

			id := getString(opData, "operationId", "")
			if id == "" {
				id = fmt.Sprintf("%s_%s", strings.ToLower(string(method)), path)
			}

			operations = append(operations, schema.Operation{
				ID:          id,
				Path:        path,
				Method:      method,
				Summary:     getString(opData, "summary", ""),
				Description: getString(opData, "description", ""),
				Parameters:  parseParameters(opData["parameters"]),
				Responses:   parseResponses(asMap(opData["responses"])),
			})
		}
	}
	return operations
}

// parseParameters converts the parameter list, skipping entries without a
// name. An unknown location falls back to query, matching how permissive
// real-world specs tend to be.
func parseParameters(raw any) []schema.Parameter {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	var params []schema.Parameter
	for _, entry := range list {
		param := asMap(entry)
		name := getString(param, "name", "")
		if name == "" {
			continue
		}

		location := schema.ParameterLocation(getString(param, "in", string(schema.InQuery)))
		switch location {
		case schema.InQuery, schema.InPath, schema.InHeader, schema.InCookie, schema.InBody:
		default:
			location = schema.InQuery
		}

		paramSchema := asMap(param["schema"])
		params = append(params, schema.Parameter{
			Name:        name,
			In:          location,
			Required:    getBool(param, "required"),
			Type:        getString(paramSchema, "type", "string"),
			Description: getString(param, "description", ""),
		})
	}
	return params
}

// parseResponses converts the responses map, skipping non-numeric status
// codes (e.g. "default"). Only local component refs are carried; inline
// schemas and unresolvable refs yield a response without a schema ref.
func parseResponses(raw map[string]any) []schema.Response {
	codes := sortedKeys(raw)

	var responses []schema.Response
	for _, codeStr := range codes {
		code, err := strconv.Atoi(codeStr)
		if err != nil {
			continue
		}

		respData := asMap(raw[codeStr])
		responses = append(responses, schema.Response{
			StatusCode:  code,
			SchemaRef:   responseSchemaRef(respData),
			Description: getString(respData, "description", ""),
		})
	}
	return responses
}

func responseSchemaRef(respData map[string]any) string {
	content := asMap(respData["content"])
	for _, mediaKey := range sortedKeys(content) {
		mediaType := asMap(content[mediaKey])
		schemaData := asMap(mediaType["schema"])
		if ref := getString(schemaData, "$ref", ""); ref != "" {
			return ref
		}
	}
	return ""
}

func parseComponents(raw map[string]any) map[string]schema.ComponentSchema {
	schemas := asMap(asMap(raw["components"])["schemas"])
	components := make(map[string]schema.ComponentSchema, len(schemas))

	for name, schemaData := range schemas {
		props := asMap(asMap(schemaData)["properties"])
		properties := make(map[string]schema.SchemaProperty, len(props))
		for propName, propData := range props {
			prop := asMap(propData)
			propType := getString(prop, "type", "object")
			if ref := getString(prop, "$ref", ""); ref != "" {
				propType = refName(ref)
			}
			properties[propName] = schema.SchemaProperty{
				Name:        propName,
				Type:        propType,
				Items:       itemsType(asMap(prop["items"])),
				Description: getString(prop, "description", ""),
				Example:     prop["example"],
			}
		}
		components[name] = schema.ComponentSchema{Name: name, Properties: properties}
	}
	return components
}

// itemsType resolves the element type of an array property: a local ref wins
// over a plain type name.
func itemsType(items map[string]any) string {
	if ref := getString(items, "$ref", ""); ref != "" {
		return refName(ref)
	}
	return getString(items, "type", "")
}

// refName extracts the schema name from a local component ref.
func refName(ref string) string {
	parts := strings.Split(ref, "/")
	return parts[len(parts)-1]
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func getString(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
