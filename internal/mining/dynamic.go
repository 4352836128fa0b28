package mining

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/HZeroxium/KAT-RBC/internal/expressions"
	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// DynamicMiner infers likely invariants from recorded HTTP exchanges.
// Exchanges are grouped by (normalized endpoint, method); within a group,
// response bodies are flattened into dotted property paths and properties
// that hold numbers or lists in every observed exchange yield invariants.
type DynamicMiner struct {
	jq *expressions.GoJQEngine
}

// NewDynamicMiner creates a DynamicMiner.
func NewDynamicMiner(jq *expressions.GoJQEngine) *DynamicMiner {
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}
	return &DynamicMiner{jq: jq}
}

// Mine discovers invariants from the recorded exchanges. Groups with zero
// exchanges contribute nothing; an empty log yields an empty result, never
// an error.
func (m *DynamicMiner) Mine(ctx context.Context, exchanges []schema.RecordedExchange) []schema.DynamicInvariant {
	if len(exchanges) == 0 {
		return nil
	}

	groups, order := groupExchanges(exchanges)

	var invariants []schema.DynamicInvariant
	for _, key := range order {
		invariants = append(invariants, m.mineGroup(ctx, groups[key])...)
	}
	return invariants
}

// groupExchanges keys exchanges by the first two path segments plus method,
// e.g. "/v1/charges:GET". Order preserves first appearance for determinism.
func groupExchanges(exchanges []schema.RecordedExchange) (map[string][]schema.RecordedExchange, []string) {
	groups := make(map[string][]schema.RecordedExchange)
	var order []string
	for _, ex := range exchanges {
		key := endpointKey(ex.URL) + ":" + string(ex.Method)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ex)
	}
	return groups, order
}

// endpointKey normalizes a request path to its first two segments.
func endpointKey(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}

func (m *DynamicMiner) mineGroup(ctx context.Context, exchanges []schema.RecordedExchange) []schema.DynamicInvariant {
	if len(exchanges) == 0 {
		return nil
	}

	properties := make(map[string]bool)
	for _, ex := range exchanges {
		flattenBody(ex.Body, "", properties)
	}

	sorted := make([]string, 0, len(properties))
	for p := range properties {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var invariants []schema.DynamicInvariant
	for _, prop := range sorted {
		if m.alwaysNonNegativeNumber(ctx, exchanges, prop) {
			path := strings.TrimSuffix(prop, "[]")
			invariants = append(invariants, schema.DynamicInvariant{
				ID:         fmt.Sprintf("dynamic-%s", uuid.New()),
				Variables:  []string{"response." + path},
				Expression: fmt.Sprintf("response.%s >= 0", path),
			})
		}
		if m.alwaysList(ctx, exchanges, prop) {
			path := strings.TrimSuffix(prop, "[]")
			invariants = append(invariants, schema.DynamicInvariant{
				ID:         fmt.Sprintf("dynamic-%s", uuid.New()),
				Variables:  []string{fmt.Sprintf("size(response.%s)", path)},
				Expression: fmt.Sprintf("size(response.%s) >= 0", path),
			})
		}
	}
	return invariants
}

// flattenBody walks a decoded JSON body and collects dotted property paths.
// Arrays contribute either a "[]" leaf (scalar elements) or recurse into the
// first element's structure; only structural shape is mined, not per-element
// values.
func flattenBody(body any, prefix string, out map[string]bool) {
	switch v := body.(type) {
	case map[string]any:
		for key, value := range v {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			switch value.(type) {
			case map[string]any, []any:
				flattenBody(value, path, out)
			default:
				out[path] = true
			}
		}
	case []any:
		if len(v) == 0 {
			return
		}
		switch v[0].(type) {
		case map[string]any, []any:
			flattenBody(v[0], prefix, out)
		default:
			out[prefix+"[]"] = true
		}
	}
}

// alwaysNonNegativeNumber reports whether the property holds a non-negative
// number in every exchange of the group. A property with a "[]" suffix is an
// array leaf, never numeric.
func (m *DynamicMiner) alwaysNonNegativeNumber(ctx context.Context, exchanges []schema.RecordedExchange, prop string) bool {
	if strings.HasSuffix(prop, "[]") {
		return false
	}
	for _, ex := range exchanges {
		val, ok := m.jq.LookupPath(ctx, ex.Body, prop)
		if !ok {
			return false
		}
		n, isNum := asNumber(val)
		if !isNum || n < 0 {
			return false
		}
	}
	return true
}

// alwaysList reports whether the property resolves to a list in every
// exchange. "[]" leaves are resolved by their parent path.
func (m *DynamicMiner) alwaysList(ctx context.Context, exchanges []schema.RecordedExchange, prop string) bool {
	path := strings.TrimSuffix(prop, "[]")
	if path == "" {
		return false
	}
	for _, ex := range exchanges {
		val, ok := m.jq.LookupPath(ctx, ex.Body, path)
		if !ok {
			return false
		}
		if _, isList := val.([]any); !isList {
			return false
		}
	}
	return true
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
