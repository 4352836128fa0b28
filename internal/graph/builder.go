package graph

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

const schemaRefPrefix = "#/components/schemas/"

// Inference is the optional semantic-inference capability. Implementations
// may propose additional ODG edges (e.g. backed by a language model); the
// heuristic pass never depends on it. Proposed edges are additive only.
type Inference interface {
	ProposeEdges(ctx context.Context, spec *schema.ParsedSpec,
		osDeps []schema.OperationSchemaDep, ssDeps []schema.SchemaSchemaDep) ([]schema.ODGEdge, error)
}

// NoopInference is the null-object Inference used when no semantic-inference
// backend is configured.
type NoopInference struct{}

func (NoopInference) ProposeEdges(context.Context, *schema.ParsedSpec,
	[]schema.OperationSchemaDep, []schema.SchemaSchemaDep) ([]schema.ODGEdge, error) {
	return nil, nil
}

// Builder constructs Operation Dependency Graphs from parsed specifications.
type Builder struct {
	inference Inference
	logger    *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithInference injects a semantic-inference backend.
func WithInference(inf Inference) BuilderOption {
	return func(b *Builder) {
		if inf != nil {
			b.inference = inf
		}
	}
}

// WithBuilderLogger sets the builder's logger.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder. Without options it runs the pure heuristic
// pass with no inference backend.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		inference: NoopInference{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces the ODG plus the operation→schema and schema→schema
// dependency tables. It never fails for a structurally valid parsed spec:
// malformed path segments are skipped and inference errors degrade to the
// heuristic edge set.
func (b *Builder) Build(ctx context.Context, spec *schema.ParsedSpec) (
	*schema.OperationDependencyGraph, []schema.OperationSchemaDep, []schema.SchemaSchemaDep) {

	nodes := make([]string, 0, len(spec.Operations))
	for _, op := range spec.Operations {
		nodes = append(nodes, op.ID)
	}

	edges := b.heuristicEdges(spec.Operations)
	osDeps := operationSchemaDeps(spec)
	ssDeps := schemaSchemaDeps(spec)

	if proposed, err := b.inference.ProposeEdges(ctx, spec, osDeps, ssDeps); err != nil {
		b.logger.WarnContext(ctx, "edge inference unavailable, keeping heuristic edges",
			slog.String("error", err.Error()))
	} else {
		graph := &schema.OperationDependencyGraph{Nodes: nodes}
		for _, e := range proposed {
			if !graph.HasNode(e.Src) || !graph.HasNode(e.Dst) {
				b.logger.WarnContext(ctx, "skipping inferred edge with unknown endpoint",
					slog.String("src", e.Src), slog.String("dst", e.Dst))
				continue
			}
			edges = append(edges, e)
		}
	}

	return &schema.OperationDependencyGraph{Nodes: nodes, Edges: edges}, osDeps, ssDeps
}

// heuristicEdges derives must-precede edges from resource grouping:
// operations sharing a first path segment (singularized) form a resource
// group; within a group every GET precedes every write, and every POST
// precedes every GET.
func (b *Builder) heuristicEdges(operations []schema.Operation) []schema.ODGEdge {
	byID := make(map[string]schema.Operation, len(operations))
	var resourceOrder []string
	resources := make(map[string][]string)

	for _, op := range operations {
		byID[op.ID] = op
		resource, ok := resourceName(op.Path)
		if !ok {
			continue
		}
		if _, seen := resources[resource]; !seen {
			resourceOrder = append(resourceOrder, resource)
		}
		resources[resource] = append(resources[resource], op.ID)
	}

	var edges []schema.ODGEdge
	for _, resource := range resourceOrder {
		var getOps, writeOps, postOps []string
		for _, id := range resources[resource] {
			switch byID[id].Method {
			case schema.MethodGet:
				getOps = append(getOps, id)
			case schema.MethodPost:
				writeOps = append(writeOps, id)
				postOps = append(postOps, id)
			case schema.MethodPut, schema.MethodPatch:
				writeOps = append(writeOps, id)
			}
		}

		for _, g := range getOps {
			for _, w := range writeOps {
				edges = append(edges, schema.ODGEdge{Src: g, Dst: w, Reason: "read before modify"})
			}
		}
		for _, p := range postOps {
			for _, g := range getOps {
				edges = append(edges, schema.ODGEdge{Src: p, Dst: g, Reason: "read after creation"})
			}
		}
	}
	return edges
}

// resourceName extracts the normalized resource from a path template.
// The first non-empty segment is singularized by stripping trailing "s".
// Paths without a usable segment report ok=false and are skipped.
func resourceName(path string) (string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", false
	}
	resource := strings.TrimRight(parts[1], "s")
	if resource == "" {
		return "", false
	}
	return resource, true
}

// operationSchemaDeps emits a dependency record for every operation response
// whose schema reference resolves to a known component schema. The
// param-to-field mapping starts empty; only the inference hook fills it.
func operationSchemaDeps(spec *schema.ParsedSpec) []schema.OperationSchemaDep {
	var deps []schema.OperationSchemaDep
	for _, op := range spec.Operations {
		for _, resp := range op.Responses {
			if !strings.HasPrefix(resp.SchemaRef, schemaRefPrefix) {
				continue
			}
			name := resp.SchemaRef[strings.LastIndex(resp.SchemaRef, "/")+1:]
			if _, ok := spec.Components[name]; !ok {
				continue
			}
			deps = append(deps, schema.OperationSchemaDep{
				OperationID:  op.ID,
				SchemaName:   name,
				ParamToField: map[string]string{},
			})
		}
	}
	return deps
}

// schemaSchemaDeps emits a parent→child dependency for every schema property
// whose declared type, or array item type, names another component schema.
func schemaSchemaDeps(spec *schema.ParsedSpec) []schema.SchemaSchemaDep {
	names := make([]string, 0, len(spec.Components))
	for name := range spec.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	var deps []schema.SchemaSchemaDep
	for _, parent := range names {
		comp := spec.Components[parent]
		propNames := make([]string, 0, len(comp.Properties))
		for p := range comp.Properties {
			propNames = append(propNames, p)
		}
		sort.Strings(propNames)

		for _, p := range propNames {
			prop := comp.Properties[p]
			if _, ok := spec.Components[prop.Type]; ok {
				deps = append(deps, schema.SchemaSchemaDep{Parent: parent, Child: prop.Type})
			}
			if prop.Type == "array" && prop.Items != "" {
				if _, ok := spec.Components[prop.Items]; ok {
					deps = append(deps, schema.SchemaSchemaDep{Parent: parent, Child: prop.Items})
				}
			}
		}
	}
	return deps
}
