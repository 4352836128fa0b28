package schema

// ODGEdge is a directed "must-precede" relation between two operations.
// Multiple edges between the same pair are permitted when reasons differ.
type ODGEdge struct {
	Src    string `json:"src_operation_id"`
	Dst    string `json:"dst_operation_id"`
	Reason string `json:"reason"`
}

// OperationDependencyGraph is the ODG: nodes are operation ids, edges encode
// likely execution-order dependencies. The graph may be cyclic.
type OperationDependencyGraph struct {
	Nodes []string  `json:"nodes"`
	Edges []ODGEdge `json:"edges"`
}

// HasNode reports whether the given operation id is part of the graph.
func (g *OperationDependencyGraph) HasNode(id string) bool {
	for _, n := range g.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

// OperationSchemaDep records that an operation's response resolves to a
// component schema. ParamToField maps operation parameters to schema fields;
// the heuristic builder leaves it empty and only the optional inference hook
// populates it.
type OperationSchemaDep struct {
	OperationID  string            `json:"operation_id"`
	SchemaName   string            `json:"schema_name"`
	ParamToField map[string]string `json:"param_to_field"`
}

// SchemaSchemaDep records a parent schema embedding or referencing a child schema.
type SchemaSchemaDep struct {
	Parent string `json:"parent_schema"`
	Child  string `json:"child_schema"`
}

// OperationSequence is an ordered, non-repeating chain of operation ids
// intended to be executed as one test scenario. Length is always >= 2.
type OperationSequence struct {
	ID         string   `json:"sequence_id"`
	Operations []string `json:"operations"`
}

// SequenceCollection holds the sequences produced by one Sequencer run.
type SequenceCollection struct {
	Sequences []OperationSequence `json:"operation_sequences"`
}
