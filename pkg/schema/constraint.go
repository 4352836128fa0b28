package schema

// ConstraintSource categorizes where a static constraint came from.
type ConstraintSource string

const (
	SourceRequestResponse  ConstraintSource = "request_response"
	SourceResponseProperty ConstraintSource = "response_property"
	SourceDynamic          ConstraintSource = "dynamic"
)

// StaticConstraint is a correctness rule derived from the specification's
// declared text and schemas. Expressions reference response.<path>,
// input.<name> and size(...).
type StaticConstraint struct {
	ID         string           `json:"id"`
	Source     ConstraintSource `json:"source"`
	Endpoint   string           `json:"endpoint"`
	Method     HTTPMethod       `json:"method"`
	Expression string           `json:"expression"`
	Details    string           `json:"details,omitempty"`
}

// DynamicInvariant is a correctness rule inferred from observed runtime
// response data, produced per endpoint+method group.
type DynamicInvariant struct {
	ID         string   `json:"id"`
	Variables  []string `json:"variables"`
	Expression string   `json:"expression"`
}

// UnifiedConstraint merges overlapping static and dynamic rules. The
// expression is always at least as strict as every constraint it subsumed;
// OriginatingIDs is the full provenance trace.
type UnifiedConstraint struct {
	ID             string   `json:"id"`
	Expression     string   `json:"expression"`
	OriginatingIDs []string `json:"originating_ids"`
}
