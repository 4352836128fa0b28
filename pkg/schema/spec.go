package schema

// HTTPMethod is an HTTP request method as declared by the specification.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodPatch   HTTPMethod = "PATCH"
	MethodDelete  HTTPMethod = "DELETE"
	MethodHead    HTTPMethod = "HEAD"
	MethodOptions HTTPMethod = "OPTIONS"
)

// ParameterLocation is where an operation parameter is transported.
type ParameterLocation string

const (
	InQuery  ParameterLocation = "query"
	InPath   ParameterLocation = "path"
	InHeader ParameterLocation = "header"
	InCookie ParameterLocation = "cookie"
	InBody   ParameterLocation = "body"
)

// Parameter is a single input accepted by an operation.
type Parameter struct {
	Name        string            `json:"name"`
	In          ParameterLocation `json:"in"`
	Required    bool              `json:"required"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
}

// Response is one documented response of an operation.
// SchemaRef points into the component schema map, e.g. "#/components/schemas/Flight".
type Response struct {
	StatusCode  int    `json:"status_code"`
	SchemaRef   string `json:"schema_ref,omitempty"`
	Description string `json:"description,omitempty"`
}

// Operation is one HTTP method + path combination exposed by the target API.
// Operations are immutable once parsed; the pipeline passes the owning
// ParsedSpec by reference.
type Operation struct {
	ID          string      `json:"operation_id"`
	Path        string      `json:"path"`
	Method      HTTPMethod  `json:"method"`
	Summary     string      `json:"summary,omitempty"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters"`
	Responses   []Response  `json:"responses"`
}

// SchemaProperty describes one property of a component schema.
type SchemaProperty struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Items       string `json:"items,omitempty"` // element type for arrays
	Description string `json:"description,omitempty"`
	Example     any    `json:"example,omitempty"`
}

// ComponentSchema is a named schema from the specification's components section.
type ComponentSchema struct {
	Name       string                    `json:"name"`
	Properties map[string]SchemaProperty `json:"properties"`
}

// ParsedSpec is the structured representation of a parsed API specification.
type ParsedSpec struct {
	Title      string                     `json:"title"`
	Version    string                     `json:"version"`
	Operations []Operation                `json:"operations"`
	Components map[string]ComponentSchema `json:"components"`
}

// OperationByID returns the operation with the given id, or nil.
func (s *ParsedSpec) OperationByID(id string) *Operation {
	for i := range s.Operations {
		if s.Operations[i].ID == id {
			return &s.Operations[i]
		}
	}
	return nil
}
