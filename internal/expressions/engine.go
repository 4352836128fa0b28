package expressions

import "context"

// Engine evaluates a constraint expression against an environment.
// The data map exposes the constraint language's top-level variables:
// "response" (flattened response body) and "input" (request parameters).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Compiler reports whether an expression parses in an engine's language.
// Compiled programs land in the engine's cache, so a later Evaluate of the
// same expression pays no second compilation.
type Compiler interface {
	Name() string
	Compile(expression string) error
}
