package mining

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/HZeroxium/KAT-RBC/internal/expressions"
	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

// StaticMiner extracts candidate constraints from the specification's
// natural-language descriptions. The capability may be backed by an external
// semantic-inference service and may be unavailable; callers must treat an
// empty constraint list as valid, not as failure.
type StaticMiner interface {
	Mine(ctx context.Context, spec *schema.ParsedSpec) ([]schema.StaticConstraint, error)
}

// NoopStaticMiner is the null-object StaticMiner for configurations without
// a semantic-inference backend.
type NoopStaticMiner struct{}

func (NoopStaticMiner) Mine(context.Context, *schema.ParsedSpec) ([]schema.StaticConstraint, error) {
	return nil, nil
}

// Bound phrases recognized by the heuristic miner, each mapping a description
// pattern to a relational operator.
var boundPatterns = []struct {
	re *regexp.Regexp
	op string
}{
	{regexp.MustCompile(`(?i)greater than or equal to (\d+)`), ">="},
	{regexp.MustCompile(`(?i)greater than (\d+)`), ">"},
	{regexp.MustCompile(`(?i)less than or equal to (\d+)`), "<="},
	{regexp.MustCompile(`(?i)less than (\d+)`), "<"},
	{regexp.MustCompile(`(?i)at least (\d+)`), ">="},
	{regexp.MustCompile(`(?i)at most (\d+)`), "<="},
}

var nonNegativeRe = regexp.MustCompile(`(?i)non-negative|must not be negative|never negative`)

// HeuristicStaticMiner is the template fallback StaticMiner: it scans schema
// property and parameter descriptions for bound phrases and turns them into
// constraint expressions. Every candidate must compile in each of the given
// engines before it is emitted, so downstream stages only ever see well-formed
// expressions. Passing the CEL and expr engines together cross-checks every
// mined expression in both languages.
type HeuristicStaticMiner struct {
	compilers []expressions.Compiler
	logger    *slog.Logger
}

// NewHeuristicStaticMiner creates the fallback miner.
func NewHeuristicStaticMiner(compilers []expressions.Compiler, logger *slog.Logger) *HeuristicStaticMiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeuristicStaticMiner{compilers: compilers, logger: logger}
}

// Mine never fails: candidates that do not compile are dropped with a log line.
func (m *HeuristicStaticMiner) Mine(ctx context.Context, spec *schema.ParsedSpec) ([]schema.StaticConstraint, error) {
	var constraints []schema.StaticConstraint

	for _, op := range spec.Operations {
		// Parameter descriptions yield request-side constraints.
		for _, param := range op.Parameters {
			expr, detail, ok := boundExpression("input."+param.Name, param.Description)
			if !ok {
				continue
			}
			constraints = m.appendIfValid(ctx, constraints, schema.StaticConstraint{
				ID:         fmt.Sprintf("static-%s", uuid.New()),
				Source:     schema.SourceRequestResponse,
				Endpoint:   op.Path,
				Method:     op.Method,
				Expression: expr,
				Details:    detail,
			})
		}

		// Response schema property descriptions yield response-side constraints.
		for _, name := range responseSchemaNames(op, spec) {
			comp := spec.Components[name]
			props := make([]string, 0, len(comp.Properties))
			for p := range comp.Properties {
				props = append(props, p)
			}
			sort.Strings(props)

			for _, p := range props {
				expr, detail, ok := boundExpression("response."+p, comp.Properties[p].Description)
				if !ok {
					continue
				}
				constraints = m.appendIfValid(ctx, constraints, schema.StaticConstraint{
					ID:         fmt.Sprintf("static-%s", uuid.New()),
					Source:     schema.SourceResponseProperty,
					Endpoint:   op.Path,
					Method:     op.Method,
					Expression: expr,
					Details:    detail,
				})
			}
		}
	}

	return constraints, nil
}

func (m *HeuristicStaticMiner) appendIfValid(ctx context.Context, list []schema.StaticConstraint, c schema.StaticConstraint) []schema.StaticConstraint {
	for _, compiler := range m.compilers {
		if err := compiler.Compile(c.Expression); err != nil {
			m.logger.WarnContext(ctx, "dropping unparseable mined constraint",
				slog.String("engine", compiler.Name()),
				slog.String("expression", c.Expression),
				slog.String("error", err.Error()))
			return list
		}
	}
	return append(list, c)
}

// boundExpression translates a description into a relational expression on
// the given variable, or reports ok=false when no bound phrase is present.
func boundExpression(variable, description string) (expr, detail string, ok bool) {
	if description == "" {
		return "", "", false
	}
	for _, p := range boundPatterns {
		if match := p.re.FindStringSubmatch(description); match != nil {
			return fmt.Sprintf("%s %s %s", variable, p.op, match[1]), description, true
		}
	}
	if nonNegativeRe.MatchString(description) {
		return fmt.Sprintf("%s >= 0", variable), description, true
	}
	return "", "", false
}

// responseSchemaNames resolves an operation's response schema references to
// component names, deduplicated in reference order.
func responseSchemaNames(op schema.Operation, spec *schema.ParsedSpec) []string {
	var names []string
	seen := make(map[string]bool)
	for _, resp := range op.Responses {
		if !strings.HasPrefix(resp.SchemaRef, "#/components/schemas/") {
			continue
		}
		name := resp.SchemaRef[strings.LastIndex(resp.SchemaRef, "/")+1:]
		if seen[name] {
			continue
		}
		if _, ok := spec.Components[name]; !ok {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

var _ StaticMiner = (*HeuristicStaticMiner)(nil)
var _ StaticMiner = NoopStaticMiner{}
