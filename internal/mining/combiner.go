package mining

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

var (
	responsePathRe = regexp.MustCompile(`response\.([a-zA-Z0-9_\.]+)`)
	relationalRe   = regexp.MustCompile(`([<>]=?)\s*(\d+)`)
)

// Combiner unifies static constraints and dynamic invariants into one list,
// deduplicating by referenced response property and keeping the stricter of
// any two overlapping bounds.
type Combiner struct{}

// NewCombiner creates a Combiner.
func NewCombiner() *Combiner {
	return &Combiner{}
}

// Combine seeds the unified set from every static constraint (1:1, each
// tagged with its own id as sole provenance), then folds in dynamic
// invariants: non-overlapping invariants become new unified constraints;
// overlapping ones contribute their id to the provenance trace and replace
// the expression only when strictly tighter. The result's expressions are
// always at least as strict as everything they subsumed. Well-formed inputs
// never produce an error.
func (c *Combiner) Combine(static []schema.StaticConstraint, invariants []schema.DynamicInvariant) []schema.UnifiedConstraint {
	unified := make([]schema.UnifiedConstraint, 0, len(static))
	for _, sc := range static {
		unified = append(unified, schema.UnifiedConstraint{
			ID:             fmt.Sprintf("unified-%s", uuid.New()),
			Expression:     sc.Expression,
			OriginatingIDs: []string{sc.ID},
		})
	}

	for _, inv := range invariants {
		matched := false
		for i := range unified {
			if !sameResponseProperty(unified[i].Expression, inv.Expression) {
				continue
			}
			matched = true
			unified[i].Expression = stricterExpression(unified[i].Expression, inv.Expression)
			unified[i].OriginatingIDs = appendID(unified[i].OriginatingIDs, inv.ID)
		}
		if !matched {
			unified = append(unified, schema.UnifiedConstraint{
				ID:             fmt.Sprintf("unified-%s", uuid.New()),
				Expression:     inv.Expression,
				OriginatingIDs: []string{inv.ID},
			})
		}
	}

	return unified
}

// sameResponseProperty reports whether the two expressions reference at
// least one common response.<dotted-path> property.
func sameResponseProperty(expr1, expr2 string) bool {
	props1 := responsePathRe.FindAllStringSubmatch(expr1, -1)
	props2 := responsePathRe.FindAllStringSubmatch(expr2, -1)
	for _, p1 := range props1 {
		for _, p2 := range props2 {
			if p1[1] == p2[1] {
				return true
			}
		}
	}
	return false
}

// stricterExpression selects the stricter of two single-relational-operator
// expressions. For > / >= the larger bound wins; for < / <= the smaller
// bound wins. Mismatched operator kinds, compound expressions, and anything
// that does not parse numerically keep the first expression; this is a
// defined default, not an error path.
func stricterExpression(expr1, expr2 string) string {
	rel1 := relationalRe.FindStringSubmatch(expr1)
	rel2 := relationalRe.FindStringSubmatch(expr2)
	if rel1 == nil || rel2 == nil {
		return expr1
	}

	val1, err1 := strconv.Atoi(rel1[2])
	val2, err2 := strconv.Atoi(rel2[2])
	if err1 != nil || err2 != nil {
		return expr1
	}

	switch {
	case strings.Contains(rel1[1], ">") && strings.Contains(rel2[1], ">"):
		if val2 > val1 {
			return expr2
		}
		return expr1
	case strings.Contains(rel1[1], "<") && strings.Contains(rel2[1], "<"):
		if val2 < val1 {
			return expr2
		}
		return expr1
	}
	return expr1
}

func appendID(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
