package auth

import (
	"fmt"

	"github.com/hashicorp/go-bexpr"

	"github.com/wordgrove/groveapi/internal/db/models"
)

// RoleRule is an operator-configured inference rule: when the expression
// matches a principal's attributes, the rule's role applies. Rules exist for
// bootstrap and demo accounts whose provider metadata carries no role claim;
// they are deliberately the lowest-priority resolution step.
type RoleRule struct {
	Role models.Role
	Expr string

	eval *bexpr.Evaluator
}

// CompileRoleRules parses rule expressions into evaluators. Expressions use
// go-bexpr syntax against the attribute set {email}, e.g.
// `email matches "@gauntlet\\.com$"`. Invalid expressions fail startup rather
// than silently never matching.
func CompileRoleRules(rules []RoleRule) ([]RoleRule, error) {
	compiled := make([]RoleRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Role.HasProfile() && rule.Role != models.RoleAdmin {
			return nil, fmt.Errorf("role rule references unknown role %q", rule.Role)
		}
		eval, err := bexpr.CreateEvaluator(rule.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile role rule %q: %w", rule.Expr, err)
		}
		rule.eval = eval
		compiled = append(compiled, rule)
	}
	return compiled, nil
}

// Match evaluates the rule against principal attributes. Evaluation errors
// (e.g. a rule referencing an absent attribute) count as no match.
func (r *RoleRule) Match(attrs map[string]string) bool {
	if r.eval == nil {
		return false
	}
	ok, err := r.eval.Evaluate(attrs)
	if err != nil {
		return false
	}
	return ok
}

// FirstMatch returns the role of the first matching rule, in configured order.
func FirstMatch(rules []RoleRule, email string) (models.Role, bool) {
	if email == "" {
		return "", false
	}
	attrs := map[string]string{"email": email}
	for i := range rules {
		if rules[i].Match(attrs) {
			return rules[i].Role, true
		}
	}
	return "", false
}
