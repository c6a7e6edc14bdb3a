package policyopa

import "github.com/open-policy-agent/opa/ast"

// Operator supplied policies may only call pure string and comparison
// builtins.
var allowedBuiltins = map[string]struct{}{
	"assign":            {},
	"concat":            {},
	"contains":          {},
	"count":             {},
	"endswith":          {},
	"eq":                {},
	"equal":             {},
	"gt":                {},
	"gte":               {},
	"indexof":           {},
	"internal.member_2": {},
	"lower":             {},
	"lt":                {},
	"lte":               {},
	"neq":               {},
	"regex.match":       {},
	"split":             {},
	"sprintf":           {},
	"startswith":        {},
	"substring":         {},
	"trim":              {},
	"trim_space":        {},
	"upper":             {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; ok {
			allowed = append(allowed, builtin)
		}
	}
	return allowed
}
