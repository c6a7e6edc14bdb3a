// Package policyopa decides upload admission with a rego policy.
package policyopa

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"mime"
	"os"
	"sort"
	"strings"

	"credanchor/internal/domain"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
)

const denyQuery = "data.credanchor.admission.deny"

//go:embed policy/admission.rego
var defaultPolicy string

type Engine struct {
	query        rego.PreparedEvalQuery
	allowedMimes []string
}

// NewEngine compiles the policy at policyPath, or the built-in policy when
// policyPath is empty.
func NewEngine(ctx context.Context, policyPath string, allowedMimes []string) (*Engine, error) {
	source := defaultPolicy
	name := "admission.rego"
	if policyPath != "" {
		b, err := os.ReadFile(policyPath)
		if err != nil {
			return nil, fmt.Errorf("read policy: %w", err)
		}
		source = string(b)
		name = policyPath
	}

	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	prepared, err := rego.New(
		rego.Query(denyQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Module(name, source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}

	normalized := make([]string, 0, len(allowedMimes))
	for _, m := range allowedMimes {
		normalized = append(normalized, normalizeMime(m))
	}
	return &Engine{query: prepared, allowedMimes: normalized}, nil
}

func (e *Engine) Evaluate(ctx context.Context, in domain.AdmissionInput) (domain.AdmissionDecision, error) {
	if e == nil {
		return domain.AdmissionDecision{}, errors.New("policy engine is nil")
	}
	input := map[string]any{
		"fileName":         in.FileName,
		"mimeType":         normalizeMime(in.MimeType),
		"size":             in.Size,
		"kind":             string(in.Kind),
		"source":           in.Source,
		"allowedMimeTypes": e.allowedMimes,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	reasons, err := decodeReasons(results)
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	return domain.AdmissionDecision{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}

func decodeReasons(results rego.ResultSet) ([]string, error) {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}
	raw, ok := results[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected policy result %T", results[0].Expressions[0].Value)
	}
	reasons := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected deny reason %T", v)
		}
		reasons = append(reasons, s)
	}
	sort.Strings(reasons)
	return reasons, nil
}

func normalizeMime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(value); err == nil {
		return mediaType
	}
	return strings.ToLower(value)
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}
