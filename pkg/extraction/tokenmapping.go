// Package extraction evaluates the two small configuration languages
// attached to each ProviderType: token mapping (recovering usage
// counters from a response body) and model extraction (recovering the
// model name actually served). Both are tagged-variant configs rather
// than code, interpreted at request time.
package extraction

import (
	"fmt"
	"strconv"
	"strings"

	"aperturegw/gateway/pkg/gatewaydb"
)

// MaxFallbackDepth bounds recursive fallback mapping evaluation.
const MaxFallbackDepth = 8

// ValidateTokenMapping performs the strict configuration checks:
// reject empty paths/formulas, unknown kinds, malformed conditions,
// and fallback chains deeper than MaxFallbackDepth. The pipeline runs
// it on every ProviderType entering the request plane; Evaluate stays
// lenient about the response bodies those mappings are applied to.
func ValidateTokenMapping(m gatewaydb.TokenMapping) error {
	return validateTokenMapping(m, 0)
}

func validateTokenMapping(m gatewaydb.TokenMapping, depth int) error {
	if depth > MaxFallbackDepth {
		return fmt.Errorf("extraction: fallback depth exceeds %d", MaxFallbackDepth)
	}

	switch m.Kind {
	case "direct":
		if m.Path == "" {
			return fmt.Errorf("extraction: direct mapping requires a non-empty path")
		}
	case "expression":
		if strings.TrimSpace(m.Formula) == "" {
			return fmt.Errorf("extraction: expression mapping requires a non-empty formula")
		}
		if _, err := tokenizeExpression(m.Formula); err != nil {
			return err
		}
	case "default":
		if m.Value == "" {
			return fmt.Errorf("extraction: default mapping requires a non-empty value")
		}
	case "conditional":
		if m.ConditionLHS == "" || m.ConditionRHS == "" {
			return fmt.Errorf("extraction: conditional mapping requires lhs and rhs")
		}
		switch m.ConditionOp {
		case ">", "<", "==":
		default:
			return fmt.Errorf("extraction: conditional mapping has unknown operator %q", m.ConditionOp)
		}
		if m.TrueValue == "" || m.FalseValue == "" {
			return fmt.Errorf("extraction: conditional mapping requires true_value and false_value")
		}
	case "fallback":
		if len(m.FallbackPaths) == 0 {
			return fmt.Errorf("extraction: fallback mapping requires at least one path")
		}
	default:
		return fmt.Errorf("extraction: unknown token mapping kind %q", m.Kind)
	}

	if m.Fallback != nil {
		return validateTokenMapping(*m.Fallback, depth+1)
	}
	return nil
}

// Evaluate interprets m against body (a decoded JSON document),
// leniently: a malformed or missing path at runtime yields (0, false)
// rather than an error, since a response body failing to match a
// validated mapping is a provider-side surprise, not a reason to
// fail the request.
func Evaluate(m gatewaydb.TokenMapping, body map[string]any) (float64, bool) {
	return evaluate(m, body, 0)
}

func evaluate(m gatewaydb.TokenMapping, body map[string]any, depth int) (float64, bool) {
	if depth > MaxFallbackDepth {
		return 0, false
	}

	if v, ok := evaluateKind(m, body); ok {
		return v, true
	}
	if m.Fallback != nil {
		return evaluate(*m.Fallback, body, depth+1)
	}
	return 0, false
}

func evaluateKind(m gatewaydb.TokenMapping, body map[string]any) (float64, bool) {
	switch m.Kind {
	case "direct":
		return lookupNumber(body, m.Path)

	case "default":
		v, err := strconv.ParseFloat(m.Value, 64)
		if err != nil {
			return 0, false
		}
		return v, true

	case "expression":
		return evaluateExpression(m.Formula, body)

	case "conditional":
		return evaluateConditional(m, body)

	case "fallback":
		for _, path := range m.FallbackPaths {
			if v, ok := lookupNumber(body, path); ok {
				return v, true
			}
		}
		return 0, false

	default:
		return 0, false
	}
}

func evaluateConditional(m gatewaydb.TokenMapping, body map[string]any) (float64, bool) {
	lhs, ok := resolveOperand(m.ConditionLHS, body)
	if !ok {
		return 0, false
	}
	rhs, err := strconv.ParseFloat(m.ConditionRHS, 64)
	if err != nil {
		return 0, false
	}

	var taken bool
	switch m.ConditionOp {
	case ">":
		taken = lhs > rhs
	case "<":
		taken = lhs < rhs
	case "==":
		taken = lhs == rhs
	default:
		return 0, false
	}

	if taken {
		return lookupNumber(body, m.TrueValue)
	}
	v, err := strconv.ParseFloat(m.FalseValue, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// resolveOperand interprets a conditional's lhs as either a numeric
// literal or a {path}-style dot-path reference.
func resolveOperand(raw string, body map[string]any) (float64, bool) {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, true
	}
	return lookupNumber(body, strings.Trim(raw, "{}"))
}

func lookupNumber(body map[string]any, path string) (float64, bool) {
	v, ok := lookupPath(body, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func lookupPath(body map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var cur any = body
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
