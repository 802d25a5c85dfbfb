package extraction

import (
	"fmt"
	"strconv"
	"strings"
)

// token is one element of a whitespace-tokenised expression formula:
// a numeric literal, a {path} reference, or a +/- operator.
type token struct {
	isOperator bool
	operator   byte // '+' or '-'
	literal    float64
	isLiteral  bool
	path       string
}

// tokenizeExpression validates and parses a formula of the form
// "{prompt_tokens} + {completion_tokens} - 1": whitespace-tokenized
// +/- over numeric literals and {path} references.
func tokenizeExpression(formula string) ([]token, error) {
	fields := strings.Fields(formula)
	if len(fields) == 0 {
		return nil, fmt.Errorf("extraction: empty expression formula")
	}

	tokens := make([]token, 0, len(fields))
	expectOperand := true
	for _, f := range fields {
		if f == "+" || f == "-" {
			if expectOperand {
				return nil, fmt.Errorf("extraction: expression %q has operator in operand position", formula)
			}
			tokens = append(tokens, token{isOperator: true, operator: f[0]})
			expectOperand = true
			continue
		}

		if !expectOperand {
			return nil, fmt.Errorf("extraction: expression %q is missing an operator between operands", formula)
		}

		if strings.HasPrefix(f, "{") && strings.HasSuffix(f, "}") {
			tokens = append(tokens, token{path: strings.Trim(f, "{}")})
		} else if v, err := strconv.ParseFloat(f, 64); err == nil {
			tokens = append(tokens, token{literal: v, isLiteral: true})
		} else {
			return nil, fmt.Errorf("extraction: expression %q has invalid operand %q", formula, f)
		}
		expectOperand = false
	}

	if expectOperand {
		return nil, fmt.Errorf("extraction: expression %q ends with an operator", formula)
	}
	return tokens, nil
}

// evaluateExpression evaluates formula against body. Any unresolved
// {path} reference fails the whole expression leniently (0, false),
// matching Evaluate's runtime tolerance.
func evaluateExpression(formula string, body map[string]any) (float64, bool) {
	tokens, err := tokenizeExpression(formula)
	if err != nil {
		return 0, false
	}

	result := 0.0
	sign := 1.0
	for _, t := range tokens {
		switch {
		case t.isOperator:
			if t.operator == '-' {
				sign = -1
			} else {
				sign = 1
			}
		case t.isLiteral:
			result += sign * t.literal
		default:
			v, ok := lookupNumber(body, t.path)
			if !ok {
				return 0, false
			}
			result += sign * v
		}
	}
	return result, true
}
