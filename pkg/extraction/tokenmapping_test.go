package extraction

import (
	"testing"

	"aperturegw/gateway/pkg/gatewaydb"
)

func TestValidateTokenMapping(t *testing.T) {
	tests := []struct {
		name    string
		mapping gatewaydb.TokenMapping
		wantErr bool
	}{
		{name: "direct ok", mapping: gatewaydb.TokenMapping{Kind: "direct", Path: "usage.prompt_tokens"}},
		{name: "direct empty path", mapping: gatewaydb.TokenMapping{Kind: "direct"}, wantErr: true},
		{name: "expression ok", mapping: gatewaydb.TokenMapping{Kind: "expression", Formula: "{a} + {b}"}},
		{name: "expression empty", mapping: gatewaydb.TokenMapping{Kind: "expression"}, wantErr: true},
		{name: "default ok", mapping: gatewaydb.TokenMapping{Kind: "default", Value: "0"}},
		{name: "default empty", mapping: gatewaydb.TokenMapping{Kind: "default"}, wantErr: true},
		{
			name: "conditional ok",
			mapping: gatewaydb.TokenMapping{
				Kind: "conditional", ConditionLHS: "{usage.total}", ConditionOp: ">", ConditionRHS: "100",
				TrueValue: "usage.capped", FalseValue: "0",
			},
		},
		{
			name:    "conditional bad op",
			mapping: gatewaydb.TokenMapping{Kind: "conditional", ConditionLHS: "1", ConditionOp: "!=", ConditionRHS: "2", TrueValue: "a", FalseValue: "b"},
			wantErr: true,
		},
		{name: "fallback ok", mapping: gatewaydb.TokenMapping{Kind: "fallback", FallbackPaths: []string{"a", "b"}}},
		{name: "fallback empty", mapping: gatewaydb.TokenMapping{Kind: "fallback"}, wantErr: true},
		{name: "unknown kind", mapping: gatewaydb.TokenMapping{Kind: "bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTokenMapping(tt.mapping)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTokenMapping() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluate_Direct(t *testing.T) {
	body := map[string]any{"usage": map[string]any{"prompt_tokens": float64(42)}}
	v, ok := Evaluate(gatewaydb.TokenMapping{Kind: "direct", Path: "usage.prompt_tokens"}, body)
	if !ok || v != 42 {
		t.Errorf("Evaluate() = %v, %v, want 42, true", v, ok)
	}
}

func TestEvaluate_Expression(t *testing.T) {
	body := map[string]any{
		"usage": map[string]any{"prompt_tokens": float64(10), "completion_tokens": float64(5)},
	}
	m := gatewaydb.TokenMapping{Kind: "expression", Formula: "{usage.prompt_tokens} + {usage.completion_tokens} - 1"}
	v, ok := Evaluate(m, body)
	if !ok || v != 14 {
		t.Errorf("Evaluate() = %v, %v, want 14, true", v, ok)
	}
}

func TestEvaluate_Conditional(t *testing.T) {
	m := gatewaydb.TokenMapping{
		Kind: "conditional", ConditionLHS: "{usage.total}", ConditionOp: ">", ConditionRHS: "100",
		TrueValue: "usage.capped", FalseValue: "0",
	}

	over := map[string]any{"usage": map[string]any{"total": float64(150), "capped": float64(100)}}
	v, ok := Evaluate(m, over)
	if !ok || v != 100 {
		t.Errorf("Evaluate(over) = %v, %v, want 100, true", v, ok)
	}

	under := map[string]any{"usage": map[string]any{"total": float64(50)}}
	v, ok = Evaluate(m, under)
	if !ok || v != 0 {
		t.Errorf("Evaluate(under) = %v, %v, want 0, true", v, ok)
	}
}

func TestEvaluate_Fallback(t *testing.T) {
	m := gatewaydb.TokenMapping{Kind: "fallback", FallbackPaths: []string{"usage.missing", "usage.total_tokens"}}
	body := map[string]any{"usage": map[string]any{"total_tokens": float64(99)}}
	v, ok := Evaluate(m, body)
	if !ok || v != 99 {
		t.Errorf("Evaluate() = %v, %v, want 99, true", v, ok)
	}
}

// chainOfDepth builds a direct mapping with n chained fallbacks, every
// link pointing at a path absent from the body.
func chainOfDepth(n int) gatewaydb.TokenMapping {
	m := &gatewaydb.TokenMapping{Kind: "direct", Path: "missing.leaf"}
	for i := 0; i < n; i++ {
		m = &gatewaydb.TokenMapping{Kind: "direct", Path: "missing.link", Fallback: m}
	}
	return *m
}

func TestValidateTokenMapping_ChainDepthBound(t *testing.T) {
	if err := ValidateTokenMapping(chainOfDepth(MaxFallbackDepth)); err != nil {
		t.Errorf("ValidateTokenMapping(depth %d) = %v, want nil", MaxFallbackDepth, err)
	}
	if err := ValidateTokenMapping(chainOfDepth(MaxFallbackDepth + 1)); err == nil {
		t.Errorf("ValidateTokenMapping(depth %d) = nil, want error", MaxFallbackDepth+1)
	}
}

func TestEvaluate_ChainedFallbackMapping(t *testing.T) {
	m := gatewaydb.TokenMapping{
		Kind: "direct", Path: "usage.missing",
		Fallback: &gatewaydb.TokenMapping{Kind: "default", Value: "7"},
	}
	v, ok := Evaluate(m, map[string]any{})
	if !ok || v != 7 {
		t.Errorf("Evaluate() = %v, %v, want 7, true", v, ok)
	}
}

func TestEvaluate_MissingPathIsLenient(t *testing.T) {
	m := gatewaydb.TokenMapping{Kind: "direct", Path: "usage.nonexistent"}
	_, ok := Evaluate(m, map[string]any{})
	if ok {
		t.Error("Evaluate() expected false for missing path, got true")
	}
}

func TestModelExtractor_PriorityOrder(t *testing.T) {
	rules := []gatewaydb.ModelExtractionRule{
		{Kind: "query_param", ParamName: "model", Priority: 2},
		{Kind: "body_json", Path: "model", Priority: 1},
	}
	extractor := NewModelExtractor(rules, "")

	body := map[string]any{"model": "gpt-4o"}
	model, ok := extractor.Extract(body, "https://api.example.com/v1/chat?model=gpt-3.5")
	if !ok || model != "gpt-4o" {
		t.Errorf("Extract() = %q, %v, want gpt-4o, true (body_json has lower priority number)", model, ok)
	}
}

func TestModelExtractor_URLRegex(t *testing.T) {
	rules := []gatewaydb.ModelExtractionRule{
		{Kind: "url_regex", Pattern: `/models/([^/:]+):`, Priority: 1},
	}
	extractor := NewModelExtractor(rules, "")

	model, ok := extractor.Extract(map[string]any{}, "https://generativelanguage.googleapis.com/v1/models/gemini-pro:generateContent")
	if !ok || model != "gemini-pro" {
		t.Errorf("Extract() = %q, %v, want gemini-pro, true", model, ok)
	}
}

func TestModelExtractor_FallsBackToFallbackModel(t *testing.T) {
	extractor := NewModelExtractor(nil, "default-model")
	model, ok := extractor.Extract(map[string]any{}, "https://example.com")
	if !ok || model != "default-model" {
		t.Errorf("Extract() = %q, %v, want default-model, true", model, ok)
	}
}

func TestValidateModelExtractionRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    gatewaydb.ModelExtractionRule
		wantErr bool
	}{
		{name: "body_json ok", rule: gatewaydb.ModelExtractionRule{Kind: "body_json", Path: "model"}},
		{name: "body_json empty path", rule: gatewaydb.ModelExtractionRule{Kind: "body_json"}, wantErr: true},
		{name: "url_regex ok", rule: gatewaydb.ModelExtractionRule{Kind: "url_regex", Pattern: `models/(\w+)`}},
		{name: "url_regex no capture group", rule: gatewaydb.ModelExtractionRule{Kind: "url_regex", Pattern: `models/\w+`}, wantErr: true},
		{name: "query_param ok", rule: gatewaydb.ModelExtractionRule{Kind: "query_param", ParamName: "model"}},
		{name: "unknown kind", rule: gatewaydb.ModelExtractionRule{Kind: "bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModelExtractionRule(tt.rule)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModelExtractionRule() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
