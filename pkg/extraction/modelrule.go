package extraction

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"

	"aperturegw/gateway/pkg/gatewaydb"
)

// ValidateModelExtractionRule performs the strict configuration
// checks for one rule, run by the pipeline on every ProviderType
// entering the request plane.
func ValidateModelExtractionRule(r gatewaydb.ModelExtractionRule) error {
	switch r.Kind {
	case "body_json":
		if r.Path == "" {
			return fmt.Errorf("extraction: body_json model rule requires a path")
		}
	case "url_regex":
		if r.Pattern == "" {
			return fmt.Errorf("extraction: url_regex model rule requires a pattern")
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("extraction: invalid url_regex pattern %q: %w", r.Pattern, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("extraction: url_regex pattern %q has no capture group", r.Pattern)
		}
	case "query_param":
		if r.ParamName == "" {
			return fmt.Errorf("extraction: query_param model rule requires a param name")
		}
	default:
		return fmt.Errorf("extraction: unknown model extraction rule kind %q", r.Kind)
	}
	return nil
}

// ModelExtractor evaluates an ordered list of ModelExtractionRules
// (ascending priority) with an optional fallback.
type ModelExtractor struct {
	rules         []gatewaydb.ModelExtractionRule
	fallbackModel string
}

// NewModelExtractor sorts rules by ascending Priority.
func NewModelExtractor(rules []gatewaydb.ModelExtractionRule, fallbackModel string) *ModelExtractor {
	sorted := make([]gatewaydb.ModelExtractionRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &ModelExtractor{rules: sorted, fallbackModel: fallbackModel}
}

// Extract tries each rule in priority order against the response body
// and request URL, falling back to fallbackModel if none match.
func (e *ModelExtractor) Extract(body map[string]any, requestURL string) (string, bool) {
	for _, r := range e.rules {
		switch r.Kind {
		case "body_json":
			if v, ok := lookupPath(body, r.Path); ok {
				if s, ok := v.(string); ok && s != "" {
					return s, true
				}
			}
		case "url_regex":
			if model, ok := extractURLRegex(r.Pattern, requestURL); ok {
				return model, true
			}
		case "query_param":
			if model, ok := extractQueryParam(r.ParamName, requestURL); ok {
				return model, true
			}
		}
	}
	if e.fallbackModel != "" {
		return e.fallbackModel, true
	}
	return "", false
}

func extractURLRegex(pattern, requestURL string) (string, bool) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false
	}
	matches := re.FindStringSubmatch(requestURL)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

func extractQueryParam(name, requestURL string) (string, bool) {
	u, err := url.Parse(requestURL)
	if err != nil {
		return "", false
	}
	v := u.Query().Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}
