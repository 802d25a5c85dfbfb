package gatewayproxy

import (
	"fmt"

	"aperturegw/gateway/pkg/extraction"
	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/upstream"
)

// validateProviderType applies the strict configuration checks to a
// ProviderType as it enters the request plane at RESOLVE_UPSTREAM:
// auth-header template placeholders, token-mapping shapes and fallback
// depth, and model-extraction rules. The management plane that writes
// these rows is out of scope, so this load-time gate is what keeps a
// malformed row from being leniently forwarded — the runtime
// evaluators downstream stay tolerant of response-side surprises only.
func validateProviderType(pt *gatewaydb.ProviderType) error {
	if pt.AuthHeaderTemplate != "" {
		if err := upstream.ValidateAuthHeaderTemplate(pt.AuthHeaderTemplate); err != nil {
			return err
		}
	}
	for field, mapping := range pt.TokenMappings {
		if err := extraction.ValidateTokenMapping(mapping); err != nil {
			return fmt.Errorf("token mapping %q: %w", field, err)
		}
	}
	for i, rule := range pt.ModelExtractionRules {
		if err := extraction.ValidateModelExtractionRule(rule); err != nil {
			return fmt.Errorf("model extraction rule %d: %w", i, err)
		}
	}
	return nil
}
