package credentialpool

import "fmt"

// NoAvailableKeyError is returned when selection finds no eligible
// ProviderKey, carrying a structured reason.
type NoAvailableKeyError struct {
	ServiceAPIID string
	Reason       string
}

func (e *NoAvailableKeyError) Error() string {
	return fmt.Sprintf("credentialpool: no available key for service api %s: %s", e.ServiceAPIID, e.Reason)
}
