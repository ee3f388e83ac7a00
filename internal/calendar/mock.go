package calendar

import "context"

// MockVerifier stands in when no calendar integration is configured. Every
// non-empty event id verifies unless explicitly listed as missing.
type MockVerifier struct {
	Missing map[string]bool
}

func (m MockVerifier) VerifyEvent(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	return !m.Missing[eventID], nil
}
