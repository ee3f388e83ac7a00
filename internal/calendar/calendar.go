// Package calendar checks whether a calendar event actually exists in the
// booking/calendar subsystem. Linking a booking to a conversation is not
// atomic with the calendar insert happening elsewhere, so operators need a way
// to detect the "booking linked but calendar event missing" partial state and
// retry the link with a fresh event id.
package calendar

import "context"

type Verifier interface {
	VerifyEvent(ctx context.Context, eventID string) (bool, error)
}
