// Package status derives a triage status for an SMS booking conversation and
// owns the display metadata every rendering surface shares.
package status

import (
	"time"

	"github.com/bookline/inbox-backend/internal/models"
)

type Status string

const (
	Confirmed  Status = "CONFIRMED"
	NeedsHuman Status = "NEEDS_HUMAN"
	Error      Status = "ERROR"
	InProgress Status = "IN_PROGRESS"
	Abandoned  Status = "ABANDONED"
)

// Meta is the display pair for one status. Badges, filters, and tooltips all
// read from the same registry so labels never drift between views.
type Meta struct {
	Label      string `json:"label"`
	StyleClass string `json:"style_class"`
}

var metaByStatus = map[Status]Meta{
	Confirmed:  {Label: "Booked", StyleClass: "badge-success"},
	NeedsHuman: {Label: "Needs human", StyleClass: "badge-danger"},
	Error:      {Label: "Automation error", StyleClass: "badge-warning"},
	InProgress: {Label: "In progress", StyleClass: "badge-info"},
	Abandoned:  {Label: "No activity", StyleClass: "badge-muted"},
}

// All returns every status in triage order: the order filter dropdowns list
// them and the order the inbox summary reports them.
func All() []Status {
	return []Status{NeedsHuman, Error, InProgress, Confirmed, Abandoned}
}

func MetaFor(s Status) (Meta, bool) {
	m, ok := metaByStatus[s]
	return m, ok
}

func Parse(raw string) (Status, bool) {
	s := Status(raw)
	_, ok := metaByStatus[s]
	return s, ok
}

var stageLabels = map[string]string{
	models.StageSelectingService:  "Selecting service",
	models.StageConfirmingAddress: "Confirming address",
	models.StageAskAddress:        "Asking for address",
	models.StageChoosingSlot:      "Choosing a slot",
	models.StageAwaitingConfirm:   "Awaiting confirmation",
	models.StageCreatingBooking:   "Creating booking",
	models.StageCalendarInsert:    "Inserting calendar event",
	models.StageOfferingUpsells:   "Offering upsells",
	models.StageEmailCollection:   "Collecting email",
	models.StageBooked:            "Booked",
	models.StageCompleted:         "Completed",
}

func StageLabel(stage string) string {
	if l, ok := stageLabels[stage]; ok {
		return l
	}
	return stage
}

// DeriveAt classifies a conversation snapshot. The checks short-circuit in
// strict priority order: a created booking is a terminal success fact and
// outranks a stale needs-human flag; an explicit escalation outranks a recorded
// error; an error outranks routine progress. A conversation still in a
// non-terminal stage counts as in progress only while its last activity is
// within staleAfter of now (staleAfter <= 0 disables the staleness cutoff).
// The function is total: any combination of fields, including all-null, maps
// to exactly one status.
func DeriveAt(c models.Conversation, now time.Time, staleAfter time.Duration) Status {
	switch {
	case c.BookingID != nil:
		return Confirmed
	case c.NeedsHuman:
		return NeedsHuman
	case c.LastErrorCode != nil:
		return Error
	case c.Stage != nil && !models.IsTerminalStage(*c.Stage):
		if staleAfter > 0 && c.LastMessageTime != nil && now.Sub(*c.LastMessageTime) > staleAfter {
			return Abandoned
		}
		return InProgress
	default:
		return Abandoned
	}
}
