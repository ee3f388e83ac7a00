package models

import "time"

// Conversation stages written by the booking automation. The automation owns
// the flow; this service only reads the snapshot.
const (
	StageSelectingService  = "selecting_service"
	StageConfirmingAddress = "confirming_address"
	StageAskAddress        = "ask_address"
	StageChoosingSlot      = "choosing_slot"
	StageAwaitingConfirm   = "awaiting_confirm"
	StageCreatingBooking   = "creating_booking"
	StageCalendarInsert    = "calendar_insert"
	StageOfferingUpsells   = "offering_upsells"
	StageEmailCollection   = "email_collection"
	StageBooked            = "booked"
	StageCompleted         = "completed"
)

var knownStages = []string{
	StageSelectingService,
	StageConfirmingAddress,
	StageAskAddress,
	StageChoosingSlot,
	StageAwaitingConfirm,
	StageCreatingBooking,
	StageCalendarInsert,
	StageOfferingUpsells,
	StageEmailCollection,
	StageBooked,
	StageCompleted,
}

func KnownStages() []string {
	out := make([]string, len(knownStages))
	copy(out, knownStages)
	return out
}

func IsKnownStage(stage string) bool {
	for _, s := range knownStages {
		if s == stage {
			return true
		}
	}
	return false
}

// IsTerminalStage reports whether the automation flow has finished on its own.
func IsTerminalStage(stage string) bool {
	return stage == StageBooked || stage == StageCompleted
}

type Conversation struct {
	ID                int64      `json:"id"`
	Phone             *string    `json:"phone"`
	CustomerName      *string    `json:"customer_name"`
	CustomerID        *int64     `json:"customer_id"`
	Service           *string    `json:"service"`
	RequestedDateTime *time.Time `json:"requested_datetime"`
	Stage             *string    `json:"stage"`
	StageReason       *string    `json:"stage_reason"`
	NeedsHuman        bool       `json:"needs_human"`
	NeedsHumanReason  *string    `json:"needs_human_reason"`
	LastErrorCode     *string    `json:"last_error_code"`
	LastErrorMessage  *string    `json:"last_error_message"`
	LastErrorAt       *time.Time `json:"last_error_at"`
	BookingID         *int64     `json:"booking_id"`
	CalendarEventID   *string    `json:"calendar_event_id"`
	LastInboundAt     *time.Time `json:"last_inbound_at"`
	LastOutboundAt    *time.Time `json:"last_outbound_at"`
	LastMessageTime   *time.Time `json:"last_message_time"`
}

const (
	SenderCustomer = "customer"
	SenderBusiness = "business"
)

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// SMSBookingState holds the in-flight booking candidate (service, address,
// slot) the automation has collected before a booking is finalized.
type SMSBookingState struct {
	ConversationID   int64      `json:"conversation_id"`
	CandidateService *string    `json:"candidate_service"`
	CandidateAddress *string    `json:"candidate_address"`
	CandidateSlot    *time.Time `json:"candidate_slot"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Customer struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
}
