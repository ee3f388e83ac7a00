package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookline/inbox-backend/internal/db"
	"github.com/bookline/inbox-backend/internal/models"
	"github.com/bookline/inbox-backend/internal/status"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// ValidationError rejects malformed filter input before the store is queried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// RawInboxFilters carries the operator's filter input as received on the wire.
type RawInboxFilters struct {
	Status     string
	Stage      string
	NeedsHuman string
	Phone      string
	BookingID  string
	DateFrom   string
	DateTo     string
}

// ParseInboxFilters validates raw filter input and builds the store filter.
// Unknown statuses and stages, unparsable values, and an inverted date range
// are all rejected; they never silently match zero rows.
func ParseInboxFilters(raw RawInboxFilters) (db.ConversationFilters, error) {
	var f db.ConversationFilters

	if v := strings.TrimSpace(raw.Status); v != "" {
		st, ok := status.Parse(v)
		if !ok {
			return f, ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", v)}
		}
		f.Status = &st
	}
	if v := strings.TrimSpace(raw.Stage); v != "" {
		if !models.IsKnownStage(v) {
			return f, ValidationError{Field: "stage", Msg: fmt.Sprintf("unknown stage %q", v)}
		}
		f.Stage = v
	}
	if v := strings.TrimSpace(raw.NeedsHuman); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, ValidationError{Field: "needs_human", Msg: "must be a boolean"}
		}
		f.NeedsHuman = &b
	}
	if v := strings.TrimSpace(raw.Phone); v != "" {
		f.Phone = v
	}
	if v := strings.TrimSpace(raw.BookingID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, ValidationError{Field: "booking_id", Msg: "must be an integer"}
		}
		f.BookingID = &id
	}
	if v := strings.TrimSpace(raw.DateFrom); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, ValidationError{Field: "date_from", Msg: "must be RFC3339"}
		}
		f.DateFrom = &ts
	}
	if v := strings.TrimSpace(raw.DateTo); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, ValidationError{Field: "date_to", Msg: "must be RFC3339"}
		}
		f.DateTo = &ts
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return f, ValidationError{Field: "date_from", Msg: "must not be after date_to"}
	}
	return f, nil
}

// NormalizePage clamps paging input to a 1-indexed page and a bounded limit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func TotalPages(totalCount int64, limit int) int {
	if totalCount <= 0 {
		return 0
	}
	return int((totalCount + int64(limit) - 1) / int64(limit))
}

// InboxRow is one conversation annotated with its derived status and the
// display metadata the registry defines for it.
type InboxRow struct {
	models.Conversation
	Status     status.Status `json:"status"`
	StatusMeta status.Meta   `json:"status_meta"`
	StageLabel string        `json:"stage_label,omitempty"`
}

type InboxPage struct {
	Items      []InboxRow `json:"items"`
	TotalCount int64      `json:"total_count"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"total_pages"`
}

type ConversationDetail struct {
	Conversation    InboxRow                `json:"conversation"`
	Messages        []models.Message        `json:"messages"`
	SMSBookingState *models.SMSBookingState `json:"sms_booking_state"`
	Customer        *models.Customer        `json:"customer"`
}

type InboxService struct {
	Store      *db.Store
	StaleAfter time.Duration
	Logger     zerolog.Logger
}

func (s *InboxService) annotate(c models.Conversation, now time.Time) InboxRow {
	st := status.DeriveAt(c, now, s.StaleAfter)
	meta, _ := status.MetaFor(st)
	row := InboxRow{Conversation: c, Status: st, StatusMeta: meta}
	if c.Stage != nil {
		row.StageLabel = status.StageLabel(*c.Stage)
	}
	return row
}

func (s *InboxService) staleCutoff(now time.Time) time.Time {
	if s.StaleAfter <= 0 {
		return time.Time{}
	}
	return now.Add(-s.StaleAfter)
}

// QueryInbox serves one page of the filtered inbox. Store failures propagate
// to the caller so an unreachable database is never presented as an empty
// inbox.
func (s *InboxService) QueryInbox(ctx context.Context, raw RawInboxFilters, page, limit int) (InboxPage, error) {
	filters, err := ParseInboxFilters(raw)
	if err != nil {
		return InboxPage{}, err
	}
	page, limit = NormalizePage(page, limit)
	now := time.Now().UTC()

	rows, total, err := s.Store.ListConversations(ctx, filters, limit, (page-1)*limit, s.staleCutoff(now))
	if err != nil {
		return InboxPage{}, err
	}

	items := make([]InboxRow, 0, len(rows))
	for _, c := range rows {
		items = append(items, s.annotate(c, now))
	}
	return InboxPage{
		Items:      items,
		TotalCount: total,
		Page:       page,
		Limit:      limit,
		TotalPages: TotalPages(total, limit),
	}, nil
}

// Summary returns per-status totals for the triage header, in registry order.
type StatusCount struct {
	Status status.Status `json:"status"`
	Meta   status.Meta   `json:"meta"`
	Count  int64         `json:"count"`
}

func (s *InboxService) Summary(ctx context.Context) ([]StatusCount, error) {
	now := time.Now().UTC()
	counts, err := s.Store.CountByStatus(ctx, s.staleCutoff(now))
	if err != nil {
		return nil, err
	}
	out := make([]StatusCount, 0, len(counts))
	for _, st := range status.All() {
		meta, _ := status.MetaFor(st)
		out = append(out, StatusCount{Status: st, Meta: meta, Count: counts[st]})
	}
	return out, nil
}

// Detail assembles the full projection for one conversation: the annotated
// record, its message thread oldest first, any in-flight booking candidate,
// and the customer profile when the conversation has been matched to one.
// A missing conversation surfaces as pgx.ErrNoRows from the store; an existing
// conversation with zero messages is a valid result.
func (s *InboxService) Detail(ctx context.Context, conversationID int64) (ConversationDetail, error) {
	now := time.Now().UTC()

	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}

	msgs, err := s.Store.ListMessages(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	state, err := s.Store.GetSMSBookingState(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}

	var customer *models.Customer
	if conv.CustomerID != nil {
		customer, err = s.Store.GetCustomer(ctx, *conv.CustomerID)
		if err != nil {
			return ConversationDetail{}, err
		}
	}

	return ConversationDetail{
		Conversation:    s.annotate(conv, now),
		Messages:        msgs,
		SMSBookingState: state,
		Customer:        customer,
	}, nil
}

// LinkBooking records the association and returns the refreshed annotated
// record, which classifies as CONFIRMED from this point on.
func (s *InboxService) LinkBooking(ctx context.Context, conversationID, bookingID int64, calendarEventID string) (InboxRow, error) {
	if err := s.Store.LinkBooking(ctx, conversationID, bookingID, calendarEventID); err != nil {
		return InboxRow{}, err
	}
	s.Logger.Info().
		Int64("conversation_id", conversationID).
		Int64("booking_id", bookingID).
		Str("calendar_event_id", calendarEventID).
		Msg("booking linked")

	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return InboxRow{}, err
	}
	return s.annotate(conv, time.Now().UTC()), nil
}
