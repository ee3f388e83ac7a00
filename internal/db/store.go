package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline/inbox-backend/internal/models"
	"github.com/bookline/inbox-backend/internal/status"
)

// ErrBookingConflict is returned when a conversation already carries a
// different booking than the one being linked.
var ErrBookingConflict = errors.New("conversation already linked to another booking")

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ConversationFilters are AND-combined. Status filters on the derived booking
// status, so it is translated into the equivalent SQL predicate rather than
// compared against a stored column.
type ConversationFilters struct {
	Status     *status.Status
	Stage      string
	NeedsHuman *bool
	Phone      string
	BookingID  *int64
	DateFrom   *time.Time
	DateTo     *time.Time
}

const conversationColumns = `id, phone, customer_name, customer_id, service, requested_datetime,
	stage, stage_reason, needs_human, needs_human_reason,
	last_error_code, last_error_message, last_error_at,
	booking_id, calendar_event_id,
	last_inbound_at, last_outbound_at, last_message_time`

// statusPredicate mirrors status.DeriveAt exactly: each clause re-states the
// short-circuit conditions of every higher-priority rule, so filtering in SQL
// and deriving in Go cannot disagree. cutoff is now-staleAfter; a zero cutoff
// disables the staleness split between IN_PROGRESS and ABANDONED.
func statusPredicate(st status.Status, args *[]any, cutoff time.Time) string {
	const notTerminal = `stage NOT IN ('booked', 'completed')`
	switch st {
	case status.Confirmed:
		return `booking_id IS NOT NULL`
	case status.NeedsHuman:
		return `booking_id IS NULL AND needs_human`
	case status.Error:
		return `booking_id IS NULL AND NOT needs_human AND last_error_code IS NOT NULL`
	case status.InProgress:
		pred := `booking_id IS NULL AND NOT needs_human AND last_error_code IS NULL AND stage IS NOT NULL AND ` + notTerminal
		if !cutoff.IsZero() {
			*args = append(*args, cutoff)
			pred += fmt.Sprintf(` AND (last_message_time IS NULL OR last_message_time >= $%d)`, len(*args))
		}
		return pred
	case status.Abandoned:
		tail := `(stage IS NULL OR stage IN ('booked', 'completed'))`
		if !cutoff.IsZero() {
			*args = append(*args, cutoff)
			tail = fmt.Sprintf(`(stage IS NULL OR stage IN ('booked', 'completed') OR last_message_time < $%d)`, len(*args))
		}
		return `booking_id IS NULL AND NOT needs_human AND last_error_code IS NULL AND ` + tail
	default:
		// unknown values are rejected during filter validation
		return `FALSE`
	}
}

func buildConversationWhere(f ConversationFilters, cutoff time.Time) (string, []any) {
	var args []any
	var wheres []string

	if f.Status != nil {
		wheres = append(wheres, "("+statusPredicate(*f.Status, &args, cutoff)+")")
	}
	if f.Stage != "" {
		args = append(args, f.Stage)
		wheres = append(wheres, fmt.Sprintf("stage = $%d", len(args)))
	}
	if f.NeedsHuman != nil {
		args = append(args, *f.NeedsHuman)
		wheres = append(wheres, fmt.Sprintf("needs_human = $%d", len(args)))
	}
	if f.Phone != "" {
		args = append(args, "%"+f.Phone+"%")
		wheres = append(wheres, fmt.Sprintf("phone ILIKE $%d", len(args)))
	}
	if f.BookingID != nil {
		args = append(args, *f.BookingID)
		wheres = append(wheres, fmt.Sprintf("booking_id = $%d", len(args)))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		wheres = append(wheres, fmt.Sprintf("last_message_time >= $%d", len(args)))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		wheres = append(wheres, fmt.Sprintf("last_message_time <= $%d", len(args)))
	}

	if len(wheres) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(wheres, " AND "), args
}

// ListConversations returns one page of the filtered inbox plus the total
// count of the filtered set. Ordering is most recent activity first with the
// id as a deterministic tie-break, so pages never overlap or reorder between
// calls against unchanged data.
func (s *Store) ListConversations(ctx context.Context, f ConversationFilters, limit, offset int, cutoff time.Time) ([]models.Conversation, int64, error) {
	where, args := buildConversationWhere(f, cutoff)

	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations` + where +
		` ORDER BY last_message_time DESC NULLS LAST, id DESC` +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// CountByStatus computes the per-status totals of the whole inbox in one pass,
// using the same predicates the status filter uses.
func (s *Store) CountByStatus(ctx context.Context, cutoff time.Time) (map[status.Status]int64, error) {
	var args []any
	var cols []string
	statuses := status.All()
	for _, st := range statuses {
		cols = append(cols, fmt.Sprintf("COUNT(*) FILTER (WHERE %s)", statusPredicate(st, &args, cutoff)))
	}
	query := `SELECT ` + strings.Join(cols, ", ") + ` FROM conversations`

	counts := make([]int64, len(statuses))
	dest := make([]any, len(statuses))
	for i := range counts {
		dest[i] = &counts[i]
	}
	if err := s.Pool.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		return nil, err
	}

	out := make(map[status.Status]int64, len(statuses))
	for i, st := range statuses {
		out[st] = counts[i]
	}
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (models.Conversation, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, conversation_id, sender, body, sent_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetSMSBookingState returns nil when the automation has not collected any
// booking candidate yet.
func (s *Store) GetSMSBookingState(ctx context.Context, conversationID int64) (*models.SMSBookingState, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT conversation_id, candidate_service, candidate_address, candidate_slot, updated_at
		FROM sms_booking_state
		WHERE conversation_id = $1
	`, conversationID)

	var st models.SMSBookingState
	if err := row.Scan(&st.ConversationID, &st.CandidateService, &st.CandidateAddress, &st.CandidateSlot, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, name, phone, email, address FROM customers WHERE id = $1`, id)

	var c models.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// LinkBooking associates a manually created booking with a conversation.
// Re-linking the same booking id is a no-op success (including with a new
// calendar event id, which is the retry path after a failed calendar insert),
// while linking a different booking to an already-linked conversation returns
// ErrBookingConflict. pgx.ErrNoRows is returned when the conversation does not
// exist. The conditional UPDATE and its fallback run in one transaction with
// the row locked: a conversation that appears, or whose booking clears,
// between the two statements gets linked on the retry instead of being
// misreported as a conflict.
func (s *Store) LinkBooking(ctx context.Context, conversationID, bookingID int64, calendarEventID string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		link := func() (bool, error) {
			tag, err := tx.Exec(ctx, `
				UPDATE conversations
				SET booking_id = $2, calendar_event_id = $3
				WHERE id = $1 AND (booking_id IS NULL OR booking_id = $2)
			`, conversationID, bookingID, calendarEventID)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		}

		linked, err := link()
		if err != nil || linked {
			return err
		}

		var existing *int64
		if err := tx.QueryRow(ctx, `SELECT booking_id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&existing); err != nil {
			return err
		}
		if existing != nil && *existing != bookingID {
			return ErrBookingConflict
		}

		// the row is locked and carries no conflicting booking, so the retry
		// must match
		linked, err = link()
		if err != nil {
			return err
		}
		if !linked {
			return ErrBookingConflict
		}
		return nil
	})
}

func scanConversation(row pgx.Row) (models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(
		&c.ID, &c.Phone, &c.CustomerName, &c.CustomerID, &c.Service, &c.RequestedDateTime,
		&c.Stage, &c.StageReason, &c.NeedsHuman, &c.NeedsHumanReason,
		&c.LastErrorCode, &c.LastErrorMessage, &c.LastErrorAt,
		&c.BookingID, &c.CalendarEventID,
		&c.LastInboundAt, &c.LastOutboundAt, &c.LastMessageTime,
	)
	return c, err
}
