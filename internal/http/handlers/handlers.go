package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/bookline/inbox-backend/internal/calendar"
	"github.com/bookline/inbox-backend/internal/db"
	"github.com/bookline/inbox-backend/internal/http/middleware"
	"github.com/bookline/inbox-backend/internal/models"
	"github.com/bookline/inbox-backend/internal/service"
	"github.com/bookline/inbox-backend/internal/status"
	"github.com/bookline/inbox-backend/internal/utils"
)

type Handler struct {
	Store     *db.Store
	Inbox     *service.InboxService
	Calendar  calendar.Verifier
	Validator *validator.Validate
	Logger    zerolog.Logger
	AdminKey  string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List inbox conversations
// @Description Filtered, paginated SMS booking conversations annotated with their derived status
// @Tags inbox
// @Produce json
// @Param status query string false "Derived booking status"
// @Param stage query string false "Automation stage"
// @Param needs_human query bool false "Escalation flag"
// @Param phone query string false "Phone substring"
// @Param booking_id query int false "Exact booking id"
// @Param date_from query string false "RFC3339 lower bound on last activity"
// @Param date_to query string false "RFC3339 upper bound on last activity"
// @Param page query int false "1-indexed page"
// @Param limit query int false "Page size (default 25)"
// @Success 200 {object} service.InboxPage
// @Failure 400 {object} map[string]any
// @Router /api/inbox [get]
func (h *Handler) InboxList(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultPageSize)))

	raw := service.RawInboxFilters{
		Status:     c.Query("status"),
		Stage:      c.Query("stage"),
		NeedsHuman: c.Query("needs_human"),
		Phone:      c.Query("phone"),
		BookingID:  c.Query("booking_id"),
		DateFrom:   c.Query("date_from"),
		DateTo:     c.Query("date_to"),
	}

	result, err := h.Inbox.QueryInbox(c.Request.Context(), raw, page, limit)
	if err != nil {
		var verr service.ValidationError
		if errors.As(err, &verr) {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid filter", verr.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to query inbox", err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Status registry
// @Description Statuses in dropdown order plus stage labels, for filter UIs
// @Tags inbox
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/inbox/statuses [get]
func (h *Handler) InboxStatuses(c *gin.Context) {
	type entry struct {
		Value status.Status `json:"value"`
		status.Meta
	}
	statuses := make([]entry, 0, len(status.All()))
	for _, s := range status.All() {
		meta, _ := status.MetaFor(s)
		statuses = append(statuses, entry{Value: s, Meta: meta})
	}

	stages := make([]gin.H, 0, len(models.KnownStages()))
	for _, s := range models.KnownStages() {
		stages = append(stages, gin.H{
			"value":    s,
			"label":    status.StageLabel(s),
			"terminal": models.IsTerminalStage(s),
		})
	}
	c.JSON(http.StatusOK, gin.H{"statuses": statuses, "stages": stages})
}

// @Summary Inbox summary counts
// @Tags inbox
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/inbox/summary [get]
func (h *Handler) InboxSummary(c *gin.Context) {
	counts, err := h.Inbox.Summary(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to count inbox", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// @Summary Conversation detail
// @Description Conversation record, ordered message thread, in-flight booking state, and customer profile
// @Tags conversations
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} service.ConversationDetail
// @Failure 404 {object} map[string]any
// @Router /api/conversations/{id} [get]
func (h *Handler) ConversationDetail(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	detail, err := h.Inbox.Detail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load conversation", err.Error())
		return
	}
	c.JSON(http.StatusOK, detail)
}

type LinkBookingRequest struct {
	BookingID       int64  `json:"booking_id" validate:"required,gt=0"`
	CalendarEventID string `json:"calendar_event_id" validate:"required"`
}

// @Summary Link a manually created booking
// @Description Associates a booking with a conversation; idempotent for the same booking id. Reports whether the calendar event could be verified so a failed calendar insert can be retried.
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path int true "Conversation ID"
// @Param payload body LinkBookingRequest true "Booking to link"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/conversations/{id}/link-booking [post]
func (h *Handler) LinkBooking(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req LinkBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	row, err := h.Inbox.LinkBooking(c.Request.Context(), id, req.BookingID, req.CalendarEventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
			return
		}
		if errors.Is(err, db.ErrBookingConflict) {
			writeError(c, http.StatusConflict, "CONFLICT", "Conversation already linked to another booking", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to link booking", err.Error())
		return
	}

	resp := gin.H{"conversation": row}
	if h.Calendar != nil {
		verified, verr := h.Calendar.VerifyEvent(c.Request.Context(), req.CalendarEventID)
		if verr != nil {
			h.Logger.Warn().Err(verr).Str("calendar_event_id", req.CalendarEventID).Msg("calendar verification failed")
			resp["calendar_checked"] = false
		} else {
			resp["calendar_checked"] = true
			resp["calendar_verified"] = verified
		}
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Export a conversation debug bundle
// @Description Verbatim dump of the detail projection for offline troubleshooting
// @Tags conversations
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/conversations/{id}/export [get]
func (h *Handler) ConversationExport(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	detail, err := h.Inbox.Detail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load conversation", err.Error())
		return
	}

	payload, err := json.Marshal(detail)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to encode bundle", err.Error())
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="conversation-%d.json"`, id))
	c.JSON(http.StatusOK, gin.H{
		"exported_at":     time.Now().UTC(),
		"request_id":      c.GetString(middleware.RequestIDHeader),
		"conversation_id": id,
		"fingerprint":     strconv.FormatUint(utils.Fingerprint64(payload), 16),
		"detail":          detail,
	})
}

func conversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Conversation id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
