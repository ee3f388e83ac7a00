package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bookline/inbox-backend/internal/db"
	"github.com/bookline/inbox-backend/internal/service"
)

func newIntegrationHandler(t *testing.T) (*Handler, *gin.Engine) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := db.New(context.Background(), url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	t.Cleanup(store.Close)

	gin.SetMode(gin.TestMode)
	h := &Handler{
		Store:     store,
		Inbox:     &service.InboxService{Store: store, Logger: zerolog.Nop()},
		Validator: validator.New(),
		Logger:    zerolog.Nop(),
	}
	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.GET("/api/conversations/:id", h.ConversationDetail)
	return h, r
}

func TestHealthzIntegration(t *testing.T) {
	_, r := newIntegrationHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestConversationDetailNotFoundIntegration(t *testing.T) {
	h, r := newIntegrationHandler(t)
	if _, err := h.Store.Pool.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS conversations (
			id BIGINT PRIMARY KEY,
			phone TEXT, customer_name TEXT, customer_id BIGINT,
			service TEXT, requested_datetime TIMESTAMPTZ,
			stage TEXT, stage_reason TEXT,
			needs_human BOOLEAN NOT NULL DEFAULT FALSE, needs_human_reason TEXT,
			last_error_code TEXT, last_error_message TEXT, last_error_at TIMESTAMPTZ,
			booking_id BIGINT, calendar_event_id TEXT,
			last_inbound_at TIMESTAMPTZ, last_outbound_at TIMESTAMPTZ, last_message_time TIMESTAMPTZ
		)
	`); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/999999999", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown conversation, got %d: %s", w.Code, w.Body.String())
	}
}
