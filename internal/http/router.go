package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/bookline/inbox-backend/internal/calendar"
	"github.com/bookline/inbox-backend/internal/config"
	"github.com/bookline/inbox-backend/internal/db"
	"github.com/bookline/inbox-backend/internal/http/handlers"
	"github.com/bookline/inbox-backend/internal/http/middleware"
	"github.com/bookline/inbox-backend/internal/service"

	_ "github.com/bookline/inbox-backend/docs"
)

func Router(cfg config.Config, store *db.Store, verifier calendar.Verifier, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store: store,
		Inbox: &service.InboxService{
			Store:      store,
			StaleAfter: cfg.StaleAfter,
			Logger:     logger,
		},
		Calendar:  verifier,
		Validator: validator.New(),
		Logger:    logger,
		AdminKey:  cfg.AdminKey,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/inbox", h.InboxList)
		api.GET("/inbox/statuses", h.InboxStatuses)
		api.GET("/inbox/summary", h.InboxSummary)
		api.GET("/conversations/:id", h.ConversationDetail)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/conversations/:id/link-booking", h.LinkBooking)
		admin.GET("/conversations/:id/export", h.ConversationExport)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
