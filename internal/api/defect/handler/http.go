package defectHandler

import (
	defectService "SafeRoad/internal/api/defect/service"
	"SafeRoad/internal/middleware"
	"SafeRoad/pkg/utils"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	analyzeTimeout = 5 * time.Minute
	reportTimeout  = 2 * time.Minute
	listTimeout    = 15 * time.Second

	heartbeatInterval = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

type DefectHandler struct {
	log           *logrus.Logger
	validator     *validator.Validate
	middleware    middleware.Middleware
	defectService defectService.IDefectService
	utils         utils.IUtils
	heartbeat     time.Duration
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds defectService.IDefectService,
	utils utils.IUtils,
) *DefectHandler {
	return &DefectHandler{
		log:           log,
		validator:     validator,
		middleware:    middleware,
		defectService: ds,
		utils:         utils,
		heartbeat:     heartbeatInterval,
	}
}

func (h *DefectHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Post("/analyze", h.middleware.NewRateLimiter, h.Analyze)
	srv.Post("/report", h.middleware.NewRateLimiter, h.middleware.NewIdentityMiddleware, h.Report)
	srv.Get("/reports", h.ListReports)

	srv.Get("/defects", h.ListDefects)
	srv.Get("/defects/stream", h.Stream)
	srv.Use("/defects/ws", wsMiddleware)
	srv.Get("/defects/ws", websocket.New(h.handleWebSocket))
}
