package config

import (
	"SafeRoad/database/postgres"
	defectHandler "SafeRoad/internal/api/defect/handler"
	defectRepository "SafeRoad/internal/api/defect/repository"
	defectService "SafeRoad/internal/api/defect/service"
	"SafeRoad/internal/entity"
	"SafeRoad/internal/middleware"
	"SafeRoad/pkg/broker"
	"SafeRoad/pkg/gemini"
	"SafeRoad/pkg/google"
	"SafeRoad/pkg/hub"
	"SafeRoad/pkg/s3"
	"SafeRoad/pkg/utils"
	websocketPkg "SafeRoad/pkg/websocket"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine         *fiber.App
	db             *sqlx.DB
	log            *logrus.Logger
	middleware     middleware.Middleware
	validator      *validator.Validate
	utils          utils.IUtils
	handlers       []handler
	googleProvider google.ItfGoogle
	detector       websocketPkg.IDetector
	geminiClient   gemini.IGemini
	s3Client       s3.ItfS3
	eventBroker    broker.IBroker
	defectHub      *hub.Hub[[]entity.DefectRecord]
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.defectHub == nil {
		server.defectHub = hub.New[[]entity.DefectRecord](server.log)
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase connects to Postgres and applies the document schema.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		s.db = db
		return nil
	}
}

func WithGoogleProvider(provider google.ItfGoogle) ServerOption {
	return func(s *Server) error {
		s.googleProvider = provider
		return nil
	}
}

func WithDetector(detector websocketPkg.IDetector) ServerOption {
	return func(s *Server) error {
		s.detector = detector
		return nil
	}
}

// WithHub sets the subscriber registry. HUB_MAX_QUEUE bounds every
// subscriber queue when set.
func WithHub() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before hub")
		}

		var opts []hub.Option
		if n, err := strconv.Atoi(os.Getenv("HUB_MAX_QUEUE")); err == nil && n > 0 {
			opts = append(opts, hub.WithMaxQueue(n))
		}

		s.defectHub = hub.New[[]entity.DefectRecord](s.log, opts...)
		return nil
	}
}

func WithBroker() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before broker")
		}

		b, err := broker.New(s.log)
		if err != nil {
			s.log.Errorf("Failed to initialize event broker: %v", err)
			return fmt.Errorf("failed to create event broker: %w", err)
		}
		s.eventBroker = b
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

// WithGeminiClient enables report summaries. It is skipped when
// GEMINI_API_KEY is not set.
func WithGeminiClient() ServerOption {
	return func(s *Server) error {
		if os.Getenv("GEMINI_API_KEY") == "" {
			if s.log != nil {
				s.log.Info("GEMINI_API_KEY not set, report summaries disabled")
			}
			return nil
		}

		client, err := gemini.NewGeminiClient()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to create Gemini client: %v", err)
			}
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		s.geminiClient = client
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	s.engine.Use(s.middleware.NewCORSMiddleware())
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	var opts []defectService.Option
	if s.geminiClient != nil {
		opts = append(opts, defectService.WithDescriber(s.geminiClient))
	}

	// Defect Domain
	defectRepo := defectRepository.New(s.db, s.log)
	defectServices := defectService.NewDefectService(
		s.log,
		defectRepo,
		s.googleProvider,
		s.detector,
		s.s3Client,
		s.defectHub,
		s.eventBroker,
		s.utils,
		defectService.ConfigFromEnv(),
		opts...,
	)
	defectHandlers := defectHandler.New(s.log, s.validator, s.middleware, defectServices, s.utils)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, defectHandlers)
}

func (s *Server) Run() error {
	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops accepting requests and releases every outbound client.
// Live subscribers are ended first so open event streams do not hold the
// engine until the timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.defectHub != nil {
		s.defectHub.Close()
	}
	err := s.engine.ShutdownWithTimeout(timeout)

	if s.detector != nil {
		s.detector.CloseConnections()
	}
	if s.eventBroker != nil {
		if cerr := s.eventBroker.Close(); cerr != nil {
			s.log.Warnf("Failed to close event broker: %v", cerr)
		}
	}
	if s.geminiClient != nil {
		s.geminiClient.Close()
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			s.log.Warnf("Failed to close database: %v", cerr)
		}
	}

	return err
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message":     "Server is Healthy!",
			"detector":    s.detector != nil && s.detector.IsConnected(),
			"subscribers": s.defectHub.Len(),
		})
	})
}
