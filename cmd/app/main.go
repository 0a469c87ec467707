package main

import (
	"SafeRoad/internal/config"
	"SafeRoad/pkg/google"
	"SafeRoad/pkg/log"
	"SafeRoad/pkg/redis"
	websocketPkg "SafeRoad/pkg/websocket"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil {
		logger.Warnf("No .env file loaded: %v", err)
	}

	fiberApp := config.NewFiber(logger)
	validator := config.NewValidator()

	var cache redis.IRedis = redis.Noop{}
	if os.Getenv("REDIS_ADDRESS") != "" {
		cache = redis.New()
	}

	googleProvider, err := google.New(logger, google.WithCache(cache, 0))
	if err != nil {
		logger.Fatalf("Error creating imagery provider: %v", err)
	}

	detector, err := websocketPkg.NewDetectorClient(logger)
	if err != nil {
		logger.Fatalf("Error creating detector client: %v", err)
	}

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithDatabase(),
		config.WithGoogleProvider(googleProvider),
		config.WithDetector(detector),
		config.WithMiddleware(),
		config.WithS3Client(),
		config.WithBroker(),
		config.WithHub(),
		config.WithGeminiClient(),
		config.WithUtils(),
	)
	if err != nil {
		detector.CloseConnections()
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	if err := server.Shutdown(10 * time.Second); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
