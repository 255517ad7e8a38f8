package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/vaibh/video-segmenter/internal/broker"
	"github.com/vaibh/video-segmenter/internal/cleanup"
	"github.com/vaibh/video-segmenter/internal/config"
	"github.com/vaibh/video-segmenter/internal/engine"
	"github.com/vaibh/video-segmenter/internal/gateway"
	"github.com/vaibh/video-segmenter/internal/handlers"
	"github.com/vaibh/video-segmenter/internal/notify"
	"github.com/vaibh/video-segmenter/internal/resolver"
	"github.com/vaibh/video-segmenter/internal/storage"
	"github.com/vaibh/video-segmenter/internal/store"
	"github.com/vaibh/video-segmenter/internal/worker"
)

func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Custom logger setup
	logBuffer := &LogBuffer{
		lines: make([]string, 0, 1000),
	}
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	log.SetOutput(multiWriter)

	log.Println("Initializing components...")

	// Local storage (creates upload and output directories)
	localStorage, err := storage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Database
	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Segmentation engine
	eng := engine.New(cfg.Storage.OutputDir, cfg.FFmpegTimeout())

	// Redis broker
	b := broker.New(broker.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Queue:    cfg.Redis.Queue,
	})
	defer b.Close()

	// Notifications (optional)
	var dispatcher *notify.Dispatcher
	if cfg.Telegram.BotToken != "" {
		dispatcher = notify.NewDispatcher(notify.NewTelegramDeliverer(cfg.Telegram.BotToken))
		log.Println("Telegram notifications enabled")
	} else {
		dispatcher = notify.NewDispatcher(nil)
		log.Println("Telegram bot token not set - notifications disabled")
	}

	// Google Drive client (optional - may fail if credentials not set up)
	var driveClient *storage.DriveClient
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err = storage.NewDriveClient(
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Segments will only be saved locally")
			driveClient = nil
		} else {
			log.Println("Google Drive integration enabled")
		}
	} else {
		log.Println("Google Drive credentials not found - saving locally only")
	}

	jobs := store.New()

	var archiver worker.Archiver
	if driveClient != nil {
		archiver = driveClient
	}
	executor := worker.NewExecutor(jobs, eng, db, localStorage, archiver, dispatcher, cfg.Workers.FallbackMax)

	gw := gateway.New(jobs, b, eng, db, executor)

	res := resolver.New(cfg.Storage.UploadDir, 30*time.Minute)

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		[]string{cfg.Storage.UploadDir, cfg.Storage.OutputDir},
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Initialize handlers
	uploadHandler := handlers.NewUploadHandler(gw, localStorage, cfg.Limits.MaxFileSizeMB)
	urlHandler := handlers.NewURLHandler(gw, res)
	statusHandler := handlers.NewStatusHandler(gw, db)
	streamHandler := handlers.NewStreamHandler(gw)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
			"broker":  b.Probe(c.Context()),
		})
	})

	app.Post("/upload", uploadHandler.Handle)
	app.Post("/url", urlHandler.Handle)

	app.Get("/jobs", statusHandler.Jobs)
	app.Get("/jobs/:id", statusHandler.Job)
	app.Get("/jobs/:id/segments", statusHandler.Segments)
	app.Get("/assets/:id", statusHandler.Asset)

	// WebSocket route
	app.Get("/ws/jobs/:id", websocket.New(streamHandler.Handle))

	// Serve produced segments for download
	app.Static("/segments", cfg.Storage.OutputDir)

	// Get server logs
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST /upload            - Upload a video for segmentation")
	log.Println("   POST /url               - Segment a video from a URL")
	log.Println("   GET  /jobs              - List jobs")
	log.Println("   GET  /jobs/:id          - Job status")
	log.Println("   GET  /jobs/:id/segments - Persisted segment records")
	log.Println("   GET  /assets/:id        - Ingested source metadata")
	log.Println("   GET  /ws/jobs/:id       - Live status stream")
	log.Println("   GET  /logs              - View server logs")
	log.Println("   GET  /health            - Health check")
	log.Printf("Output directory: %s", filepath.Clean(cfg.Storage.OutputDir))

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))

	// Keep last 1000 lines
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
