package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vaibh/video-segmenter/internal/broker"
	"github.com/vaibh/video-segmenter/internal/config"
	"github.com/vaibh/video-segmenter/internal/engine"
	"github.com/vaibh/video-segmenter/internal/notify"
	"github.com/vaibh/video-segmenter/internal/storage"
	"github.com/vaibh/video-segmenter/internal/store"
	"github.com/vaibh/video-segmenter/internal/worker"
)

// The worker binary consumes queued segmentation jobs. It shares the
// Redis hash with the server, so status written here is visible to
// status queries on the HTTP side.
func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	localStorage, err := storage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	eng := engine.New(cfg.Storage.OutputDir, cfg.FFmpegTimeout())

	b := broker.New(broker.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Queue:    cfg.Redis.Queue,
	})
	defer b.Close()

	var dispatcher *notify.Dispatcher
	if cfg.Telegram.BotToken != "" {
		dispatcher = notify.NewDispatcher(notify.NewTelegramDeliverer(cfg.Telegram.BotToken))
		log.Println("Telegram notifications enabled")
	} else {
		dispatcher = notify.NewDispatcher(nil)
	}

	var driveClient *storage.DriveClient
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
		driveClient, err = storage.NewDriveClient(
			cfg.GoogleDrive.CredentialsFile,
			cfg.GoogleDrive.TokenFile,
			cfg.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			driveClient = nil
		} else {
			log.Println("Google Drive integration enabled")
		}
	}

	var archiver worker.Archiver
	if driveClient != nil {
		archiver = driveClient
	}

	jobs := store.New()
	executor := worker.NewExecutor(jobs, eng, db, localStorage, archiver, dispatcher, cfg.Workers.FallbackMax)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		cancel()
	}()

	log.Printf("Worker consuming queue %q on %s", cfg.Redis.Queue, cfg.Redis.Addr)
	executor.RunLoop(ctx, b, cfg.PollTimeout())
	log.Println("Worker stopped")
}
