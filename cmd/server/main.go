package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/leadstream/internal/api"
	"github.com/ignite/leadstream/internal/config"
	"github.com/ignite/leadstream/internal/mapping"
	"github.com/ignite/leadstream/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Build the field dictionary up front so a bad variant table kills
	// the process at startup, not mid-upload.
	dict := mapping.DefaultDictionary()
	if cfg.Mapping.DictionaryPath != "" {
		dict, err = mapping.LoadDictionary(cfg.Mapping.DictionaryPath)
		if err != nil {
			log.Fatalf("Failed to load field dictionary: %v", err)
		}
		log.Printf("Loaded field dictionary from %s (%d fields)", cfg.Mapping.DictionaryPath, len(dict.Fields()))
	}

	// Redis (session snapshots and ingestion progress)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("Redis unavailable at %s: %v", cfg.Redis.Addr, err)
	}
	pingCancel()
	sessions := store.NewSessionStore(redisClient)

	// Postgres sink is optional; without it records are validated and
	// counted but not persisted.
	var sink *store.RecordSink
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("Database unavailable: %v", err)
		}
		sink = store.NewRecordSink(db)
		log.Println("Postgres record sink enabled")
	} else {
		log.Println("No DATABASE_URL set; records will not be persisted")
	}

	// S3 ingestion is optional
	var s3Client *s3.Client
	if cfg.S3.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
		log.Printf("S3 ingestion enabled (bucket %s)", cfg.S3.Bucket)
	}

	if err := os.MkdirAll(cfg.Ingest.UploadDir, 0755); err != nil {
		log.Fatalf("Failed to create upload dir %s: %v", cfg.Ingest.UploadDir, err)
	}

	handlers := api.NewHandlers(cfg, dict, sessions, sink, s3Client)
	router := api.SetupRoutes(handlers)

	// Janitor: evict abandoned upload sessions on the same horizon as
	// their Redis TTL, reclaiming the temp files and live state.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if n := handlers.Sweep(sweepCtx, store.SessionTTL); n > 0 {
					log.Printf("Evicted %d expired upload sessions", n)
				}
			}
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
	}

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	sweepCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	redisClient.Close()

	log.Println("Server stopped")
}
