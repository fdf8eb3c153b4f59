// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "document-worker-service/docs"
	"document-worker-service/internal/config"
	"document-worker-service/internal/repository/postgresql"
	"document-worker-service/internal/service"
	"document-worker-service/internal/storage"
	httptransport "document-worker-service/internal/transport/http"
)

// @title document-worker-service API
// @version 1.0
// @description Document ingestion and background processing service.
// @BasePath /
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	// Postgres
	db, err := postgresql.OpenDB(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("pg: %v", err)
	}
	defer db.Close()

	repo := postgresql.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("pg schema: %v", err)
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	// DI
	queue := service.NewRedisQueue(rdb, service.Keys{
		Queue:      cfg.QueueKey,
		Processing: cfg.ProcessingKey,
		Failed:     cfg.FailedKey,
		DeadLetter: cfg.DeadLetterKey,
	})

	files, err := storage.NewLocalStore(cfg.StorageDir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	docSvc := service.NewDocumentService(repo, files, queue)
	handler := httptransport.NewHandler(docSvc)

	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: httptransport.Routes(handler),
	}

	go func() {
		log.Printf("[http] listening on :%s", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	log.Println("api stopped")
}
