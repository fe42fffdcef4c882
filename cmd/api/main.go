package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"lifebuilder-backend/internal/ai"
	"lifebuilder-backend/internal/chat"
	"lifebuilder-backend/internal/config"
	"lifebuilder-backend/internal/db"
	"lifebuilder-backend/internal/events"
	"lifebuilder-backend/internal/monuments"
	"lifebuilder-backend/internal/sessions"
	"lifebuilder-backend/internal/storage"
	"lifebuilder-backend/internal/tasks"
	"lifebuilder-backend/internal/xp"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	var (
		store storage.Storage
		sqlDB *sql.DB
	)
	switch cfg.Storage {
	case "memory":
		store = storage.NewMemoryStorage()
		logger.Info("using in-memory storage")
	default:
		sqlDB, err = db.Connect(cfg.ConnString())
		if err != nil {
			logger.Fatal("connect db", zap.Error(err))
		}
		defer sqlDB.Close()
		if err := db.Migrate(ctx, sqlDB); err != nil {
			logger.Fatal("migrate db", zap.Error(err))
		}
		store = storage.NewPostgresStorage(sqlDB)
		logger.Info("connected to postgres", zap.String("host", cfg.DBHost))
	}

	if err := store.SeedMonuments(ctx); err != nil {
		logger.Fatal("seed monuments", zap.Error(err))
	}

	gemini, err := ai.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.AITimeout)
	if err != nil {
		logger.Fatal("init gemini client", zap.Error(err))
	}

	recorder := events.NewRecorder(sqlDB, logger)
	engine := xp.New(store)
	orchestrator := chat.NewOrchestrator(store, gemini, gemini, engine, recorder, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /api/chat", chat.Handler(orchestrator, logger))

	mux.HandleFunc("POST /api/tasks", tasks.CreateHandler(store))
	mux.HandleFunc("POST /api/tasks/bulk", tasks.BulkCreateHandler(store))
	mux.HandleFunc("GET /api/tasks", tasks.ListHandler(store))
	mux.HandleFunc("PATCH /api/tasks/{id}", tasks.PatchHandler(store))
	mux.HandleFunc("DELETE /api/tasks/{id}", tasks.DeleteHandler(store))
	mux.HandleFunc("PATCH /api/tasks/{id}/complete", tasks.CompleteHandler(engine, recorder))
	mux.HandleFunc("PATCH /api/tasks/{id}/uncomplete", tasks.UncompleteHandler(engine, recorder))
	mux.HandleFunc("POST /api/tasks/{id}/breakdown", tasks.BreakdownHandler(store))

	mux.HandleFunc("POST /api/sessions", sessions.CreateHandler(store))
	mux.HandleFunc("GET /api/sessions/{sessionId}", sessions.GetHandler(store))
	mux.HandleFunc("PATCH /api/sessions/{sessionId}", sessions.SelectMonumentHandler(store))
	mux.HandleFunc("GET /api/sessions/{sessionId}/tasks", sessions.TasksHandler(store))

	mux.HandleFunc("GET /api/monuments", monuments.ListHandler(store))
	mux.HandleFunc("GET /api/monuments/{slug}", monuments.GetBySlugHandler(store))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: c.Handler(mux),
	}

	go func() {
		logger.Info("api server running", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
