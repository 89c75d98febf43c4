package main

import (
	"context"
	"log"
	"os"
	"time"

	"postflow/internal/api"
	"postflow/internal/auth"
	"postflow/internal/classifier"
	"postflow/internal/config"
	"postflow/internal/dialogue"
	"postflow/internal/generate"
	"postflow/internal/llm"
	"postflow/internal/redis"
	"postflow/internal/storage"
	"postflow/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("POSTFLOW_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("POSTFLOW_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	provider := os.Getenv("POSTFLOW_PROVIDER")
	if provider == "" {
		provider = "gemini"
	}
	model, err := llm.NewClient(context.Background(), cfg, provider)
	if err != nil {
		log.Fatalf("init %s model client: %v", provider, err)
	}

	store := storage.NewStore(db)
	pipeline := generate.NewPipeline(model, store)
	engine := dialogue.NewEngine(store, classifier.New(model), pipeline)

	dispatcher := worker.NewDispatcher(engine, worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: cfg.BasicConfig.WorkerIdleTimeout,
	})

	authService := auth.NewService(db, rdb, 24*time.Hour)
	handlers := api.NewHandler(store, authService, dispatcher, pipeline)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
