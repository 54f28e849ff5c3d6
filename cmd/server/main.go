package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"rollcall-go/config"
	"rollcall-go/internal/api/handlers"
	"rollcall-go/internal/attendance"
	"rollcall-go/internal/cleanup"
	"rollcall-go/internal/database"
	"rollcall-go/internal/db/repository"
	"rollcall-go/internal/extract"
	"rollcall-go/internal/integrations/mqtt"
	"rollcall-go/internal/leave"
	"rollcall-go/internal/logger"
	"rollcall-go/internal/matcher"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	log.Info("Initializing database...")
	if err := database.Init(cfg.DB); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Info("Database initialization complete.")

	repo := repository.NewSQLiteRepository(database.DB)

	// Embedding backends are tried in configuration order.
	backends := make([]extract.Extractor, 0, len(cfg.Extractor.Backends))
	for _, b := range cfg.Extractor.Backends {
		backends = append(backends, extract.NewHTTPExtractor(b))
		log.Infof("Registered embedding backend %q at %s", b.Name, b.URL)
	}
	if len(backends) == 0 {
		log.Fatal("No embedding backends configured; at least one extractor.backends entry is required")
	}
	extractor := extract.NewChain(backends...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := extractor.Ping(ctx); err != nil {
		log.Warnf("No embedding backend reachable at startup: %v. Recognition will fail until one comes up.", err)
	}
	cancel()

	m := matcher.New(cfg.Matcher)
	enroll, recognize := m.Thresholds()
	log.Infof("Matcher thresholds: enroll %.1f, recognize %.1f", enroll, recognize)

	// MQTT publishing is optional; the engine takes a nil publisher when
	// it is disabled or the broker is down.
	var publisher attendance.EventPublisher
	if cfg.MQTT.Enabled {
		p := mqtt.NewPublisher(cfg.MQTT)
		if err := p.Start(); err != nil {
			log.Warnf("Failed to start MQTT publisher: %v. Continuing without MQTT.", err)
		} else {
			publisher = p
			defer p.Stop()
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	engine := attendance.NewEngine(repo, publisher)
	auditor := attendance.NewAuditor(repo)
	leaves := leave.NewService(repo)

	maintenance := cleanup.NewService(repo, auditor,
		time.Duration(cfg.Cleanup.IntervalHours)*time.Hour)
	maintenance.Start()
	defer maintenance.Stop()

	apiHandler := handlers.NewAPIHandler(cfg, repo, extractor, m, engine, auditor, leaves)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	apiHandler.RegisterRoutes(router.Group("/api"))
	router.Static("/uploads", cfg.Server.UploadDir)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("Starting server on %s", serverAddr)
	if err := router.Run(serverAddr); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
