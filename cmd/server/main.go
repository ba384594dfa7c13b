// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	r "github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-engine/internal/config"
	"github.com/unclebandit/campaign-engine/internal/controller"
	"github.com/unclebandit/campaign-engine/internal/db"
	"github.com/unclebandit/campaign-engine/internal/events"
	"github.com/unclebandit/campaign-engine/internal/poller"
	"github.com/unclebandit/campaign-engine/internal/remote"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/service"
	"github.com/unclebandit/campaign-engine/internal/store"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	conn, err := db.Open(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	repo := &repository.CampaignRepository{DB: conn}
	if err := repo.EnsureSchema(); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	campaignStore := store.New(repo, logger)
	active, archived, err := repo.LoadCampaigns()
	if err != nil {
		logger.Fatal("failed to load campaigns", zap.Error(err))
	}
	campaignStore.Seed(active, archived)
	logger.Info("campaigns loaded", zap.Int("active", len(active)), zap.Int("archived", len(archived)))

	var rdb *r.Client
	if cfg.RedisAddr != "" {
		rdb = r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	var publisher events.Publisher = events.NewMemoryPublisher()
	if cfg.AMQPURL != "" {
		amqpConn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Warn("failed to connect to RabbitMQ, lifecycle events stay in memory", zap.Error(err))
		} else {
			defer amqpConn.Close()
			amqpPub, err := events.NewAMQPPublisher(amqpConn)
			if err != nil {
				logger.Warn("failed to declare events queue", zap.Error(err))
			} else {
				defer amqpPub.Close()
				publisher = amqpPub
			}
		}
	}

	client := remote.NewClient(cfg.BackendBaseURL, cfg.BackendAuthKey)
	sites := &remote.SitesCatalog{Client: client, RDB: rdb, TTL: cfg.SitesCacheTTL(), Logger: logger}

	campaignService := &service.CampaignService{
		Store:  campaignStore,
		Remote: client,
		Events: publisher,
		Logger: logger,
	}
	supervisor := poller.NewSupervisor(client, campaignService, cfg.PollInterval(), logger)
	campaignService.Pollers = supervisor

	campaignService.RecoverPollers()

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Sites:           sites,
	}

	router := chi.NewRouter()
	router.Group(campaignController.Routes)

	srv := &http.Server{Addr: cfg.APIAddr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server running", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	supervisor.Shutdown()
}
