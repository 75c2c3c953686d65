package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"campaign-engine/internal/accounts"
	"campaign-engine/internal/api"
	"campaign-engine/internal/campaign"
	"campaign-engine/internal/config"
	"campaign-engine/internal/engine"
	"campaign-engine/internal/instance"
	"campaign-engine/internal/listener"
	"campaign-engine/internal/sink"
	"campaign-engine/internal/storage"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	defer store.Close()

	// Action sinks
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	alerts := sink.NewLogAlertLog(0)
	sinks := engine.Sinks{
		Webhook: sink.NewHTTPWebhook(cfg.WebhookTimeout()),
		Tags:    sink.NewRedisTagStore(redisClient, cfg.Redis.TagPrefix),
		Fetcher: sink.NewRedisFetchQueue(redisClient, cfg.Redis.FetchKey),
		Alerts:  alerts,
	}

	// Registry warm load
	registry := campaign.NewRegistry()
	campaigns, err := store.LoadEnabled(rootCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("initial campaign load")
	}
	registry.Rebuild(campaigns)

	// Engine
	instances := instance.NewStore()
	provider := accounts.NewHTTPProvider(cfg.Accounts.BaseURL, cfg.AccountsTimeout())
	eng := engine.New(engine.Options{
		Shards:           cfg.Engine.Shards,
		TriggerQueueSize: cfg.Engine.TriggerQueueSize,
		LookupWorkers:    cfg.Engine.LookupWorkers,
		DispatchWorkers:  cfg.Engine.DispatchWorkers,
		LookupAttempts:   cfg.Engine.LookupAttempts,
		DispatchAttempts: cfg.Engine.DispatchAttempts,
		BackoffBase:      cfg.BackoffBase(),
	}, registry, instances, provider, nil, sinks)
	eng.Start(rootCtx)

	// HTTP
	h := api.NewHandler(store, registry, eng, instances, alerts)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Router(h),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background loops
	g, gCtx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		return eng.RunReaper(gCtx, cfg.ReaperInterval())
	})
	g.Go(func() error {
		listener.ListenAndRefresh(gCtx, store, registry, cfg.Listener.Channel, cfg.Backoff(), eng.Refresh)
		return nil
	})

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("background loop exited with error")
	}
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
