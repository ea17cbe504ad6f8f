package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/thanhvo2104/admitq/config"
	httpDelivery "github.com/thanhvo2104/admitq/internal/delivery/http"
	"github.com/thanhvo2104/admitq/internal/delivery/kafka"
	"github.com/thanhvo2104/admitq/internal/infra/redis"
	"github.com/thanhvo2104/admitq/internal/lock"
	"github.com/thanhvo2104/admitq/internal/notify"
	repo "github.com/thanhvo2104/admitq/internal/repository/redis"
	"github.com/thanhvo2104/admitq/internal/scheduler"
	"github.com/thanhvo2104/admitq/internal/service"
	pkgKafka "github.com/thanhvo2104/admitq/pkg/kafka"
	pkgLog "github.com/thanhvo2104/admitq/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	redisCli, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer redis.Disconnect(redisCli)

	resourceRepo := repo.NewRedisResourceRepository(redisCli, l)
	entryRepo := repo.NewRedisEntryRepository(redisCli, l)
	indexRepo := repo.NewRedisIndexRepository(redisCli, l)
	tokenRepo := repo.NewRedisTokenRepository(redisCli, l)

	cs := lock.NewRedisCriticalSection(redisCli, l)
	hub := notify.NewHub(cfg.Engine.ChannelBufferSize, cfg.Engine.ChannelIdleTimeout, l)
	defer hub.Shutdown()

	// Kafka producer
	prod := kafka.NewNoopProducer()
	if cfg.Kafka.Enabled {
		kafkaSyncProd, err := pkgKafka.NewSyncProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.RetryMax,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		defer kafkaSyncProd.Close()

		prod = kafka.NewProducer(kafkaSyncProd, l)
	}

	// The scheduler fires back into the engine, so the callback closes over
	// a variable bound after construction.
	var engine service.AdmissionEngine
	sched := scheduler.NewTimerScheduler(func(cbCtx context.Context, entryID string) {
		engine.HandleExpiry(cbCtx, entryID)
	}, l)
	defer sched.Stop()

	engine = service.NewAdmissionEngine(cfg.Engine, resourceRepo, entryRepo, indexRepo, cs, sched, hub, prod, l)
	tokenSvc := service.NewTokenService(tokenRepo, cfg.Token, l)

	resetSvc := service.NewResetService(resourceRepo, indexRepo, cs, cfg.Engine, l)
	resetSvc.Start(ctx)
	defer resetSvc.Stop()

	// HTTP server
	router := mux.NewRouter()
	h := httpDelivery.NewHandler(engine, tokenSvc, l)
	h.Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		l.Infof(ctx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalf(ctx, "Failed to serve HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info(ctx, "Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Errorf(ctx, "HTTP server shutdown: %v", err)
	}

	cancel()

	l.Info(ctx, "Server exited")
}
