package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/cosmetics-store/internal/api"
	"github.com/safar/cosmetics-store/internal/auth"
	"github.com/safar/cosmetics-store/internal/cart"
	"github.com/safar/cosmetics-store/internal/config"
	"github.com/safar/cosmetics-store/internal/copywriter"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/messaging"
	"github.com/safar/cosmetics-store/internal/realtime"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Load config")
	}

	setupLogging(cfg.Environment)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Connect to database")
	}
	defer db.Close()

	ctx := context.Background()

	var broker realtime.Broker
	var revoker auth.Revoker
	if cfg.Redis.Addr != "" {
		rb, err := realtime.NewRedisBroker(ctx, cfg.Redis)
		if err != nil {
			logrus.WithError(err).Fatal("Connect to redis")
		}
		broker = rb
		revoker = auth.NewRedisRevoker(rb.Client())
		logrus.WithField("addr", cfg.Redis.Addr).Info("Using redis broker")
	} else {
		broker = realtime.NewMemoryBroker()
		revoker = auth.NewMemoryRevoker()
		logrus.Warn("REDIS_ADDR not set, live updates are limited to this instance")
	}
	defer broker.Close()

	var generator api.CopyGenerator
	if cfg.Copywriter.APIKey != "" {
		client, err := copywriter.New(cfg.Copywriter)
		if err != nil {
			logrus.WithError(err).Fatal("Initialize copywriter")
		}
		generator = client
	}

	server := api.NewServer(api.Deps{
		DB:         db,
		Auth:       auth.NewService(db, cfg.Auth, revoker),
		Carts:      cart.NewService(db, broker),
		Messages:   messaging.NewService(db, broker),
		Copy:       generator,
		Server:     cfg.Server,
		CopyPerMin: cfg.Copywriter.RatePerMin,
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     server.Router(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout is left to handlers; /live connections are long-lived
		// and manage their own write deadlines.
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}

func setupLogging(env string) {
	if env == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.DebugLevel)
}
