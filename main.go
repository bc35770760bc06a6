// main.go - Entry point
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	loadConfig := func() (*Config, error) {
		cfg, err := LoadConfig(envFile)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
		return cfg, nil
	}

	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServer(cfg)
	}

	rootCmd := &cobra.Command{
		Use:          "microwave-queue",
		Short:        "Reservation queue for a shared microwave",
		SilenceUsage: true,
		RunE:         serve,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load before reading configuration")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and background workers",
			RunE:  serve,
		},
		newTokenCmd(loadConfig),
		newResetCmd(loadConfig),
	)
	return rootCmd
}

func runServer(cfg *Config) error {
	schedule, err := cfg.Schedule()
	if err != nil {
		return err
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient := newRedisClient(cfg)
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redisClient.Ping(%v): %w", cfg.RedisAddr, err)
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	broadcaster := NewBroadcaster()
	notificationService := NewNotificationService(broadcaster)

	var pubNubService Pubnub
	if cfg.PubNub.Enabled() {
		pubNubService, err = NewPubnub(&cfg.PubNub)
		if err != nil {
			return err
		}
		notificationService.Register(NewRealtimeRelay(asynqClient))
	} else {
		slog.Info("PubNub keys not set, realtime relay disabled")
	}

	queueService := NewQueueService(redisClient, schedule,
		WithKeyPrefix(cfg.KeyPrefix),
		WithNotifier(notificationService),
		WithPromoter(NewTaskPromoter(asynqClient, cfg.PromoteDelay)),
	)
	handlers := NewHandlers(queueService, broadcaster, pubNubService, cfg)

	srv, scheduler, err := startAsynqServer(redisOpt, handlers, cfg, schedule.Location)
	if err != nil {
		return err
	}
	defer srv.Shutdown()
	defer scheduler.Shutdown()

	e := newEcho(handlers)

	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
