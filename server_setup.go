// server_setup.go - HTTP routes and Asynq server setup
package main

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
)

func newRedisClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func newEcho(handlers *Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = newRequestValidator()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	setupRoutes(e, handlers)
	return e
}

func setupRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api/v1")

	// Register page
	api.POST("/reservations", handlers.CreateReservation)
	api.GET("/registration/link", handlers.GetRegistrationLink)

	// Display board
	api.GET("/reservations/current", handlers.GetCurrent)
	api.GET("/reservations/waiting", handlers.GetWaiting)
	api.GET("/reservations/waiting/count", handlers.GetWaitingCount)
	api.GET("/reservations/board", handlers.GetBoard)
	api.GET("/reservations/estimate", handlers.GetEstimate)
	api.GET("/reservations/events", handlers.StreamEvents)
	api.GET("/realtime/token", handlers.GetRealtimeToken)

	// Queue operations
	api.POST("/reservations/start", handlers.StartNext)
	api.POST("/reservations/current/complete", handlers.CompleteCurrent)
	api.POST("/reservations/clear-completed", handlers.ClearCompleted)
	api.POST("/reservations/reset", handlers.Reset)

	// Complete page
	api.GET("/reservations/:id", handlers.GetReservation)
	api.GET("/reservations/:id/position", handlers.GetPosition)
	api.POST("/reservations/:id/complete", handlers.CompleteReservation)
}

func newTaskMux(handlers *Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePromoteNext, handlers.HandlePromoteNext)
	mux.HandleFunc(TypeAutoAdvance, handlers.HandleAutoAdvance)
	mux.HandleFunc(TypeClearCompleted, handlers.HandleClearCompleted)
	mux.HandleFunc(TypeRelayEvent, handlers.HandleRelayEvent)
	return mux
}

// startAsynqServer runs the task workers and the periodic auto-advance and
// purge schedules. Both are stopped by the caller.
func startAsynqServer(redisOpt asynq.RedisClientOpt, handlers *Handlers, cfg *Config, loc *time.Location) (*asynq.Server, *asynq.Scheduler, error) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: loc})

	if _, err := scheduler.Register(cfg.AdvanceCron, asynq.NewTask(TypeAutoAdvance, nil), asynq.MaxRetry(0)); err != nil {
		return nil, nil, fmt.Errorf("register %s: %w", TypeAutoAdvance, err)
	}
	if _, err := scheduler.Register(cfg.PurgeCron, asynq.NewTask(TypeClearCompleted, nil), asynq.Queue("low")); err != nil {
		return nil, nil, fmt.Errorf("register %s: %w", TypeClearCompleted, err)
	}

	if err := srv.Start(newTaskMux(handlers)); err != nil {
		return nil, nil, fmt.Errorf("start asynq server: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return nil, nil, fmt.Errorf("start asynq scheduler: %w", err)
	}

	return srv, scheduler, nil
}
