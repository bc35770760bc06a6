package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	Timezone          string
	DailyStart        string
	AcceptFrom        string
	AcceptUntil       string
	EnforceAcceptance bool
	RequireToken      bool
	ResetPassword     string

	PromoteDelay  time.Duration
	PurgeCron     string
	AdvanceCron   string
	SSEKeepAlive  time.Duration
	FrontendBase  string
	LogLevel      string
	PubNub        PubNubConfig
	PubNubChannel string
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:      ":8081",
		RedisAddr:     "localhost:6379",
		KeyPrefix:     DefaultKeyPrefix,
		Timezone:      "Asia/Tokyo",
		DailyStart:    "12:15",
		AcceptFrom:    "08:30",
		AcceptUntil:   "12:30",
		RequireToken:  true,
		PromoteDelay:  time.Second,
		PurgeCron:     "0 0 * * *",
		AdvanceCron:   "* * * * *",
		SSEKeepAlive:  15 * time.Second,
		FrontendBase:  "http://localhost:5173",
		LogLevel:      "info",
		PubNubChannel: "microwave-queue",
	}
}

// LoadConfig reads the environment, after loading envFile when it exists.
// A missing env file is not an error.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	var err error

	cfg.HTTPAddr = envString("HTTP_ADDR", cfg.HTTPAddr)
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.KeyPrefix = envString("KEY_PREFIX", cfg.KeyPrefix)
	cfg.Timezone = envString("TIMEZONE", cfg.Timezone)
	cfg.DailyStart = envString("DAILY_START", cfg.DailyStart)
	cfg.AcceptFrom = envString("ACCEPT_FROM", cfg.AcceptFrom)
	cfg.AcceptUntil = envString("ACCEPT_UNTIL", cfg.AcceptUntil)
	cfg.ResetPassword = envString("RESET_PASSWORD", cfg.ResetPassword)
	cfg.PurgeCron = envString("PURGE_CRON", cfg.PurgeCron)
	cfg.AdvanceCron = envString("ADVANCE_CRON", cfg.AdvanceCron)
	cfg.FrontendBase = strings.TrimRight(envString("FRONTEND_BASE_URL", cfg.FrontendBase), "/")
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.PubNubChannel = envString("PN_CHANNEL", cfg.PubNubChannel)

	cfg.PubNub = PubNubConfig{
		PublishKey:   os.Getenv("PN_PUBLISH_KEY"),
		SubscribeKey: os.Getenv("PN_SUBSCRIBE_KEY"),
		SecretKey:    os.Getenv("PN_SECRET_KEY"),
		UUIDKey:      envString("PN_USER_ID", "microwave-queue-server"),
		UUIDSubKey:   envString("PN_SUB_USER_ID", "microwave-queue-display"),
	}

	if cfg.RedisDB, err = envInt("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}
	if cfg.EnforceAcceptance, err = envBool("ENFORCE_ACCEPTANCE", cfg.EnforceAcceptance); err != nil {
		return nil, err
	}
	if cfg.RequireToken, err = envBool("REQUIRE_TOKEN", cfg.RequireToken); err != nil {
		return nil, err
	}
	if cfg.PromoteDelay, err = envDuration("PROMOTE_DELAY", cfg.PromoteDelay); err != nil {
		return nil, err
	}
	if cfg.SSEKeepAlive, err = envDuration("SSE_KEEPALIVE", cfg.SSEKeepAlive); err != nil {
		return nil, err
	}

	if _, err := cfg.Schedule(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Schedule builds the daily rules from the configured clock strings.
func (c *Config) Schedule() (Schedule, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return Schedule{}, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	start, err := ParseClockTime(c.DailyStart)
	if err != nil {
		return Schedule{}, err
	}
	from, err := ParseClockTime(c.AcceptFrom)
	if err != nil {
		return Schedule{}, err
	}
	until, err := ParseClockTime(c.AcceptUntil)
	if err != nil {
		return Schedule{}, err
	}
	if until.minutes() < from.minutes() {
		return Schedule{}, fmt.Errorf("acceptance window %s-%s ends before it starts", from, until)
	}
	return Schedule{Location: loc, DailyStart: start, AcceptFrom: from, AcceptUntil: until}, nil
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
