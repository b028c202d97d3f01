package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"ClimaxHunter/internal/collector"
	"ClimaxHunter/internal/config"
	"ClimaxHunter/internal/lifecycle"
	"ClimaxHunter/internal/lock"
	"ClimaxHunter/internal/logger"
	"ClimaxHunter/internal/recorder"
)

// app carries the loaded configuration between cobra hooks and commands.
type app struct {
	cfgPath string
	cfg     *config.Config
	logs    io.Closer
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	closer, err := logger.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	a.cfg, a.logs = cfg, closer
	return nil
}

func (a *app) close() {
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

func (a *app) store() *lifecycle.Store {
	return lifecycle.NewStore(a.cfg.Lifecycle)
}

// openRecorder falls back to the no-op recorder when SQLite is unavailable.
func (a *app) openRecorder() recorder.Recorder {
	if a.cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(a.cfg.Database.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

func (a *app) fetcher() *collector.Guarded {
	ex := a.cfg.Exchange
	binance := collector.NewBinanceFetcher(ex.BaseURL, a.cfg.Proxy, ex.Timeout)
	return collector.NewGuarded(binance, collector.GuardOptions{
		CallDelay:           ex.CallDelay,
		ConsecutiveFailures: ex.BreakerFailures,
		OpenTimeout:         ex.BreakerTimeout,
	})
}

// instanceLock returns the configured guard and a func that frees its
// resources after Release.
func (a *app) instanceLock(ctx context.Context) (lock.InstanceLock, func(), error) {
	lc := a.cfg.Lock
	switch lc.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: lc.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", lc.RedisAddr, err)
		}
		return lock.NewRedisLock(client, lc.RedisKey, lc.TTL), func() { client.Close() }, nil
	default:
		return lock.NewPIDLock(lc.Path), func() {}, nil
	}
}
