package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ClimaxHunter/internal/detector"
	"ClimaxHunter/internal/evaluator"
	"ClimaxHunter/internal/lifecycle"
	"ClimaxHunter/internal/logger"
	"ClimaxHunter/internal/radar"
	"ClimaxHunter/internal/scheduler"
	"ClimaxHunter/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Exchange  Exchange         `yaml:"exchange"`
	Radar     radar.Config     `yaml:"radar"`
	Detector  detector.Config  `yaml:"detector"`
	Gate      strategy.Config  `yaml:"gate"`
	Evaluator evaluator.Config `yaml:"evaluator"`
	Lifecycle lifecycle.Config `yaml:"lifecycle"`
	Schedule  scheduler.Config `yaml:"schedule"`
	Telegram  struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Polling  bool   `yaml:"polling" default:"true"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" default:"data/climax_hunter.db"`
	} `yaml:"database"`
	Lock    Lock          `yaml:"lock"`
	Metrics Metrics       `yaml:"metrics"`
	Log     logger.Config `yaml:"log"`
	Proxy   string        `yaml:"proxy"`
}

// Exchange configures the candle source client.
type Exchange struct {
	BaseURL         string        `yaml:"base_url" default:"https://fapi.binance.com" validate:"url"`
	Timeout         time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`
	CallDelay       time.Duration `yaml:"call_delay" default:"200ms" validate:"gte=0"`
	BreakerFailures uint32        `yaml:"breaker_failures" default:"5" validate:"gt=0"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" default:"60s" validate:"gt=0"`
}

// Lock selects the instance guard backend.
type Lock struct {
	Backend   string        `yaml:"backend" default:"file" validate:"oneof=file redis"`
	Path      string        `yaml:"path" default:"data/climax_hunter.pid"`
	RedisAddr string        `yaml:"redis_addr" default:"localhost:6379"`
	RedisKey  string        `yaml:"redis_key" default:"climaxhunter:instance"`
	TTL       time.Duration `yaml:"ttl" default:"30s" validate:"gt=0"`
}

// Metrics configures the ops HTTP server.
type Metrics struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Addr    string `yaml:"addr" default:":9102"`
}

// Load reads an optional .env file, applies struct defaults, overlays the YAML
// config and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.fillTables()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Lifecycle.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Lock.RedisAddr = v
		c.Lock.Backend = "redis"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SHADOW_REJECTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Lifecycle.ShadowRejected = b
		}
	}
}

// fillTables installs the tuned lookup tables when the YAML leaves them out.
func (c *Config) fillTables() {
	if len(c.Gate.SizeTiers) == 0 {
		c.Gate.SizeTiers = strategy.DefaultSizeTiers()
	}
	if c.Evaluator.Scenarios == nil {
		c.Evaluator.Scenarios = evaluator.DefaultScenarios()
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s %s", e.Namespace(), e.Tag(), e.Param()))
			}
			return fmt.Errorf("config validation: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config validation: %w", err)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when bot_token is set")
	}
	return nil
}
