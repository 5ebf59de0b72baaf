package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the server needs at startup. Values come from
// defaults, then an optional JSON file, then BLACKBALL_* environment
// variables, later sources winning.
type Config struct {
	Addr            string        `json:"addr"`
	SecretKey       string        `json:"secret_key"`
	MaxPlayers      int           `json:"max_players"`
	StaleTimeout    time.Duration `json:"stale_timeout"`
	ReapInterval    time.Duration `json:"reap_interval"`
	EventBatchSize  int           `json:"event_batch_size"`
	InboundQueue    int           `json:"inbound_queue"`
	BroadcastBuffer int           `json:"broadcast_buffer"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		SecretKey:       "dev-only-insecure-key",
		MaxPlayers:      7,
		StaleTimeout:    5 * time.Minute,
		ReapInterval:    time.Minute,
		EventBatchSize:  5,
		InboundQueue:    64,
		BroadcastBuffer: 32,
		AllowedOrigins:  []string{"*"},
	}
}

// Load builds the effective configuration. path may be empty to skip the
// file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		var file fileConfig
		if err := json.Unmarshal(data, &file); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
		file.apply(&cfg)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with durations as strings ("5m") and every
// field optional.
type fileConfig struct {
	Addr            *string  `json:"addr"`
	SecretKey       *string  `json:"secret_key"`
	MaxPlayers      *int     `json:"max_players"`
	StaleTimeout    *string  `json:"stale_timeout"`
	ReapInterval    *string  `json:"reap_interval"`
	EventBatchSize  *int     `json:"event_batch_size"`
	InboundQueue    *int     `json:"inbound_queue"`
	BroadcastBuffer *int     `json:"broadcast_buffer"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

func (f fileConfig) apply(cfg *Config) {
	if f.Addr != nil {
		cfg.Addr = *f.Addr
	}
	if f.SecretKey != nil {
		cfg.SecretKey = *f.SecretKey
	}
	if f.MaxPlayers != nil {
		cfg.MaxPlayers = *f.MaxPlayers
	}
	if f.StaleTimeout != nil {
		if d, err := time.ParseDuration(*f.StaleTimeout); err == nil {
			cfg.StaleTimeout = d
		}
	}
	if f.ReapInterval != nil {
		if d, err := time.ParseDuration(*f.ReapInterval); err == nil {
			cfg.ReapInterval = d
		}
	}
	if f.EventBatchSize != nil {
		cfg.EventBatchSize = *f.EventBatchSize
	}
	if f.InboundQueue != nil {
		cfg.InboundQueue = *f.InboundQueue
	}
	if f.BroadcastBuffer != nil {
		cfg.BroadcastBuffer = *f.BroadcastBuffer
	}
	if f.AllowedOrigins != nil {
		cfg.AllowedOrigins = f.AllowedOrigins
	}
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("BLACKBALL_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("BLACKBALL_SECRET_KEY"); ok {
		cfg.SecretKey = v
	}
	if v, ok := os.LookupEnv("BLACKBALL_MAX_PLAYERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BLACKBALL_MAX_PLAYERS: %w", err)
		}
		cfg.MaxPlayers = n
	}
	if v, ok := os.LookupEnv("BLACKBALL_STALE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BLACKBALL_STALE_TIMEOUT: %w", err)
		}
		cfg.StaleTimeout = d
	}
	if v, ok := os.LookupEnv("BLACKBALL_REAP_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BLACKBALL_REAP_INTERVAL: %w", err)
		}
		cfg.ReapInterval = d
	}
	return nil
}
