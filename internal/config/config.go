package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Sessions SessionsConfig `yaml:"sessions"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Redis    RedisConfig    `yaml:"redis"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type AnalysisConfig struct {
	MaxURLs      int           `yaml:"max_urls"`
	ScoreTimeout time.Duration `yaml:"score_timeout"`
	EventBuffer  int           `yaml:"event_buffer"`
	// DebugRate is the sustained number of debug frames per second a single
	// run may emit; DebugBurst is the bucket size.
	DebugRate  float64 `yaml:"debug_rate"`
	DebugBurst int     `yaml:"debug_burst"`
}

type ScoringConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UserAgent string `yaml:"user_agent"`
}

type SessionsConfig struct {
	Retention      time.Duration `yaml:"retention"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	MemoryBudgetMB int           `yaml:"memory_budget_mb"`
}

type MonitorConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 5000,
			Host: "127.0.0.1",
		},
		Analysis: AnalysisConfig{
			MaxURLs:      4,
			ScoreTimeout: 45 * time.Second,
			EventBuffer:  64,
			DebugRate:    20,
			DebugBurst:   40,
		},
		Scoring: ScoringConfig{
			Endpoint:  "https://www.ratemysite.xyz/",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Sessions: SessionsConfig{
			Retention:      time.Hour,
			SweepInterval:  time.Minute,
			MemoryBudgetMB: 512,
		},
		Monitor: MonitorConfig{
			FailureThreshold: 3,
		},
		Redis: RedisConfig{
			Channel: "ratemysite:results",
		},
	}
}

// Load reads the YAML file at path on top of the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// LoadDotEnv populates the process environment from the given .env files
// (default ".env"). Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if getenv("RAILWAY_ENVIRONMENT") != "" {
		c.Server.Host = "0.0.0.0"
	}
	if v := getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := getenv("RATEMYSITE_URL"); v != "" {
		c.Scoring.Endpoint = v
	}
}

// MemoryBudgetBytes returns the session memory budget in bytes, or 0 when
// the budget is disabled.
func (c *Config) MemoryBudgetBytes() uint64 {
	if c.Sessions.MemoryBudgetMB <= 0 {
		return 0
	}
	return uint64(c.Sessions.MemoryBudgetMB) << 20
}
