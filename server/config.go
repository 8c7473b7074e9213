package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"streambreakout/protocol"
)

// UpgradeConfig 单个社区升级的解锁条件
type UpgradeConfig struct {
	ID          string `yaml:"id"`
	Required    int    `yaml:"required"`
	Type        string `yaml:"type"` // likes | comments | subscriptions | combo
	Description string `yaml:"description"`
}

// AutoEventConfig 自动模拟事件的随机间隔（毫秒）
type AutoEventConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	MinIntervalMs int  `yaml:"minIntervalMs" json:"minIntervalMs"`
	MaxIntervalMs int  `yaml:"maxIntervalMs" json:"maxIntervalMs"`
}

func (a AutoEventConfig) MinInterval() time.Duration {
	return time.Duration(a.MinIntervalMs) * time.Millisecond
}

func (a AutoEventConfig) MaxInterval() time.Duration {
	return time.Duration(a.MaxIntervalMs) * time.Millisecond
}

// TestUser 自动事件随机挑选的观众
type TestUser struct {
	Name  string `yaml:"name"`
	Level int    `yaml:"level"`
}

type LogConfig struct {
	File    string `yaml:"file"`
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Config 服务端全部配置；配置文件是升级阈值的唯一来源
type Config struct {
	Port           int             `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	Upgrades       []UpgradeConfig `yaml:"upgrades"`
	AutoEvent      AutoEventConfig `yaml:"autoEvent"`
	TestUsers      []TestUser      `yaml:"testUsers"`
	Log            LogConfig       `yaml:"log"`
}

// DefaultConfig 默认值即测试用的小阈值
func DefaultConfig() *Config {
	return &Config{
		Port: 3001,
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://localhost:3001",
		},
		Upgrades: []UpgradeConfig{
			{ID: "bounce_upgrade", Required: 10, Type: "likes", Description: "+1 Rebote desbloqueado"},
			{ID: "multi_ball", Required: 20, Type: "comments", Description: "Multi-Pelotas desbloqueado"},
			{ID: "explosive_bounce", Required: 3, Type: "subscriptions", Description: "Rebote Explosivo desbloqueado"},
			{ID: "lightning_bounce", Required: 5, Type: "combo", Description: "Rebote Rayo desbloqueado"},
		},
		AutoEvent: AutoEventConfig{Enabled: true, MinIntervalMs: 5000, MaxIntervalMs: 15000},
		TestUsers: []TestUser{
			{Name: "StreamerFan123", Level: 5},
			{Name: "GamerPro", Level: 3},
			{Name: "ChatMaster", Level: 7},
			{Name: "FollowerOne", Level: 2},
			{Name: "SubGod", Level: 10},
		},
		Log: LogConfig{File: "app.log", Level: "info", Console: true},
	}
}

// LoadConfig 默认值 <- YAML 文件 <- 环境变量（含 .env）
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML from %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT=%q: %w", v, err)
		}
		c.Port = p
	}
	return nil
}

// Validate 一次性收集全部问题
func (c *Config) Validate() error {
	var errs error
	if c.Port < 1 || c.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("port must be in 1..65535, got %d", c.Port))
	}
	if len(c.Upgrades) == 0 {
		errs = multierr.Append(errs, errors.New("at least one upgrade is required"))
	}
	seen := make(map[string]bool, len(c.Upgrades))
	for i, u := range c.Upgrades {
		if u.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("upgrades[%d]: id is required", i))
		} else if seen[u.ID] {
			errs = multierr.Append(errs, fmt.Errorf("upgrade %s: duplicate id", u.ID))
		}
		seen[u.ID] = true
		if u.Required < 1 {
			errs = multierr.Append(errs, fmt.Errorf("upgrade %s: required must be at least 1, got %d", u.ID, u.Required))
		}
		if _, err := protocol.ParseStatType(u.Type); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("upgrade %s: %w", u.ID, err))
		}
	}
	if c.AutoEvent.MinIntervalMs <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("autoEvent.minIntervalMs must be positive, got %d", c.AutoEvent.MinIntervalMs))
	}
	if c.AutoEvent.MaxIntervalMs < c.AutoEvent.MinIntervalMs {
		errs = multierr.Append(errs, fmt.Errorf("autoEvent.maxIntervalMs (%d) is below minIntervalMs (%d)",
			c.AutoEvent.MaxIntervalMs, c.AutoEvent.MinIntervalMs))
	}
	if c.AutoEvent.Enabled && len(c.TestUsers) == 0 {
		errs = multierr.Append(errs, errors.New("autoEvent is enabled but testUsers is empty"))
	}
	for i, u := range c.TestUsers {
		if u.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("testUsers[%d]: name is required", i))
		}
		if u.Level < 0 {
			errs = multierr.Append(errs, fmt.Errorf("testUsers[%d]: level cannot be negative, got %d", i, u.Level))
		}
	}
	if _, err := zapLevel(c.Log.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errs
}
