package main

import (
	"fmt"
	"os"
	"time"

	"ojbox/internal/common/cache"
	"ojbox/internal/common/storage"
	"ojbox/internal/judge/sandbox/compiler"
	"ojbox/internal/judge/sandbox/engine"
	"ojbox/internal/judge/sandbox/guard"
	"ojbox/internal/judge/sandbox/pch"
	"ojbox/internal/judge/sandbox/profile"
	"ojbox/internal/judge/sandbox/runner"
	"ojbox/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultMaxBodyBytes    = 64 << 20
	defaultRateWindow      = time.Minute
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	// MaxBodyBytes caps request bodies; bundles arrive inline as base64.
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
	// MaxConcurrent bounds requests inside the sandbox at once. Zero means unbounded.
	MaxConcurrent int           `yaml:"maxConcurrent"`
	SlotWait      time.Duration `yaml:"slotWait"`
	MetricsPath   string        `yaml:"metricsPath"`
}

// SandboxConfig holds executor settings.
type SandboxConfig struct {
	WorkRoot         string        `yaml:"workRoot"`
	ShellPath        string        `yaml:"shellPath"`
	TimeBinary       string        `yaml:"timeBinary"`
	TimeoutBinary    string        `yaml:"timeoutBinary"`
	KillAfter        time.Duration `yaml:"killAfter"`
	WaitDelay        time.Duration `yaml:"waitDelay"`
	Env              []string      `yaml:"env"`
	MaxTimeoutMs     uint32        `yaml:"maxTimeoutMs"`
	MaxUnpackedBytes int64         `yaml:"maxUnpackedBytes"`
}

// CompileConfig holds compiler settings.
type CompileConfig struct {
	TimeoutMs      uint32 `yaml:"timeoutMs"`
	MaxSourceBytes int    `yaml:"maxSourceBytes"`
}

// PCHConfig holds precompiled-header settings.
type PCHConfig struct {
	Root         string        `yaml:"root"`
	HeaderPath   string        `yaml:"headerPath"`
	Compiler     string        `yaml:"compiler"`
	Versions     []string      `yaml:"versions"`
	BuildTimeout time.Duration `yaml:"buildTimeout"`
	WarmOnStart  bool          `yaml:"warmOnStart"`
}

// OutputConfig holds oversized output offload settings.
type OutputConfig struct {
	// Offload uploads oversized responses to MinIO. When false they are only truncated.
	Offload          bool          `yaml:"offload"`
	OffloadThreshold int           `yaml:"offloadThreshold"`
	InlineBudget     int           `yaml:"inlineBudget"`
	URLTTL           time.Duration `yaml:"urlTTL"`
	KeyPrefix        string        `yaml:"keyPrefix"`
	// ExpireDays installs a lifecycle rule on KeyPrefix. Zero leaves objects forever.
	ExpireDays   int  `yaml:"expireDays"`
	EnsureBucket bool `yaml:"ensureBucket"`
}

// RateLimitConfig holds per-IP limits for the POST routes.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Window       time.Duration `yaml:"window"`
	IPMax        int           `yaml:"ipMax"`
	RedisTimeout time.Duration `yaml:"redisTimeout"`
}

// AppConfig holds ojbox-server config.
type AppConfig struct {
	Server    ServerConfig                `yaml:"server"`
	Logger    logger.Config               `yaml:"logger"`
	MinIO     storage.MinIOConfig         `yaml:"minio"`
	Output    OutputConfig                `yaml:"output"`
	Sandbox   SandboxConfig               `yaml:"sandbox"`
	Compile   CompileConfig               `yaml:"compile"`
	PCH       PCHConfig                   `yaml:"pch"`
	Redis     cache.RedisConfig           `yaml:"redis"`
	RateLimit RateLimitConfig             `yaml:"rateLimit"`
	Languages map[string]profile.Override `yaml:"languages"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stdout"
	}
	if cfg.Output.KeyPrefix == "" {
		cfg.Output.KeyPrefix = guard.DefaultKeyPrefix
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = defaultRateWindow
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Output.Offload {
		if cfg.MinIO.Endpoint == "" {
			return fmt.Errorf("minio endpoint is required when output offload is enabled")
		}
		if cfg.MinIO.Bucket == "" {
			return fmt.Errorf("minio bucket is required when output offload is enabled")
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required when rate limiting is enabled")
		}
		if cfg.RateLimit.IPMax <= 0 {
			return fmt.Errorf("rateLimit.ipMax must be positive")
		}
	}
	if cfg.PCH.HeaderPath != "" && cfg.PCH.Root == "" {
		return fmt.Errorf("pch root is required when pch headerPath is set")
	}
	if cfg.Output.InlineBudget > 0 && cfg.Output.OffloadThreshold > 0 && cfg.Output.InlineBudget > cfg.Output.OffloadThreshold {
		return fmt.Errorf("output inlineBudget must not exceed offloadThreshold")
	}
	return nil
}

func (s SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		ShellPath:     s.ShellPath,
		TimeBinary:    s.TimeBinary,
		TimeoutBinary: s.TimeoutBinary,
		KillAfter:     s.KillAfter,
		WaitDelay:     s.WaitDelay,
		BaseEnv:       s.Env,
	}
}

func (s SandboxConfig) toRunnerConfig() runner.Config {
	return runner.Config{
		WorkRoot:         s.WorkRoot,
		MaxTimeoutMs:     s.MaxTimeoutMs,
		MaxUnpackedBytes: s.MaxUnpackedBytes,
	}
}

func (c CompileConfig) toCompilerConfig(workRoot string) compiler.Config {
	return compiler.Config{
		WorkRoot:       workRoot,
		TimeoutMs:      c.TimeoutMs,
		MaxSourceBytes: c.MaxSourceBytes,
	}
}

func (p PCHConfig) toCacheConfig() pch.Config {
	return pch.Config{
		Root:         p.Root,
		HeaderPath:   p.HeaderPath,
		Compiler:     p.Compiler,
		Versions:     p.Versions,
		BuildTimeout: p.BuildTimeout,
	}
}

func (o OutputConfig) toGuardConfig(bucket string) guard.Config {
	return guard.Config{
		Bucket:           bucket,
		OffloadThreshold: o.OffloadThreshold,
		InlineBudget:     o.InlineBudget,
		URLTTL:           o.URLTTL,
		KeyPrefix:        o.KeyPrefix,
	}
}
