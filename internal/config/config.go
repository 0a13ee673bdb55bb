// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob for a stability run. All fields have working
// defaults so a bare `gauntlet run` against a local gateway just works.
// Precedence: defaults < environment < config file < flags.
type Config struct {
	GatewayURL string `json:"gateway_url"`

	UserCount    int    `json:"user_count"`
	UserPrefix   string `json:"user_prefix"`
	UserPassword string `json:"-"`
	QuotaTier    string `json:"quota_tier"`

	CreateUsers     bool `json:"create_users"`
	CleanupUsers    bool `json:"cleanup_users"`
	PreClean        bool `json:"pre_clean"`
	PhysicalClean   bool `json:"physical_clean"`
	CreateWorkers   int  `json:"create_workers"`
	ActivateWorkers int  `json:"activate_workers"`

	RestInterval     time.Duration `json:"rest_interval_ns"`
	RequestTimeout   time.Duration `json:"request_timeout_ns"`
	RefreshGrace     time.Duration `json:"refresh_grace_ns"`
	RampBatchSize    int           `json:"ramp_batch_size"`
	RampInterval     time.Duration `json:"ramp_interval_ns"`
	RetryRateLimit   bool          `json:"retry_429"`
	MaxRateLimitTry  int           `json:"max_429_retry"`
	BurstRequests    int           `json:"burst_requests"`
	BurstConcurrency int           `json:"burst_concurrency"`
	BurstRPS         float64       `json:"burst_rps"`

	Model  string `json:"model"`
	Prompt string `json:"prompt"`

	ReportPath string `json:"report_path,omitempty"`
	RandomSeed int64  `json:"random_seed"`

	// DataDir/LogsDir point at the gateway's on-disk state for artifact
	// purging. Empty disables physical cleanup regardless of the flags.
	DataDir string `json:"data_dir,omitempty"`
	LogsDir string `json:"logs_dir,omitempty"`
}

// Default returns the built-in configuration, matching the defaults the
// gateway's own test tooling has always used.
func Default() Config {
	return Config{
		GatewayURL:       "http://localhost:8877",
		UserCount:        100,
		UserPrefix:       "st_user",
		UserPassword:     "pass123",
		QuotaTier:        "basic",
		CreateUsers:      true,
		CleanupUsers:     false,
		PreClean:         true,
		PhysicalClean:    true,
		CreateWorkers:    30,
		ActivateWorkers:  30,
		RestInterval:     60 * time.Second,
		RequestTimeout:   20 * time.Second,
		RefreshGrace:     5 * time.Second,
		RampBatchSize:    25,
		RampInterval:     1500 * time.Millisecond,
		RetryRateLimit:   true,
		MaxRateLimitTry:  2,
		BurstRequests:    500,
		BurstConcurrency: 50,
		BurstRPS:         0,
		Model:            "deepseek-chat",
		Prompt:           "Say a number.",
		RandomSeed:       time.Now().Unix(),
	}
}

// FromEnv layers GAUNTLET_* environment variables over the defaults.
func FromEnv() Config {
	cfg := Default()
	cfg.GatewayURL = envString("GAUNTLET_GATEWAY_URL", cfg.GatewayURL)
	cfg.UserCount = envInt("GAUNTLET_USER_COUNT", cfg.UserCount)
	cfg.UserPrefix = envString("GAUNTLET_USER_PREFIX", cfg.UserPrefix)
	cfg.UserPassword = envString("GAUNTLET_USER_PASSWORD", cfg.UserPassword)
	cfg.QuotaTier = envString("GAUNTLET_QUOTA_TIER", cfg.QuotaTier)
	cfg.CreateUsers = envBool("GAUNTLET_CREATE_USERS", cfg.CreateUsers)
	cfg.CleanupUsers = envBool("GAUNTLET_CLEANUP_USERS", cfg.CleanupUsers)
	cfg.PreClean = envBool("GAUNTLET_PRE_CLEAN", cfg.PreClean)
	cfg.PhysicalClean = envBool("GAUNTLET_PHYSICAL_CLEAN", cfg.PhysicalClean)
	cfg.CreateWorkers = envInt("GAUNTLET_CREATE_WORKERS", cfg.CreateWorkers)
	cfg.ActivateWorkers = envInt("GAUNTLET_ACTIVATE_WORKERS", cfg.ActivateWorkers)
	cfg.RestInterval = envSeconds("GAUNTLET_REST_INTERVAL", cfg.RestInterval)
	cfg.RequestTimeout = envSeconds("GAUNTLET_TIMEOUT", cfg.RequestTimeout)
	cfg.RefreshGrace = envSeconds("GAUNTLET_REFRESH_GRACE", cfg.RefreshGrace)
	cfg.RampBatchSize = envInt("GAUNTLET_RAMP_BATCH_SIZE", cfg.RampBatchSize)
	cfg.RampInterval = envSeconds("GAUNTLET_RAMP_INTERVAL", cfg.RampInterval)
	cfg.RetryRateLimit = envBool("GAUNTLET_RETRY_429", cfg.RetryRateLimit)
	cfg.MaxRateLimitTry = envInt("GAUNTLET_MAX_429_RETRY", cfg.MaxRateLimitTry)
	cfg.BurstRequests = envInt("GAUNTLET_BURST_REQUESTS", cfg.BurstRequests)
	cfg.BurstConcurrency = envInt("GAUNTLET_BURST_CONCURRENCY", cfg.BurstConcurrency)
	cfg.BurstRPS = envFloat("GAUNTLET_BURST_RPS", cfg.BurstRPS)
	cfg.Model = envString("GAUNTLET_MODEL", cfg.Model)
	cfg.Prompt = envString("GAUNTLET_PROMPT", cfg.Prompt)
	cfg.ReportPath = envString("GAUNTLET_REPORT_JSON", cfg.ReportPath)
	cfg.RandomSeed = envInt64("GAUNTLET_RANDOM_SEED", cfg.RandomSeed)
	cfg.DataDir = envString("GAUNTLET_DATA_DIR", cfg.DataDir)
	cfg.LogsDir = envString("GAUNTLET_LOGS_DIR", cfg.LogsDir)
	return cfg
}

// fileConfig mirrors Config for YAML decoding. Durations are plain seconds
// (fractions allowed) and every field is a pointer so absent keys keep the
// values already layered from defaults and environment.
type fileConfig struct {
	GatewayURL       *string  `yaml:"gateway_url"`
	UserCount        *int     `yaml:"user_count"`
	UserPrefix       *string  `yaml:"user_prefix"`
	UserPassword     *string  `yaml:"user_password"`
	QuotaTier        *string  `yaml:"quota_tier"`
	CreateUsers      *bool    `yaml:"create_users"`
	CleanupUsers     *bool    `yaml:"cleanup_users"`
	PreClean         *bool    `yaml:"pre_clean"`
	PhysicalClean    *bool    `yaml:"physical_clean"`
	CreateWorkers    *int     `yaml:"create_workers"`
	ActivateWorkers  *int     `yaml:"activate_workers"`
	RestInterval     *float64 `yaml:"rest_interval"`
	RequestTimeout   *float64 `yaml:"request_timeout"`
	RefreshGrace     *float64 `yaml:"refresh_grace"`
	RampBatchSize    *int     `yaml:"ramp_batch_size"`
	RampInterval     *float64 `yaml:"ramp_interval"`
	RetryRateLimit   *bool    `yaml:"retry_429"`
	MaxRateLimitTry  *int     `yaml:"max_429_retry"`
	BurstRequests    *int     `yaml:"burst_requests"`
	BurstConcurrency *int     `yaml:"burst_concurrency"`
	BurstRPS         *float64 `yaml:"burst_rps"`
	Model            *string  `yaml:"model"`
	Prompt           *string  `yaml:"prompt"`
	ReportPath       *string  `yaml:"report_path"`
	RandomSeed       *int64   `yaml:"random_seed"`
	DataDir          *string  `yaml:"data_dir"`
	LogsDir          *string  `yaml:"logs_dir"`
}

// LoadFile overlays values from a YAML config file onto cfg. Fields absent
// from the file keep their current values. Durations in the file are seconds.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	setString(&cfg.GatewayURL, fc.GatewayURL)
	setInt(&cfg.UserCount, fc.UserCount)
	setString(&cfg.UserPrefix, fc.UserPrefix)
	setString(&cfg.UserPassword, fc.UserPassword)
	setString(&cfg.QuotaTier, fc.QuotaTier)
	setBool(&cfg.CreateUsers, fc.CreateUsers)
	setBool(&cfg.CleanupUsers, fc.CleanupUsers)
	setBool(&cfg.PreClean, fc.PreClean)
	setBool(&cfg.PhysicalClean, fc.PhysicalClean)
	setInt(&cfg.CreateWorkers, fc.CreateWorkers)
	setInt(&cfg.ActivateWorkers, fc.ActivateWorkers)
	setSeconds(&cfg.RestInterval, fc.RestInterval)
	setSeconds(&cfg.RequestTimeout, fc.RequestTimeout)
	setSeconds(&cfg.RefreshGrace, fc.RefreshGrace)
	setInt(&cfg.RampBatchSize, fc.RampBatchSize)
	setSeconds(&cfg.RampInterval, fc.RampInterval)
	setBool(&cfg.RetryRateLimit, fc.RetryRateLimit)
	setInt(&cfg.MaxRateLimitTry, fc.MaxRateLimitTry)
	setInt(&cfg.BurstRequests, fc.BurstRequests)
	setInt(&cfg.BurstConcurrency, fc.BurstConcurrency)
	if fc.BurstRPS != nil {
		cfg.BurstRPS = *fc.BurstRPS
	}
	setString(&cfg.Model, fc.Model)
	setString(&cfg.Prompt, fc.Prompt)
	setString(&cfg.ReportPath, fc.ReportPath)
	if fc.RandomSeed != nil {
		cfg.RandomSeed = *fc.RandomSeed
	}
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.LogsDir, fc.LogsDir)
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setSeconds(dst *time.Duration, src *float64) {
	if src != nil && *src >= 0 {
		*dst = time.Duration(*src * float64(time.Second))
	}
}

// Validate rejects values that would make a run meaningless.
func (c Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway URL must not be empty")
	}
	if c.UserCount <= 0 {
		return fmt.Errorf("user count must be positive, got %d", c.UserCount)
	}
	if c.BurstConcurrency <= 0 {
		return fmt.Errorf("burst concurrency must be positive, got %d", c.BurstConcurrency)
	}
	if c.BurstRequests < 0 {
		return fmt.Errorf("burst request count must not be negative, got %d", c.BurstRequests)
	}
	if c.RampBatchSize <= 0 {
		return fmt.Errorf("ramp batch size must be positive, got %d", c.RampBatchSize)
	}
	if c.MaxRateLimitTry < 0 {
		return fmt.Errorf("max 429 retries must not be negative, got %d", c.MaxRateLimitTry)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || v == "true"
	}
	return fallback
}

// envSeconds parses a duration expressed as (possibly fractional) seconds,
// the unit the gateway's tooling has always used for its env knobs.
func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return fallback
}
