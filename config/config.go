package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vocablens/callops/cache"
	"github.com/vocablens/callops/observe"
	"github.com/vocablens/callops/resilience"
)

// File is the full YAML configuration: one section per upstream service
// plus shared cache and observability settings. Durations are expressed
// in milliseconds, matching the rate-limit and retry headers the remote
// services themselves speak.
type File struct {
	Cache    CacheSection              `yaml:"cache"`
	Observe  ObserveSection            `yaml:"observability"`
	Services map[string]ServiceSection `yaml:"services"`
}

// ServiceSection configures the call pipeline for one upstream service.
type ServiceSection struct {
	// Key is the service API key. Supports ${ENV} references resolved
	// at load time.
	Key string `yaml:"key"`

	RateLimit *RateLimitSection `yaml:"rateLimit"`
	Breaker   *BreakerSection   `yaml:"breaker"`
	Retry     *RetrySection     `yaml:"retry"`

	// MaxConcurrent bounds in-flight calls to this service. Zero means
	// no bound.
	MaxConcurrent int64 `yaml:"maxConcurrent"`

	// TimeoutMs bounds each attempt. Zero means no per-attempt bound.
	TimeoutMs int `yaml:"timeoutMs"`
}

// RateLimitSection mirrors resilience.LimitConfig.
type RateLimitSection struct {
	WindowMs    int `yaml:"windowMs"`
	MaxRequests int `yaml:"maxRequests"`
	MinDelayMs  int `yaml:"minDelayMs"`
	BurstSize   int `yaml:"burstSize"`
	MaxWaitMs   int `yaml:"maxWaitMs"`
}

// BreakerSection mirrors resilience.BreakerConfig.
type BreakerSection struct {
	FailureThreshold   int `yaml:"failureThreshold"`
	RecoveryTimeoutMs  int `yaml:"recoveryTimeoutMs"`
	SuccessesToClose   int `yaml:"successesToClose"`
	MonitoringPeriodMs int `yaml:"monitoringPeriodMs"`
}

// RetrySection mirrors resilience.RetryConfig.
type RetrySection struct {
	MaxRetries        int     `yaml:"maxRetries"`
	BaseDelayMs       int     `yaml:"baseDelayMs"`
	MaxDelayMs        int     `yaml:"maxDelayMs"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`
	Jitter            *bool   `yaml:"jitter"`
	RetryableCodes    []int   `yaml:"retryableCodes"`
}

// CacheSection mirrors cache.Config.
type CacheSection struct {
	DefaultTTLMs      int    `yaml:"defaultTtlMs"`
	MaxSize           int    `yaml:"maxSize"`
	MaxMemoryMB       int64  `yaml:"maxMemoryMB"`
	CleanupIntervalMs int    `yaml:"cleanupIntervalMs"`
	SnapshotPath      string `yaml:"snapshotPath"`
}

// ObserveSection mirrors observe.Config.
type ObserveSection struct {
	ServiceName string  `yaml:"serviceName"`
	Version     string  `yaml:"version"`
	TracingOn   bool    `yaml:"tracing"`
	TraceExport string  `yaml:"traceExporter"`
	SamplePct   float64 `yaml:"samplePct"`
	MetricsOn   bool    `yaml:"metrics"`
	MetricsExpo string  `yaml:"metricsExporter"`
	LoggingOn   bool    `yaml:"logging"`
	LogLevel    string  `yaml:"logLevel"`
}

// Load reads, expands, and parses a YAML configuration file. ${ENV}
// references anywhere in the file must resolve; a missing variable is a
// load error, not a silent empty string.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse expands environment references in raw and decodes it.
func Parse(raw []byte) (*File, error) {
	expanded, err := ExpandEnvStrict(string(raw))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var f File
	if err := yaml.UnmarshalStrict([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks every section for impossible values.
func (f *File) Validate() error {
	for name, svc := range f.Services {
		if rl := svc.RateLimit; rl != nil {
			if rl.WindowMs <= 0 {
				return fmt.Errorf("config: service %q: rate limit windowMs must be positive, got %d", name, rl.WindowMs)
			}
			if rl.MaxRequests < 1 {
				return fmt.Errorf("config: service %q: rate limit maxRequests must be >= 1, got %d", name, rl.MaxRequests)
			}
		}
		if br := svc.Breaker; br != nil && br.FailureThreshold < 0 {
			return fmt.Errorf("config: service %q: breaker failureThreshold must not be negative", name)
		}
		if rt := svc.Retry; rt != nil {
			if rt.BackoffMultiplier != 0 && rt.BackoffMultiplier < 1 {
				return fmt.Errorf("config: service %q: retry backoffMultiplier must be >= 1, got %v", name, rt.BackoffMultiplier)
			}
			for _, code := range rt.RetryableCodes {
				if code < 100 || code > 599 {
					return fmt.Errorf("config: service %q: retryable code %d is not an HTTP status", name, code)
				}
			}
		}
	}
	if f.Cache.MaxMemoryMB < 0 {
		return fmt.Errorf("config: cache maxMemoryMB must not be negative, got %d", f.Cache.MaxMemoryMB)
	}
	return nil
}

// Service returns the section for name; ok reports whether it exists.
func (f *File) Service(name string) (ServiceSection, bool) {
	svc, ok := f.Services[name]
	return svc, ok
}

// LimitConfig converts the section to the limiter's config type.
func (s RateLimitSection) LimitConfig() resilience.LimitConfig {
	return resilience.LimitConfig{
		Window:      time.Duration(s.WindowMs) * time.Millisecond,
		MaxRequests: s.MaxRequests,
		MinDelay:    time.Duration(s.MinDelayMs) * time.Millisecond,
		Burst:       s.BurstSize,
		MaxWait:     time.Duration(s.MaxWaitMs) * time.Millisecond,
	}
}

// BreakerConfig converts the section to the breaker's config type.
func (s BreakerSection) BreakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: s.FailureThreshold,
		RecoveryTimeout:  time.Duration(s.RecoveryTimeoutMs) * time.Millisecond,
		SuccessesToClose: s.SuccessesToClose,
		MonitoringPeriod: time.Duration(s.MonitoringPeriodMs) * time.Millisecond,
	}
}

// RetryConfig converts the section to the retry executor's config type.
// A retryableCodes list narrows the classifier to exactly those codes.
func (s RetrySection) RetryConfig() resilience.RetryConfig {
	cfg := resilience.RetryConfig{
		MaxRetries: s.MaxRetries,
		BaseDelay:  time.Duration(s.BaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(s.MaxDelayMs) * time.Millisecond,
		Multiplier: s.BackoffMultiplier,
	}
	if s.Jitter != nil && !*s.Jitter {
		cfg.DisableJitter = true
	}
	if len(s.RetryableCodes) > 0 {
		cfg.RetryIf = resilience.RetryOnStatus(s.RetryableCodes...)
	}
	return cfg
}

// CacheConfig converts the section to the cache's config type.
func (s CacheSection) CacheConfig() cache.Config {
	cfg := cache.Config{
		DefaultTTL:     time.Duration(s.DefaultTTLMs) * time.Millisecond,
		MaxEntries:     s.MaxSize,
		MaxMemoryBytes: s.MaxMemoryMB * 1024 * 1024,
		SweepInterval:  time.Duration(s.CleanupIntervalMs) * time.Millisecond,
	}
	if s.SnapshotPath != "" {
		cfg.Store = &cache.FileStore{Path: s.SnapshotPath}
	}
	return cfg
}

// ObserveConfig converts the section to the observer's config type.
func (s ObserveSection) ObserveConfig() observe.Config {
	return observe.Config{
		ServiceName: s.ServiceName,
		Version:     s.Version,
		Tracing: observe.TracingConfig{
			Enabled:   s.TracingOn,
			Exporter:  s.TraceExport,
			SamplePct: s.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  s.MetricsOn,
			Exporter: s.MetricsExpo,
		},
		Logging: observe.LoggingConfig{
			Enabled: s.LoggingOn,
			Level:   s.LogLevel,
		},
	}
}
