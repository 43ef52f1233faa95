package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vocablens/callops/resilience"
)

const sampleYAML = `
cache:
  defaultTtlMs: 60000
  maxSize: 500
  maxMemoryMB: 64
  cleanupIntervalMs: 30000
observability:
  serviceName: callops-test
  version: 1.2.3
  tracing: true
  traceExporter: stdout
  samplePct: 0.5
  metrics: true
  metricsExporter: none
  logging: true
  logLevel: debug
services:
  billing:
    key: ${BILLING_API_KEY}
    rateLimit:
      windowMs: 1000
      maxRequests: 10
      minDelayMs: 50
      burstSize: 4
    breaker:
      failureThreshold: 5
      recoveryTimeoutMs: 30000
      successesToClose: 2
      monitoringPeriodMs: 60000
    retry:
      maxRetries: 4
      baseDelayMs: 200
      maxDelayMs: 5000
      backoffMultiplier: 2.0
      jitter: false
      retryableCodes: [429, 503]
    maxConcurrent: 8
    timeoutMs: 2500
  search:
    key: literal-key
`

func loadSample(t *testing.T) *File {
	t.Helper()
	t.Setenv("BILLING_API_KEY", "sk-billing-42")
	path := filepath.Join(t.TempDir(), "callops.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return f
}

func TestLoad(t *testing.T) {
	f := loadSample(t)

	billing, ok := f.Service("billing")
	if !ok {
		t.Fatal("Service(billing) not found")
	}
	if billing.Key != "sk-billing-42" {
		t.Errorf("billing key = %q, want expanded env value", billing.Key)
	}
	if billing.MaxConcurrent != 8 {
		t.Errorf("maxConcurrent = %d, want 8", billing.MaxConcurrent)
	}
	if billing.TimeoutMs != 2500 {
		t.Errorf("timeoutMs = %d, want 2500", billing.TimeoutMs)
	}

	search, ok := f.Service("search")
	if !ok {
		t.Fatal("Service(search) not found")
	}
	if search.Key != "literal-key" {
		t.Errorf("search key = %q, want literal-key", search.Key)
	}
	if search.RateLimit != nil || search.Breaker != nil || search.Retry != nil {
		t.Error("search should have no pipeline sections configured")
	}
}

func TestLoadMissingEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callops.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load without BILLING_API_KEY returned nil error")
	}
	if !strings.Contains(err.Error(), "BILLING_API_KEY") {
		t.Errorf("error = %v, want mention of missing variable", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load of missing file returned nil error")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("services:\n  - not-a-map"))
	if err == nil {
		t.Fatal("Parse of invalid yaml returned nil error")
	}
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse([]byte("services:\n  a:\n    kee: typo"))
	if err == nil {
		t.Fatal("Parse with unknown field returned nil error, want strict decode failure")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero window", "services:\n  a:\n    rateLimit:\n      windowMs: 0\n      maxRequests: 5"},
		{"zero max requests", "services:\n  a:\n    rateLimit:\n      windowMs: 1000\n      maxRequests: 0"},
		{"multiplier below one", "services:\n  a:\n    retry:\n      backoffMultiplier: 0.5"},
		{"bad status code", "services:\n  a:\n    retry:\n      retryableCodes: [42]"},
		{"negative memory", "cache:\n  maxMemoryMB: -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse returned nil error, want validation failure")
			}
		})
	}
}

func TestSectionConversions(t *testing.T) {
	f := loadSample(t)
	billing, _ := f.Service("billing")

	lc := billing.RateLimit.LimitConfig()
	if lc.Window != time.Second || lc.MaxRequests != 10 || lc.MinDelay != 50*time.Millisecond || lc.Burst != 4 {
		t.Errorf("LimitConfig() = %+v, want window=1s max=10 minDelay=50ms burst=4", lc)
	}

	bc := billing.Breaker.BreakerConfig()
	if bc.FailureThreshold != 5 || bc.RecoveryTimeout != 30*time.Second || bc.SuccessesToClose != 2 || bc.MonitoringPeriod != time.Minute {
		t.Errorf("BreakerConfig() = %+v", bc)
	}

	rc := billing.Retry.RetryConfig()
	if rc.MaxRetries != 4 || rc.BaseDelay != 200*time.Millisecond || rc.MaxDelay != 5*time.Second || rc.Multiplier != 2 {
		t.Errorf("RetryConfig() = %+v", rc)
	}
	if !rc.DisableJitter {
		t.Error("jitter: false should set DisableJitter")
	}
	if rc.RetryIf == nil {
		t.Fatal("retryableCodes should install a RetryIf classifier")
	}
	if !rc.RetryIf(&resilience.StatusError{Code: 429, Message: "too many"}) {
		t.Error("RetryIf should retry listed status 429")
	}
	if rc.RetryIf(&resilience.StatusError{Code: 404, Message: "not found"}) {
		t.Error("RetryIf should not retry unlisted status 404")
	}

	cc := f.Cache.CacheConfig()
	if cc.DefaultTTL != time.Minute || cc.MaxEntries != 500 || cc.MaxMemoryBytes != 64*1024*1024 || cc.SweepInterval != 30*time.Second {
		t.Errorf("CacheConfig() = %+v", cc)
	}
	if cc.Store != nil {
		t.Error("no snapshotPath: Store should be nil")
	}

	oc := f.Observe.ObserveConfig()
	if oc.ServiceName != "callops-test" || oc.Version != "1.2.3" {
		t.Errorf("ObserveConfig() identity = %q/%q", oc.ServiceName, oc.Version)
	}
	if !oc.Tracing.Enabled || oc.Tracing.Exporter != "stdout" || oc.Tracing.SamplePct != 0.5 {
		t.Errorf("ObserveConfig() tracing = %+v", oc.Tracing)
	}
	if !oc.Metrics.Enabled || oc.Metrics.Exporter != "none" {
		t.Errorf("ObserveConfig() metrics = %+v", oc.Metrics)
	}
	if !oc.Logging.Enabled || oc.Logging.Level != "debug" {
		t.Errorf("ObserveConfig() logging = %+v", oc.Logging)
	}
}

func TestCacheConfigSnapshotStore(t *testing.T) {
	f, err := Parse([]byte("cache:\n  snapshotPath: /tmp/snap.json"))
	if err != nil {
		t.Fatal(err)
	}
	cc := f.Cache.CacheConfig()
	if cc.Store == nil {
		t.Fatal("snapshotPath should install a file store")
	}
}
