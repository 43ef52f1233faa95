package client

import (
	"testing"

	"github.com/vocablens/callops/config"
)

const sectionYAML = `
services:
  billing:
    key: literal-key
    rateLimit:
      windowMs: 1000
      maxRequests: 10
      minDelayMs: 10
    breaker:
      failureThreshold: 5
      recoveryTimeoutMs: 30000
    retry:
      maxRetries: 4
      baseDelayMs: 50
    maxConcurrent: 8
    timeoutMs: 2500
`

func sampleSection(t *testing.T) config.ServiceSection {
	t.Helper()
	f, err := config.Parse([]byte(sectionYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sec, ok := f.Service("billing")
	if !ok {
		t.Fatal("billing section missing")
	}
	return sec
}
