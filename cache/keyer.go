package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Keyer builds deterministic cache keys for service calls.
//
// Contract:
// - Determinism: equal parameters must produce equal keys, regardless of
//   map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key derives a cache key from the service, operation, and call
	// parameters.
	Key(service, operation string, params any) (string, error)
}

// DefaultKeyer derives SHA-256 based keys of the form
// <namespace>:<service>:<operation>:<hash>, where hash is the first 16
// hex characters of the digest of the canonical JSON parameters.
type DefaultKeyer struct {
	// Namespace prefixes every key. Defaults to "callops".
	Namespace string
}

// Key derives a deterministic cache key for one call.
func (k *DefaultKeyer) Key(service, operation string, params any) (string, error) {
	ns := k.Namespace
	if ns == "" {
		ns = "callops"
	}

	canonical, err := canonicalJSON(params)
	if err != nil {
		return "", fmt.Errorf("cache: canonicalize params: %w", err)
	}
	sum := sha256.Sum256(canonical)

	key := fmt.Sprintf("%s:%s:%s:%s", ns, service, operation, hex.EncodeToString(sum[:8]))
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// canonicalJSON renders v as JSON with map keys sorted, so equal
// parameter sets serialize identically.
func canonicalJSON(v any) ([]byte, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(kb)
			b.WriteByte(':')
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		enc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Write(enc)
	}
	return nil
}

var _ Keyer = (*DefaultKeyer)(nil)
