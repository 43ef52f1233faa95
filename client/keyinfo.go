package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeyInfo describes a service API key. Keys issued as JWTs carry their
// own expiry; opaque keys report only their presence.
type KeyInfo struct {
	// JWT reports whether the key parsed as a JWT.
	JWT bool

	// Issuer, IssuedAt, and ExpiresAt come from the token's registered
	// claims; zero when absent.
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Expired reports whether ExpiresAt is set and in the past.
	Expired bool
}

// TTL returns the time until the key expires, zero when no expiry is
// known, negative when already expired.
func (k KeyInfo) TTL() time.Duration {
	if k.ExpiresAt.IsZero() {
		return 0
	}
	return time.Until(k.ExpiresAt)
}

// KeyInfo inspects the configured service key. Returns ErrNoKey when
// the client has none.
func (c *Client) KeyInfo() (KeyInfo, error) {
	if c.key == "" {
		return KeyInfo{}, ErrNoKey
	}
	return InspectKey(c.key), nil
}

// InspectKey examines a service key, extracting issuer and expiry from
// JWT-shaped keys. The signature is deliberately not verified: the
// client holds the key to send it, not to trust it, and only the expiry
// matters for warning ahead of a rotation.
func InspectKey(key string) KeyInfo {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return KeyInfo{}
	}

	info := KeyInfo{JWT: true, Issuer: claims.Issuer}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
		info.Expired = time.Now().After(info.ExpiresAt)
	}
	return info
}
