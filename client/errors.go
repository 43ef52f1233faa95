package client

import "errors"

var (
	// ErrNoService is returned when a Client is built without a service
	// name.
	ErrNoService = errors.New("client: service name required")

	// ErrNoKey is returned by KeyInfo when the client has no service key
	// configured.
	ErrNoKey = errors.New("client: no service key configured")
)
