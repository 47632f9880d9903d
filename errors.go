package goSSO

import (
	"errors"

	"github.com/MrEthical07/goSSO/deserializer"
)

var (
	// ErrUnknownProvider is returned when a provider name has no registered
	// deserializer. It is the same value as deserializer.ErrUnknownProvider.
	ErrUnknownProvider = deserializer.ErrUnknownProvider
	// ErrSessionNotFound is returned for missing, expired or logged-out sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionStoreDisabled is returned by session operations on a client
	// built without a session store.
	ErrSessionStoreDisabled = errors.New("session store disabled")
	// ErrStoreUnavailable wraps session store failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrClientNotReady is returned by methods called on a nil Client.
	ErrClientNotReady = errors.New("client not initialized")
)
