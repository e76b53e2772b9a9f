package application

import "errors"

var (
	// ErrNilConnections is returned when the engine is built without endpoint resolution.
	ErrNilConnections = errors.New("trigger engine: nil connections")
	// ErrNotConfigured is returned when a run is started before configure.
	ErrNotConfigured = errors.New("trigger engine: not configured")
	// ErrAlreadyRunning is returned when an operation requires a stopped engine.
	ErrAlreadyRunning = errors.New("trigger engine: run in progress")
	// ErrNotRunning is returned when an operation requires an active run.
	ErrNotRunning = errors.New("trigger engine: no run in progress")
	// ErrNoLinks is returned when the configuration lists no readout links.
	ErrNoLinks = errors.New("trigger engine: no links configured")
	// ErrMissingConnection is returned when a connection name is empty.
	ErrMissingConnection = errors.New("trigger engine: missing connection name")
	// ErrInvalidTimeout is returned for negative poll or send timeouts.
	ErrInvalidTimeout = errors.New("trigger engine: invalid timeout")
	// ErrUnknownConnection is returned by resolvers for names they do not serve.
	ErrUnknownConnection = errors.New("trigger engine: unknown connection")
	// ErrSendTimeout is wrapped by sinks that found no room before the send timeout.
	ErrSendTimeout = errors.New("trigger engine: send timeout")
	// ErrDeliveryUnconfirmed is wrapped by sinks that gave up waiting while the
	// decision may still reach the consumer.
	ErrDeliveryUnconfirmed = errors.New("trigger engine: decision delivery unconfirmed")
)
