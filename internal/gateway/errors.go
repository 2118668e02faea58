package gateway

import "errors"

var (
	ErrClosed             = errors.New("gateway connection closed")
	ErrNoToken            = errors.New("gateway token is required")
	ErrBadHello           = errors.New("gateway hello without heartbeat interval")
	ErrReconnectRequested = errors.New("gateway requested a reconnect")
	ErrInvalidSession     = errors.New("gateway invalidated the session")
	ErrHeartbeatTimeout   = errors.New("gateway did not acknowledge the last heartbeat")
)
