package switchctl

import (
	"context"
	"time"
)

// PortCount ports on the supported switch family
const PortCount = 8

// Credentials identifies one switch. Password and IP may be
// updated in place via Client.UpdateCredentials.
type Credentials struct {
	Ipaddr   string `json:"ipaddr"`
	Password string `json:"-"`
}

// PortCommand desired power state for one port
type PortCommand struct {
	Port    int  `json:"port"`
	Enabled bool `json:"enabled"`
}

// ToggleResult outcome for one requested port; produced once per
// requested port, never silently dropped
type ToggleResult struct {
	Port    int    `json:"port"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PortStatus current admin state of one port
type PortStatus struct {
	Port    int  `json:"port"`
	Enabled bool `json:"enabled"`
}

// Options tunables for one session client. Zero values fall back
// to the defaults the switch family tolerates.
type Options struct {
	// Timeout per HTTP exchange
	Timeout time.Duration
	// LoginStepDelay pacing between the nonce fetch and the login POST;
	// the embedded server drops back-to-back requests
	LoginStepDelay time.Duration
	// RetryBackoff wait before the single retry after a failed toggle
	RetryBackoff time.Duration
	// QueueDepth pending operations per switch
	QueueDepth int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.LoginStepDelay <= 0 {
		o.LoginStepDelay = 500 * time.Millisecond
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 1000 * time.Millisecond
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 64
	}
	return o
}

// Client is the per-switch session contract. All operations except
// TogglePortsParallel and TestConnection execute one-at-a-time in
// submission order on the switch's command queue.
type Client interface {
	// Login returns a valid session token, reusing the cached one.
	// Concurrent callers share a single in-flight login exchange.
	Login(ctx context.Context) (string, error)

	// TogglePort switches one port; retries the full login+toggle
	// sequence exactly once after invalidating the session.
	TogglePort(ctx context.Context, port int, enabled bool) error

	// TogglePortsBatch applies commands in order inside one queue
	// slot with a fresh hash token per command and an optional fixed
	// delay between commands. A failed command aborts the remainder;
	// completed commands are not rolled back.
	TogglePortsBatch(ctx context.Context, commands []PortCommand, interDelay time.Duration) ([]ToggleResult, error)

	// TogglePortsParallel bypasses the command queue and issues one
	// exchange per command concurrently. Only the login step fails
	// the whole call; per-port failures land in the results.
	TogglePortsParallel(ctx context.Context, commands []PortCommand) ([]ToggleResult, error)

	// GetPortStatuses returns admin state for every port, ascending.
	GetPortStatuses(ctx context.Context) ([]PortStatus, error)

	// UpdateCredentials adopts new credentials, invalidating the
	// cached session in the background when they differ.
	UpdateCredentials(creds Credentials)

	// ClearSession best-effort logout and cache reset. Idempotent.
	ClearSession(ctx context.Context) error

	// TestConnection attempts only the unauthenticated nonce fetch.
	TestConnection(ctx context.Context) bool

	// Credentials returns the current credentials.
	Credentials() Credentials

	// Close stops the command queue worker. Pending operations fail
	// with ErrClientClosed.
	Close()
}
