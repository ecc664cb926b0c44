package provisioner

import (
	"fmt"
	"time"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/ruteri/smartcard-provisioning-worker/smartcard"
)

// DefaultTeardownTimeout bounds session teardown, which runs even after the
// run's context was cancelled.
const DefaultTeardownTimeout = 30 * time.Second

// Config parameterizes a Pipeline. It is immutable once the pipeline exists.
type Config struct {
	// TokenWaitRetries is the number of token checks before giving up.
	TokenWaitRetries int

	// TokenWaitInterval is the pause between token checks.
	TokenWaitInterval time.Duration

	// SkipPermissionHardening leaves the session home with default permissions.
	SkipPermissionHardening bool

	// AdminPIN unlocks the token's admin functions. Defaults to the factory PIN.
	AdminPIN string

	// TeardownTimeout bounds SessionClose.
	TeardownTimeout time.Duration
}

// WithDefaults fills unset optional fields.
func (c Config) WithDefaults() Config {
	if c.AdminPIN == "" {
		c.AdminPIN = smartcard.DefaultAdminPIN
	}
	if c.TeardownTimeout == 0 {
		c.TeardownTimeout = DefaultTeardownTimeout
	}
	return c
}

// Validate reports interfaces.ErrInvalidConfig for unusable settings.
func (c Config) Validate() error {
	if c.TokenWaitRetries < 1 {
		return fmt.Errorf("%w: token wait retries must be at least 1, got %d", interfaces.ErrInvalidConfig, c.TokenWaitRetries)
	}
	if c.TokenWaitInterval <= 0 {
		return fmt.Errorf("%w: token wait interval must be positive, got %s", interfaces.ErrInvalidConfig, c.TokenWaitInterval)
	}
	if c.TeardownTimeout < 0 {
		return fmt.Errorf("%w: negative teardown timeout", interfaces.ErrInvalidConfig)
	}
	return nil
}

// RetryState tracks the token checks of a single AwaitToken stage.
type RetryState struct {
	Attempts    int
	MaxAttempts int
	Interval    time.Duration
}

// Exhausted reports whether no further check is allowed.
func (r RetryState) Exhausted() bool {
	return r.Attempts >= r.MaxAttempts
}
