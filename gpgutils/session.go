package gpgutils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/ruteri/smartcard-provisioning-worker/procutils"
	"go.uber.org/atomic"
)

// DefaultAgentGrace is how long the agent gets to exit after SIGTERM.
const DefaultAgentGrace = 5 * time.Second

// DefaultHomePath returns the fixed GnuPG home used by the worker.
func DefaultHomePath() string {
	return filepath.Join(os.TempDir(), "smartcard-provisioning-worker", "gnupg")
}

// Session is an open GnuPG home with its dedicated agent.
type Session struct {
	HomePath string

	agent  procutils.Process
	closed atomic.Bool
}

// SessionManager opens and tears down sessions at a single fixed path.
// It is not safe for concurrent use; at most one Session exists at a time.
type SessionManager struct {
	log        *slog.Logger
	runner     procutils.Runner
	bins       Binaries
	homePath   string
	agentGrace time.Duration
}

// NewSessionManager creates a manager for homePath. An empty homePath means
// DefaultHomePath.
func NewSessionManager(log *slog.Logger, runner procutils.Runner, bins Binaries, homePath string) *SessionManager {
	if homePath == "" {
		homePath = DefaultHomePath()
	}
	return &SessionManager{
		log:        log,
		runner:     runner,
		bins:       bins,
		homePath:   homePath,
		agentGrace: DefaultAgentGrace,
	}
}

// HomePath returns the fixed session home.
func (m *SessionManager) HomePath() string {
	return m.homePath
}

// Open stops any running agent, recreates the home directory empty and
// starts a new agent bound to it. On failure nothing is left behind.
func (m *SessionManager) Open(ctx context.Context, skipPermissionHardening bool) (*Session, error) {
	// A stale agent could still be serving the same home.
	kill := procutils.Command{Name: m.bins.GPGConf, Args: []string{"--kill", "gpg-agent"}}
	if err := m.runner.Run(ctx, kill); err != nil {
		return nil, fmt.Errorf("%w: could not stop running gpg-agent: %w", interfaces.ErrSessionInit, err)
	}

	if err := os.RemoveAll(m.homePath); err != nil {
		return nil, fmt.Errorf("%w: could not remove stale home: %w", interfaces.ErrSessionInit, err)
	}
	if err := os.MkdirAll(m.homePath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: could not create home: %w", interfaces.ErrSessionInit, err)
	}

	if !skipPermissionHardening {
		if err := os.Chmod(m.homePath, 0o700); err != nil {
			m.log.Warn("Could not restrict gnupg home permissions", "err", err, "home", m.homePath)
		}
	}

	agentCmd := procutils.Command{
		Name: m.bins.Agent,
		Args: []string{"--homedir", m.homePath, "--daemon", "--no-detach"},
	}
	agent, err := m.runner.Start(ctx, agentCmd)
	if err != nil {
		if rmErr := os.RemoveAll(m.homePath); rmErr != nil {
			m.log.Error("Could not remove gnupg home after failed agent start", "err", rmErr, "home", m.homePath)
		}
		return nil, fmt.Errorf("%w: could not start gpg-agent: %w", interfaces.ErrSessionInit, err)
	}

	m.log.Debug("GnuPG session opened", "home", m.homePath, "agent_pid", agent.Pid())
	return &Session{HomePath: m.homePath, agent: agent}, nil
}

// Close terminates the session's agent and removes its home. It reports
// ErrSessionTeardown if either step fails. Closing an already closed
// session is a no-op.
func (m *SessionManager) Close(ctx context.Context, s *Session) error {
	if s == nil || s.closed.Load() {
		return nil
	}

	var errs []error
	if s.agent != nil {
		if err := procutils.Terminate(s.agent, m.agentGrace); err != nil {
			errs = append(errs, fmt.Errorf("could not terminate gpg-agent: %w", err))
		}
	}

	// Catches agents gpg may have auto-started for this home.
	kill := procutils.Command{Name: m.bins.GPGConf, Args: []string{"--homedir", s.HomePath, "--kill", "gpg-agent"}}
	if err := m.runner.Run(ctx, kill); err != nil {
		m.log.Debug("gpgconf kill for session home failed", "err", err)
	}

	if err := os.RemoveAll(s.HomePath); err != nil {
		errs = append(errs, fmt.Errorf("could not remove gnupg home: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", interfaces.ErrSessionTeardown, errors.Join(errs...))
	}

	s.closed.Store(true)
	m.log.Debug("GnuPG session closed", "home", s.HomePath)
	return nil
}
