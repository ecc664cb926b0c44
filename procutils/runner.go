package procutils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/stretchr/testify/mock"
)

// DefaultWaitDelay bounds how long Wait keeps reading output pipes after the
// process exited. gpg may leave helpers running that inherited them.
const DefaultWaitDelay = 5 * time.Second

// Runner abstracts external command execution so the pipeline can be
// exercised without the real tools.
type Runner interface {
	// Run executes the command and waits for it.
	Run(ctx context.Context, cmd Command) error

	// Output executes the command and returns its stdout.
	Output(ctx context.Context, cmd Command) ([]byte, error)

	// RunScripted executes the command with script fed to its stdin.
	RunScripted(ctx context.Context, cmd Command, script string) error

	// Start launches a background process in its own process group. The
	// process is not bound to ctx; stop it with Terminate.
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	log       *slog.Logger
	waitDelay time.Duration
}

// NewExecRunner creates a runner logging command lines at debug level.
func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{log: log, waitDelay: DefaultWaitDelay}
}

func (r *ExecRunner) command(ctx context.Context, cmd Command) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Dir = cmd.Dir
	c.WaitDelay = r.waitDelay
	return c
}

// Run executes the command, discarding stdout.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	_, err := r.Output(ctx, cmd)
	return err
}

// Output executes the command and returns its stdout. Stderr is captured
// separately and attached to the error on failure.
func (r *ExecRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	r.log.Debug("Running command", "cmd", cmd.String())

	var stdout, stderr bytes.Buffer
	c := r.command(ctx, cmd)
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := waitResult(c.Run()); err != nil {
		return nil, exitError(cmd, err, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}

// RunScripted starts the command with stdin connected to a pipe. A writer
// goroutine feeds the whole script and closes the pipe while this goroutine
// waits for the process: the tool may answer prompts before all input is
// written and the pipe buffer is bounded.
func (r *ExecRunner) RunScripted(ctx context.Context, cmd Command, script string) error {
	r.log.Debug("Running scripted command", "cmd", cmd.String(), "script_bytes", len(script))

	var stdout, stderr bytes.Buffer
	c := r.command(ctx, cmd)
	c.Stdout = &stdout
	c.Stderr = &stderr

	stdin, err := c.StdinPipe()
	if err != nil {
		return exitError(cmd, err, nil)
	}

	if err := c.Start(); err != nil {
		stdin.Close()
		return exitError(cmd, err, nil)
	}

	writeDone := make(chan error, 1)
	go func() {
		_, err := io.WriteString(stdin, script)
		if closeErr := stdin.Close(); err == nil {
			err = closeErr
		}
		writeDone <- err
	}()

	waitErr := waitResult(c.Wait())
	// Wait closes the pipe once the process is gone, so the writer is never
	// left blocked here.
	writeErr := <-writeDone

	if waitErr != nil {
		return exitError(cmd, waitErr, stderr.Bytes())
	}
	if writeErr != nil && !errors.Is(writeErr, os.ErrClosed) {
		// The tool exited successfully without consuming the whole script.
		r.log.Debug("Script not fully consumed", "cmd", cmd.String(), "err", writeErr)
	}
	r.log.Debug("Scripted command finished", "cmd", cmd.String(), "stdout_bytes", stdout.Len())
	return nil
}

// Start launches a background process in a new process group.
func (r *ExecRunner) Start(ctx context.Context, cmd Command) (Process, error) {
	r.log.Debug("Starting background command", "cmd", cmd.String())

	var stderr lockedBuffer
	c := exec.Command(cmd.Name, cmd.Args...)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Dir = cmd.Dir
	c.Stderr = &stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		return nil, exitError(cmd, err, nil)
	}

	return newExecProcess(cmd, c, c.Process.Pid, &stderr), nil
}

// waitResult treats exec.ErrWaitDelay as success: the process itself exited
// cleanly and only an inherited output pipe was still open.
func waitResult(err error) error {
	if errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

func exitError(cmd Command, err error, stderr []byte) *ExitError {
	exitCode := -1
	var execErr *exec.ExitError
	if errors.As(err, &execErr) {
		exitCode = execErr.ExitCode()
	}
	return &ExitError{
		Command:  cmd.String(),
		ExitCode: exitCode,
		Stderr:   trimStderr(stderr),
		Err:      err,
	}
}

// MockRunner implements Runner for testing.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, cmd Command) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *MockRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRunner) RunScripted(ctx context.Context, cmd Command, script string) error {
	args := m.Called(ctx, cmd, script)
	return args.Error(0)
}

func (m *MockRunner) Start(ctx context.Context, cmd Command) (Process, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Process), args.Error(1)
}

var _ Runner = (*ExecRunner)(nil)
var _ Runner = (*MockRunner)(nil)
