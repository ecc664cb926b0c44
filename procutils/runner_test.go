package procutils

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestRunner() *ExecRunner {
	return NewExecRunner(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sh(script string, args ...string) Command {
	return Command{Name: "sh", Args: append([]string{"-c", script}, args...)}
}

func TestOutput(t *testing.T) {
	r := newTestRunner()

	out, err := r.Output(context.Background(), sh("echo hello; echo ignored >&2"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestOutputEnv(t *testing.T) {
	r := newTestRunner()

	cmd := sh(`printf "%s" "$LANG"`)
	cmd.Env = []string{"LANG=en"}
	out, err := r.Output(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "en", string(out))
}

func TestExitError(t *testing.T) {
	r := newTestRunner()

	tests := []struct {
		name       string
		cmd        Command
		exitCode   int
		stderrPart string
	}{
		{
			name:       "non-zero exit",
			cmd:        sh("echo card error >&2; exit 3"),
			exitCode:   3,
			stderrPart: "card error",
		},
		{
			name:     "missing binary",
			cmd:      Command{Name: "definitely-not-a-real-tool-xyz"},
			exitCode: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Run(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, interfaces.ErrExternalTool)
			assert.Equal(t, interfaces.KindExternalTool, interfaces.KindOf(err))

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, tt.exitCode, exitErr.ExitCode)
			assert.Contains(t, exitErr.Stderr, tt.stderrPart)
			assert.Contains(t, exitErr.Command, tt.cmd.Name)
		})
	}
}

func TestRunScripted(t *testing.T) {
	r := newTestRunner()
	out := filepath.Join(t.TempDir(), "stdin.txt")

	script := "1234\nkey 1\nkeytocard\n1\nsave\n"
	err := r.RunScripted(context.Background(), sh(`cat > "$0"`, out), script)
	require.NoError(t, err)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, script, string(written))
}

func TestRunScriptedLargeInput(t *testing.T) {
	r := newTestRunner()

	// Far larger than any pipe buffer; the tool starts reading late.
	script := strings.Repeat("0123456789abcdef\n", 1<<16)

	done := make(chan error, 1)
	go func() {
		done <- r.RunScripted(context.Background(), sh("sleep 0.2; cat > /dev/null"), script)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("scripted run did not finish")
	}
}

func TestRunScriptedPartialRead(t *testing.T) {
	r := newTestRunner()

	// The tool stops reading early and succeeds: exit status wins.
	script := strings.Repeat("line\n", 1<<16)
	err := r.RunScripted(context.Background(), sh("head -n 1 > /dev/null"), script)
	require.NoError(t, err)
}

func TestRunScriptedFailure(t *testing.T) {
	r := newTestRunner()

	err := r.RunScripted(context.Background(), sh("cat > /dev/null; echo bad pin >&2; exit 2"), "0000\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrExternalTool)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.ExitCode)
	assert.Equal(t, "bad pin", exitErr.Stderr)
}

func TestRunScriptedCanceled(t *testing.T) {
	r := newTestRunner()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := r.RunScripted(ctx, sh("sleep 30"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrExternalTool)
}

func TestStartAndTerminate(t *testing.T) {
	r := newTestRunner()

	p, err := r.Start(context.Background(), sh("sleep 30"))
	require.NoError(t, err)
	require.Greater(t, p.Pid(), 0)

	select {
	case <-p.Done():
		t.Fatal("process exited early")
	default:
	}

	require.NoError(t, Terminate(p, 5*time.Second))

	select {
	case <-p.Done():
	default:
		t.Fatal("process not reaped after Terminate")
	}

	// Terminating an exited process is a no-op.
	require.NoError(t, Terminate(p, time.Second))
}

func TestTerminateEscalates(t *testing.T) {
	r := newTestRunner()

	p, err := r.Start(context.Background(), sh(`trap "" TERM; sleep 30 & wait`))
	require.NoError(t, err)

	// Give the shell time to install the trap.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, Terminate(p, 300*time.Millisecond))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestMockProcessTerminate(t *testing.T) {
	p := NewMockProcess()
	p.On("Signal", unix.SIGTERM).Run(func(_ mock.Arguments) { p.Exit(nil) }).Return(nil)

	require.NoError(t, Terminate(p, time.Second))
	p.AssertExpectations(t)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "ykman list", Command{Name: "ykman", Args: []string{"list"}}.String())
	assert.Equal(t, "gpg", Command{Name: "gpg"}.String())
}
