package procutils

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/sys/unix"
)

// Process is a handle on a background process started by Runner.Start.
type Process interface {
	// Pid returns the process id, which is also its process group id.
	Pid() int

	// Signal delivers sig to the whole process group.
	Signal(sig unix.Signal) error

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// Err returns the exit error after Done is closed.
	Err() error
}

type execProcess struct {
	cmd    Command
	pid    int
	stderr *lockedBuffer
	done   chan struct{}
	err    error
}

func newExecProcess(cmd Command, c interface{ Wait() error }, pid int, stderr *lockedBuffer) *execProcess {
	p := &execProcess{
		cmd:    cmd,
		pid:    pid,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		if err := c.Wait(); err != nil {
			p.err = exitError(cmd, err, stderr.Bytes())
		}
		close(p.done)
	}()
	return p
}

func (p *execProcess) Pid() int { return p.pid }

func (p *execProcess) Signal(sig unix.Signal) error {
	err := unix.Kill(-p.pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	<-p.done
	return p.err
}

// Terminate sends SIGTERM to the process group, escalating to SIGKILL if
// it has not exited within grace. It returns once the process is reaped.
// The exit status of a terminated process is not an error.
func Terminate(p Process, grace time.Duration) error {
	select {
	case <-p.Done():
		return nil
	default:
	}

	if err := p.Signal(unix.SIGTERM); err != nil {
		return err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.Done():
		return nil
	case <-timer.C:
	}

	if err := p.Signal(unix.SIGKILL); err != nil {
		return err
	}
	<-p.Done()
	return nil
}

// lockedBuffer is a bytes.Buffer safe for the exec copy goroutine and a
// concurrent reader.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Long-lived daemons may log indefinitely; keep only the tail.
	if b.buf.Len() > 4*maxStderr {
		tail := append([]byte(nil), b.buf.Bytes()[b.buf.Len()-maxStderr:]...)
		b.buf.Reset()
		b.buf.Write(tail)
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// MockProcess implements Process for testing. Call Exit to simulate the
// process terminating.
type MockProcess struct {
	mock.Mock
	once sync.Once
	done chan struct{}
	err  error
}

// NewMockProcess creates a running mock process.
func NewMockProcess() *MockProcess {
	return &MockProcess{done: make(chan struct{})}
}

// Exit marks the process as exited with err.
func (m *MockProcess) Exit(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.done)
	})
}

func (m *MockProcess) Pid() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockProcess) Signal(sig unix.Signal) error {
	args := m.Called(sig)
	return args.Error(0)
}

func (m *MockProcess) Done() <-chan struct{} { return m.done }

func (m *MockProcess) Err() error {
	<-m.done
	return m.err
}

var _ Process = (*execProcess)(nil)
var _ Process = (*MockProcess)(nil)
