package procutils

import (
	"fmt"
	"strings"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
)

// maxStderr bounds the amount of stderr kept on an ExitError.
const maxStderr = 4096

// Command describes a single external tool invocation.
type Command struct {
	// Name is the binary, resolved through PATH if not absolute.
	Name string

	// Args are passed verbatim.
	Args []string

	// Env entries are appended to the worker's own environment.
	Env []string

	// Dir is the working directory. Empty means the worker's.
	Dir string
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ExitError reports an external command that could not be spawned or
// exited unsuccessfully. It matches interfaces.ErrExternalTool.
type ExitError struct {
	// Command is the rendered command line.
	Command string

	// ExitCode is the process exit code, -1 if the process never ran or
	// was killed by a signal.
	ExitCode int

	// Stderr is the trimmed tail of the captured standard error.
	Stderr string

	// Err is the underlying os/exec error.
	Err error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += fmt.Sprintf(" (stderr: %s)", e.Stderr)
	}
	return msg
}

// Unwrap exposes both the ErrExternalTool sentinel and the os/exec error.
func (e *ExitError) Unwrap() []error {
	return []error{interfaces.ErrExternalTool, e.Err}
}

func trimStderr(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return s
}
