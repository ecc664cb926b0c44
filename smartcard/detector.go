package smartcard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/ruteri/smartcard-provisioning-worker/procutils"
	"github.com/stretchr/testify/mock"
)

// DefaultAdminPIN is the OpenPGP admin PIN of a factory-reset token.
const DefaultAdminPIN = "12345678"

// DefaultToolName is the token-management binary looked up on PATH.
const DefaultToolName = "ykman"

const serialLabel = "Serial:"

// Detector finds attached tokens and resets them.
type Detector struct {
	log    *slog.Logger
	runner procutils.Runner
	tool   string
}

// NewDetector creates a Detector invoking tool (usually DefaultToolName or
// its resolved absolute path) through runner.
func NewDetector(log *slog.Logger, runner procutils.Runner, tool string) *Detector {
	return &Detector{log: log, runner: runner, tool: tool}
}

// Detect lists attached tokens and returns the serial of the single one.
func (d *Detector) Detect(ctx context.Context) (interfaces.Serial, error) {
	out, err := d.runner.Output(ctx, procutils.Command{Name: d.tool, Args: []string{"list"}})
	if err != nil {
		return "", fmt.Errorf("could not list tokens: %w", err)
	}

	serial, err := ParseTokenList(string(out))
	if err != nil {
		return "", err
	}

	d.log.Debug("Token detected", "serial", serial)
	return serial, nil
}

// FactoryReset resets the OpenPGP application of the attached token.
func (d *Detector) FactoryReset(ctx context.Context) error {
	err := d.runner.Run(ctx, procutils.Command{Name: d.tool, Args: []string{"openpgp", "reset", "-f"}})
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrTokenReset, err)
	}
	return nil
}

// ParseTokenList classifies the output of "ykman list". Lines may end in
// "\n" or "\r\n"; blank lines are ignored.
func ParseTokenList(output string) (interfaces.Serial, error) {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	switch len(lines) {
	case 0:
		return "", interfaces.ErrNoTokenFound
	case 1:
		return parseSerial(lines[0])
	default:
		return "", fmt.Errorf("%w: %d tokens listed", interfaces.ErrMultipleTokensPresent, len(lines))
	}
}

func parseSerial(line string) (interfaces.Serial, error) {
	_, rest, found := strings.Cut(line, serialLabel)
	if !found {
		return "", fmt.Errorf("%w: %q", interfaces.ErrSerialNotFound, line)
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty serial in %q", interfaces.ErrSerialNotFound, line)
	}
	return interfaces.Serial(fields[0]), nil
}

// MockDetector implements interfaces.TokenDetector for testing.
type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Detect(ctx context.Context) (interfaces.Serial, error) {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.Serial), args.Error(1)
}

func (m *MockDetector) FactoryReset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var _ interfaces.TokenDetector = (*Detector)(nil)
var _ interfaces.TokenDetector = (*MockDetector)(nil)
