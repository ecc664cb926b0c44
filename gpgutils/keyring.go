package gpgutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/smartcard-provisioning-worker/procutils"
)

// Keyring runs gpg key operations inside a Session.
type Keyring struct {
	log        *slog.Logger
	runner     procutils.Runner
	gpg        string
	debugLevel string
}

// NewKeyring creates a Keyring using the gpg binary at gpg. A non-empty
// debugLevel is forwarded as --debug-level.
func NewKeyring(log *slog.Logger, runner procutils.Runner, gpg, debugLevel string) *Keyring {
	return &Keyring{log: log, runner: runner, gpg: gpg, debugLevel: debugLevel}
}

func (k *Keyring) command(s *Session, args ...string) procutils.Command {
	full := []string{"--homedir", s.HomePath}
	if k.debugLevel != "" {
		full = append(full, "--debug-level", k.debugLevel)
	}
	return procutils.Command{Name: k.gpg, Args: append(full, args...)}
}

// GenerateKey creates an unprotected RSA key for the identity.
func (k *Keyring) GenerateKey(ctx context.Context, s *Session, fullName, email string) error {
	cmd := k.command(s, "--batch", "--command-fd", "0", "--full-gen-key")
	if err := k.runner.RunScripted(ctx, cmd, KeyGenScript(fullName, email)); err != nil {
		return fmt.Errorf("could not generate key for %s: %w", email, err)
	}
	k.log.Debug("Key generated", "email", email)
	return nil
}

// ExportArmored returns the ASCII-armored public key of the identity.
func (k *Keyring) ExportArmored(ctx context.Context, s *Session, email string) ([]byte, error) {
	out, err := k.runner.Output(ctx, k.command(s, "--armor", "--export", email))
	if err != nil {
		return nil, fmt.Errorf("could not export public key: %w", err)
	}
	return out, nil
}

// ExportSSH returns the authentication key of the identity in
// authorized_keys format.
func (k *Keyring) ExportSSH(ctx context.Context, s *Session, email string) ([]byte, error) {
	out, err := k.runner.Output(ctx, k.command(s, "--export-ssh-key", email))
	if err != nil {
		return nil, fmt.Errorf("could not export ssh key: %w", err)
	}
	return out, nil
}

// KeyToCard moves the subkeys of the identity onto the token.
func (k *Keyring) KeyToCard(ctx context.Context, s *Session, email, adminPIN string) error {
	cmd := k.command(s,
		"--command-fd=0",
		"--status-fd=1",
		"--passphrase-fd=0",
		"--batch",
		"--yes",
		"--pinentry-mode=loopback",
		"--no-tty",
		"--edit-key", email,
	)
	cmd.Env = []string{"LANG=en"}
	if err := k.runner.RunScripted(ctx, cmd, KeyToCardScript(adminPIN)); err != nil {
		return fmt.Errorf("could not move subkeys to token: %w", err)
	}
	k.log.Debug("Subkeys moved to token", "email", email, "subkeys", SubkeyCount)
	return nil
}
