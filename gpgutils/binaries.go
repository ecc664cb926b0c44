package gpgutils

import (
	"fmt"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
)

// LookPathFunc resolves a binary name, usually exec.LookPath.
type LookPathFunc func(file string) (string, error)

// Binaries holds the resolved paths of the GnuPG tools.
type Binaries struct {
	GPG     string
	Agent   string
	GPGConf string
}

// gpgCandidates are tried in order; gpg2 is preferred where both exist.
var gpgCandidates = []string{"gpg2", "gpg"}

// ResolveBinaries locates gpg (or gpg2), gpg-agent and gpgconf.
func ResolveBinaries(lookPath LookPathFunc) (Binaries, error) {
	var bins Binaries
	for _, name := range gpgCandidates {
		if path, err := lookPath(name); err == nil {
			bins.GPG = path
			break
		}
	}
	if bins.GPG == "" {
		return Binaries{}, fmt.Errorf("%w: none of %v found on PATH", interfaces.ErrExternalTool, gpgCandidates)
	}

	var err error
	if bins.Agent, err = lookPath("gpg-agent"); err != nil {
		return Binaries{}, fmt.Errorf("%w: gpg-agent: %w", interfaces.ErrExternalTool, err)
	}
	if bins.GPGConf, err = lookPath("gpgconf"); err != nil {
		return Binaries{}, fmt.Errorf("%w: gpgconf: %w", interfaces.ErrExternalTool, err)
	}

	return bins, nil
}
