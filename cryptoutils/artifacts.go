package cryptoutils

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"golang.org/x/crypto/openpgp" //nolint:staticcheck // only used to parse exported public keys
	"golang.org/x/crypto/ssh"
)

// ArmoredKeyInfo describes a parsed ASCII-armored OpenPGP public key.
type ArmoredKeyInfo struct {
	// Fingerprint of the primary key, upper-case hex without spaces.
	Fingerprint string

	// KeyID is the long key id of the primary key.
	KeyID string

	// Identities are the user ids bound to the key, sorted.
	Identities []string

	// Subkeys is the number of subkeys carried by the key.
	Subkeys int
}

// SSHKeyInfo describes a parsed authorized_keys line.
type SSHKeyInfo struct {
	Type        string
	Comment     string
	Fingerprint string
}

// ParseArmoredPublicKey parses the output of "gpg --armor --export". It
// requires exactly one key.
func ParseArmoredPublicKey(data []byte) (*ArmoredKeyInfo, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty armored public key", interfaces.ErrInvalidArtifact)
	}

	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse armored public key: %w", interfaces.ErrInvalidArtifact, err)
	}
	if len(entities) != 1 {
		return nil, fmt.Errorf("%w: expected one public key, got %d", interfaces.ErrInvalidArtifact, len(entities))
	}

	entity := entities[0]
	identities := make([]string, 0, len(entity.Identities))
	for name := range entity.Identities {
		identities = append(identities, name)
	}
	sort.Strings(identities)

	return &ArmoredKeyInfo{
		Fingerprint: strings.ToUpper(hex.EncodeToString(entity.PrimaryKey.Fingerprint[:])),
		KeyID:       entity.PrimaryKey.KeyIdString(),
		Identities:  identities,
		Subkeys:     len(entity.Subkeys),
	}, nil
}

// ParseSSHPublicKey parses the output of "gpg --export-ssh-key".
func ParseSSHPublicKey(data []byte) (*SSHKeyInfo, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty ssh public key", interfaces.ErrInvalidArtifact)
	}

	pub, comment, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse ssh public key: %w", interfaces.ErrInvalidArtifact, err)
	}

	return &SSHKeyInfo{
		Type:        pub.Type(),
		Comment:     comment,
		Fingerprint: ssh.FingerprintSHA256(pub),
	}, nil
}
