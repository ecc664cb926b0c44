package gpgutils

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyLength is the RSA modulus size of the primary key and the subkey.
const KeyLength = 4096

// SubkeyUsages lists the card slots in order: signature, encryption and
// authentication. Both dialogues are built from it.
var SubkeyUsages = [...]string{"sign", "encrypt", "auth"}

// SubkeyCount is the number of subkey transfers in the key-to-card dialogue.
const SubkeyCount = len(SubkeyUsages)

// KeyGenScript returns the unattended key generation parameters for
// "gpg --batch --full-gen-key". The key has no passphrase and never expires.
func KeyGenScript(fullName, email string) string {
	var b strings.Builder
	b.WriteString("%no-protection\n")
	b.WriteString("Key-Type: RSA\n")
	fmt.Fprintf(&b, "Key-Length: %d\n", KeyLength)
	fmt.Fprintf(&b, "Name-Real: %s\n", fullName)
	fmt.Fprintf(&b, "Name-Email: %s\n", email)
	b.WriteString("Expire-Date: 0\n")
	b.WriteString("Subkey-Type: RSA\n")
	fmt.Fprintf(&b, "Subkey-Length: %d\n", KeyLength)
	fmt.Fprintf(&b, "Subkey-Usage: %s\n", strings.Join(SubkeyUsages[:], ", "))
	b.WriteString("%commit\n")
	return b.String()
}

// KeyToCardScript returns the "gpg --edit-key" dialogue moving the subkeys
// to the token: the admin PIN, then "key i", "keytocard" and the card slot
// for each slot in order, then "save". Only the PIN varies.
func KeyToCardScript(adminPIN string) string {
	lines := make([]string, 0, 2+3*SubkeyCount)
	lines = append(lines, adminPIN)
	for slot := 1; slot <= SubkeyCount; slot++ {
		lines = append(lines, "key "+strconv.Itoa(slot), "keytocard", strconv.Itoa(slot))
	}
	lines = append(lines, "save")
	return strings.Join(lines, "\n") + "\n"
}
