// Package cryptoutils validates the public artifacts exported from GnuPG and
// loads trust anchors for the job-source connection.
//
// It performs no key generation of its own. ParseArmoredPublicKey and
// ParseSSHPublicKey only check that the exported bytes are well-formed and
// extract the identifiers reported upstream.
package cryptoutils
