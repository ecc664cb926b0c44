// Package gpgutils drives GnuPG for the provisioning pipeline.
//
// SessionManager owns the isolated, ephemeral GnuPG home and its dedicated
// gpg-agent. Keyring runs the key operations inside an open Session. The
// interactive dialogues fed to gpg are plain data built by KeyGenScript and
// KeyToCardScript, so they can be inspected without spawning anything.
//
// Binary names are resolved once with ResolveBinaries and injected; nothing in
// this package consults PATH on its own.
package gpgutils
