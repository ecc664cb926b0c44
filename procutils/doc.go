// Package procutils runs the external tools the provisioning pipeline is
// built on (ykman, gpg, gpg-agent, gpgconf).
//
// Three invocation shapes are supported:
//
//   - Output: argument-driven commands whose stdout is read back
//   - RunScripted: interactive commands driven by a pre-built script fed to
//     stdin from a dedicated writer goroutine while the caller waits for exit
//   - Start: background daemons placed in their own process group so they
//     can be terminated together with anything they fork
//
// The exit status is the only control signal. Standard error is captured and
// attached to ExitError for operators, never parsed.
package procutils
