// Package interfaces defines the core types and contracts of the smartcard
// provisioning worker, separating them from their implementations.
//
// # Data Model
//
//   - Job: a provisioning request (job id, subject name and email)
//   - ProvisioningResult: armored public key, SSH public key, token serial
//     and key fingerprint of a successful run
//   - JobOutcome: exactly one success or failure per Job, as reported upstream
//
// # Errors
//
// Every failure the pipeline can produce wraps one of the sentinel errors
// declared here (ErrNoTokenFound, ErrMultipleTokensPresent, ...). KindOf maps
// an error to the ErrorKind reported to the job source. When a session
// teardown fails after a primary failure both are joined, primary first, and
// KindOf reports the primary kind.
//
// # Collaborators
//
//   - JobSource: remote job-source transport (register, fetch, report)
//   - Provisioner: the provisioning pipeline as seen by the job loop
//   - ArtifactBackend / ArtifactBackendFactory: optional archive of public
//     artifacts (file, S3, Vault)
package interfaces
