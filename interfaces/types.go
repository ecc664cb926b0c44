package interfaces

import (
	"fmt"
	"strings"
)

// Serial is the serial number reported by the token-management tool.
type Serial string

// String returns the serial as printed by the token tool.
func (s Serial) String() string {
	return string(s)
}

// Job is a single provisioning request handed out by the job source.
// It is consumed exactly once per pipeline run.
type Job struct {
	JobID     string `json:"job_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// FullName joins first and last name with a single space, the form used as
// the key's Name-Real.
func (j Job) FullName() string {
	return j.FirstName + " " + j.LastName
}

// Validate checks the fields the key-generation dialogue relies on.
// Newlines would inject extra directives into the batch descriptor.
func (j Job) Validate() error {
	if strings.TrimSpace(j.JobID) == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalidJob)
	}
	if strings.TrimSpace(j.Email) == "" {
		return fmt.Errorf("%w: empty email", ErrInvalidJob)
	}
	for name, value := range map[string]string{"first_name": j.FirstName, "last_name": j.LastName, "email": j.Email} {
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%w: %s contains a line break", ErrInvalidJob, name)
		}
	}
	return nil
}

// ProvisioningResult holds the public artifacts of a successful run.
// It is either fully populated or not produced at all.
type ProvisioningResult struct {
	// ArmoredPublicKey is the ASCII-armored OpenPGP public key.
	ArmoredPublicKey string `json:"public_key"`

	// SSHPublicKey is the authentication subkey in authorized_keys format.
	SSHPublicKey string `json:"ssh_key"`

	// TokenSerial is the serial of the token the subkeys were moved to.
	TokenSerial Serial `json:"token_serial"`

	// Fingerprint is the primary key fingerprint, upper-case hex without spaces.
	Fingerprint string `json:"fingerprint"`
}

// JobOutcome is reported upstream exactly once per Job. Exactly one of
// Result or Kind is set.
type JobOutcome struct {
	Result  *ProvisioningResult
	Kind    ErrorKind
	Message string
}

// Succeeded wraps a result into a success outcome.
func Succeeded(result *ProvisioningResult) JobOutcome {
	return JobOutcome{Result: result}
}

// Failed derives a failure outcome from a pipeline error.
func Failed(err error) JobOutcome {
	return JobOutcome{Kind: KindOf(err), Message: err.Error()}
}

// Success reports whether the outcome carries a result.
func (o JobOutcome) Success() bool {
	return o.Result != nil
}
