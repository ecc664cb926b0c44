package api

import (
	"fmt"
	"net/url"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
)

const (
	// AuthorizationHeader carries the worker's bearer token.
	AuthorizationHeader = "Authorization"

	// RequestIDHeader correlates worker and job-source logs.
	RequestIDHeader = "X-Request-Id"

	// RegisterPath is the worker registration endpoint.
	RegisterPath = "/api/v1/worker/register"
)

// JobPath returns the job fetch endpoint of a worker.
func JobPath(workerID string) string {
	return fmt.Sprintf("/api/v1/worker/%s/job", url.PathEscape(workerID))
}

// JobStatusPath returns the result report endpoint of a job.
func JobStatusPath(workerID, jobID string) string {
	return fmt.Sprintf("/api/v1/worker/%s/job/%s/status", url.PathEscape(workerID), url.PathEscape(jobID))
}

// RegisterWorkerRequest announces a worker to the job source.
type RegisterWorkerRequest struct {
	ID string `json:"id"`
}

// JobStatusRequest reports the outcome of a job.
type JobStatusRequest struct {
	Success bool `json:"success"`

	// Set on success.
	PublicKey   string `json:"public_key,omitempty"`
	SSHKey      string `json:"ssh_key,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	TokenSerial string `json:"token_serial,omitempty"`

	// Set on failure.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// NewJobStatusRequest converts an outcome to its wire form.
func NewJobStatusRequest(outcome interfaces.JobOutcome) JobStatusRequest {
	if outcome.Success() {
		return JobStatusRequest{
			Success:     true,
			PublicKey:   outcome.Result.ArmoredPublicKey,
			SSHKey:      outcome.Result.SSHPublicKey,
			Fingerprint: outcome.Result.Fingerprint,
			TokenSerial: outcome.Result.TokenSerial.String(),
		}
	}
	return JobStatusRequest{
		Error:     outcome.Message,
		ErrorKind: string(outcome.Kind),
	}
}

// Outcome converts the wire form back to an outcome.
func (r JobStatusRequest) Outcome() interfaces.JobOutcome {
	if r.Success {
		return interfaces.Succeeded(&interfaces.ProvisioningResult{
			ArmoredPublicKey: r.PublicKey,
			SSHPublicKey:     r.SSHKey,
			Fingerprint:      r.Fingerprint,
			TokenSerial:      interfaces.Serial(r.TokenSerial),
		})
	}
	return interfaces.JobOutcome{Kind: interfaces.ErrorKind(r.ErrorKind), Message: r.Error}
}
