package interfaces

import "context"

// JobSource is the remote service that hands out provisioning jobs and
// receives their outcomes.
type JobSource interface {
	// RegisterWorker announces the worker. Returns ErrAlreadyRegistered if the
	// id is already known to the job source.
	RegisterWorker(ctx context.Context, workerID string) error

	// GetJob returns the next job for the worker, or nil if none is pending.
	GetJob(ctx context.Context, workerID string) (*Job, error)

	// ReportJobResult delivers the outcome of a job.
	ReportJobResult(ctx context.Context, workerID, jobID string, outcome JobOutcome) error
}

// Provisioner runs the full provisioning pipeline for one job.
type Provisioner interface {
	Provision(ctx context.Context, job Job) (*ProvisioningResult, error)
}
