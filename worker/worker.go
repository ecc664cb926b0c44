// Package worker implements the job loop: poll the job source on a fixed
// interval, provision each received job synchronously and report exactly one
// outcome per job.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/ruteri/smartcard-provisioning-worker/metrics"
	"github.com/ruteri/smartcard-provisioning-worker/storage"
	"go.uber.org/atomic"
)

// DefaultReportTimeout bounds the outcome report sent after shutdown began.
const DefaultReportTimeout = 10 * time.Second

// Config parameterizes the job loop.
type Config struct {
	WorkerID      string
	PollInterval  time.Duration
	ReportTimeout time.Duration
}

// Validate reports interfaces.ErrInvalidConfig for unusable settings.
func (c Config) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("%w: empty worker id", interfaces.ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", interfaces.ErrInvalidConfig, c.PollInterval)
	}
	return nil
}

// Status is a snapshot of the worker for the status endpoint.
type Status struct {
	WorkerID      string    `json:"worker_id"`
	Registered    bool      `json:"registered"`
	Busy          bool      `json:"busy"`
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	Stage         string    `json:"stage,omitempty"`
	LastJobID     string    `json:"last_job_id,omitempty"`
	LastOutcome   string    `json:"last_outcome,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	JobsSucceeded int64     `json:"jobs_succeeded"`
	JobsFailed    int64     `json:"jobs_failed"`
	LastPoll      time.Time `json:"last_poll,omitempty"`
}

// Worker runs the job loop. Jobs never overlap.
type Worker struct {
	log         *slog.Logger
	cfg         Config
	source      interfaces.JobSource
	provisioner interfaces.Provisioner
	archive     interfaces.ArtifactBackend

	registered   atomic.Bool
	busy         atomic.Bool
	currentJobID atomic.String
	stage        atomic.String
	lastJobID    atomic.String
	lastOutcome  atomic.String
	lastError    atomic.String
	succeeded    atomic.Int64
	failed       atomic.Int64
	lastPoll     atomic.Time
}

// New creates a worker. archive may be nil to disable artifact archiving.
func New(log *slog.Logger, cfg Config, source interfaces.JobSource, provisioner interfaces.Provisioner, archive interfaces.ArtifactBackend) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReportTimeout == 0 {
		cfg.ReportTimeout = DefaultReportTimeout
	}
	return &Worker{
		log:         log.With("worker_id", cfg.WorkerID),
		cfg:         cfg,
		source:      source,
		provisioner: provisioner,
		archive:     archive,
	}, nil
}

// Register announces the worker. An already registered worker id is fine.
func (w *Worker) Register(ctx context.Context) error {
	err := w.source.RegisterWorker(ctx, w.cfg.WorkerID)
	switch {
	case err == nil:
		w.log.Info("Worker registered")
	case errors.Is(err, interfaces.ErrAlreadyRegistered):
		w.log.Info("Worker already registered")
	default:
		metrics.JobSourceError("register")
		return fmt.Errorf("could not register worker: %w", err)
	}
	w.registered.Store(true)
	return nil
}

// Run polls for jobs until ctx is cancelled. The first poll happens
// immediately.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Job loop started", "poll_interval", w.cfg.PollInterval)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.PollOnce(ctx)

		select {
		case <-ctx.Done():
			w.log.Info("Job loop stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce fetches at most one job and processes it. It reports whether a
// job was processed.
func (w *Worker) PollOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	w.lastPoll.Store(time.Now())

	job, err := w.source.GetJob(ctx, w.cfg.WorkerID)
	if err != nil {
		if ctx.Err() == nil {
			metrics.JobSourceError("get_job")
			w.log.Error("Could not fetch job", "err", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	w.process(ctx, *job)
	return true
}

// SetStage records the pipeline stage of the running job.
func (w *Worker) SetStage(jobID, stage string) {
	if w.currentJobID.Load() == jobID {
		w.stage.Store(stage)
	}
}

func (w *Worker) process(ctx context.Context, job interfaces.Job) {
	log := w.log.With("job_id", job.JobID)
	log.Info("Job received")

	w.currentJobID.Store(job.JobID)
	w.busy.Store(true)
	metrics.SetBusy(true)
	defer func() {
		w.busy.Store(false)
		metrics.SetBusy(false)
		w.currentJobID.Store("")
		w.stage.Store("")
	}()

	start := time.Now()
	var outcome interfaces.JobOutcome
	result, err := w.provisioner.Provision(ctx, job)
	if err != nil {
		outcome = interfaces.Failed(err)
		log.Error("Provisioning failed", "err", err, "kind", outcome.Kind, "duration", time.Since(start))
	} else {
		outcome = interfaces.Succeeded(result)
		log.Info("Provisioning succeeded", "serial", result.TokenSerial, "fingerprint", result.Fingerprint, "duration", time.Since(start))
		w.archiveResult(ctx, log, job.JobID, result)
	}

	w.recordOutcome(job.JobID, outcome)
	w.report(ctx, log, job.JobID, outcome)
}

func (w *Worker) archiveResult(ctx context.Context, log *slog.Logger, jobID string, result *interfaces.ProvisioningResult) {
	if w.archive == nil {
		return
	}
	if err := storage.ArchiveResult(ctx, w.archive, jobID, result); err != nil {
		metrics.ArchiveError()
		log.Error("Could not archive artifacts", "err", err, "backend", w.archive.Name())
	}
}

func (w *Worker) recordOutcome(jobID string, outcome interfaces.JobOutcome) {
	metrics.JobCompleted(string(outcome.Kind))
	w.lastJobID.Store(jobID)
	if outcome.Success() {
		w.succeeded.Inc()
		w.lastOutcome.Store("success")
		w.lastError.Store("")
		return
	}
	w.failed.Inc()
	w.lastOutcome.Store(string(outcome.Kind))
	w.lastError.Store(outcome.Message)
}

// report delivers the outcome even when shutdown already cancelled ctx.
func (w *Worker) report(ctx context.Context, log *slog.Logger, jobID string, outcome interfaces.JobOutcome) {
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ReportTimeout)
	defer cancel()

	if err := w.source.ReportJobResult(reportCtx, w.cfg.WorkerID, jobID, outcome); err != nil {
		metrics.JobSourceError("report")
		log.Error("Could not report job result", "err", err)
		return
	}
	log.Debug("Job result reported", "success", outcome.Success())
}

// Ready reports whether the worker registered with the job source.
func (w *Worker) Ready() bool {
	return w.registered.Load()
}

// Status returns a snapshot of the worker state.
func (w *Worker) Status() Status {
	return Status{
		WorkerID:      w.cfg.WorkerID,
		Registered:    w.registered.Load(),
		Busy:          w.busy.Load(),
		CurrentJobID:  w.currentJobID.Load(),
		Stage:         w.stage.Load(),
		LastJobID:     w.lastJobID.Load(),
		LastOutcome:   w.lastOutcome.Load(),
		LastError:     w.lastError.Load(),
		JobsSucceeded: w.succeeded.Load(),
		JobsFailed:    w.failed.Load(),
		LastPoll:      w.lastPoll.Load(),
	}
}
