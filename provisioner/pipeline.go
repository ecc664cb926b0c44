package provisioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/smartcard-provisioning-worker/cryptoutils"
	"github.com/ruteri/smartcard-provisioning-worker/gpgutils"
	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/ruteri/smartcard-provisioning-worker/metrics"
)

// Stage names a pipeline state.
type Stage string

const (
	StageAwaitToken      Stage = "AwaitToken"
	StageSessionOpen     Stage = "SessionOpen"
	StageFactoryReset    Stage = "FactoryReset"
	StageGenerateKey     Stage = "GenerateKey"
	StageExportArtifacts Stage = "ExportArtifacts"
	StageTransferToCard  Stage = "TransferToCard"
	StageSessionClose    Stage = "SessionClose"
	StageDone            Stage = "Done"
)

// SessionManager opens and closes isolated GnuPG sessions.
type SessionManager interface {
	Open(ctx context.Context, skipPermissionHardening bool) (*gpgutils.Session, error)
	Close(ctx context.Context, s *gpgutils.Session) error
}

// KeyManager runs key operations inside a session.
type KeyManager interface {
	GenerateKey(ctx context.Context, s *gpgutils.Session, fullName, email string) error
	ExportArmored(ctx context.Context, s *gpgutils.Session, email string) ([]byte, error)
	ExportSSH(ctx context.Context, s *gpgutils.Session, email string) ([]byte, error)
	KeyToCard(ctx context.Context, s *gpgutils.Session, email, adminPIN string) error
}

// StageObserver is notified when the pipeline enters a stage.
type StageObserver func(jobID string, stage Stage)

// Pipeline provisions one token per Run. Runs must not overlap: the token
// and the session home are single shared resources.
type Pipeline struct {
	log      *slog.Logger
	cfg      Config
	detector interfaces.TokenDetector
	sessions SessionManager
	keys     KeyManager
	observer StageObserver
}

// NewPipeline creates a pipeline. cfg is completed with defaults and
// validated.
func NewPipeline(log *slog.Logger, cfg Config, detector interfaces.TokenDetector, sessions SessionManager, keys KeyManager) (*Pipeline, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		log:      log,
		cfg:      cfg,
		detector: detector,
		sessions: sessions,
		keys:     keys,
	}, nil
}

// SetObserver registers a callback for stage transitions.
func (p *Pipeline) SetObserver(observer StageObserver) {
	p.observer = observer
}

// Provision implements interfaces.Provisioner.
func (p *Pipeline) Provision(ctx context.Context, job interfaces.Job) (*interfaces.ProvisioningResult, error) {
	return p.Run(ctx, job)
}

// Run executes all stages for job. On success the result is fully
// populated; on failure it is nil.
func (p *Pipeline) Run(ctx context.Context, job interfaces.Job) (result *interfaces.ProvisioningResult, err error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	log := p.log.With("job_id", job.JobID)
	log.Info("Provisioning started", "email", job.Email)

	var serial interfaces.Serial
	err = p.stage(log, job.JobID, StageAwaitToken, func() (err error) {
		serial, err = p.awaitToken(ctx, log)
		return err
	})
	if err != nil {
		return nil, err
	}
	log = log.With("serial", serial)

	var session *gpgutils.Session
	err = p.stage(log, job.JobID, StageSessionOpen, func() (err error) {
		session, err = p.sessions.Open(ctx, p.cfg.SkipPermissionHardening)
		return err
	})
	if err != nil {
		return nil, err
	}

	defer func() {
		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.TeardownTimeout)
		defer cancel()

		closeErr := p.stage(log, job.JobID, StageSessionClose, func() error {
			return p.sessions.Close(teardownCtx, session)
		})
		switch {
		case closeErr != nil && err != nil:
			log.Error("Session teardown failed after pipeline failure", "err", closeErr)
			err = errors.Join(err, closeErr)
		case closeErr != nil:
			result, err = nil, closeErr
		case err == nil:
			if p.observer != nil {
				p.observer(job.JobID, StageDone)
			}
			log.Info("Provisioning completed", "fingerprint", result.Fingerprint)
		}
	}()

	err = p.stage(log, job.JobID, StageFactoryReset, func() error {
		return p.detector.FactoryReset(ctx)
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(log, job.JobID, StageGenerateKey, func() error {
		return p.keys.GenerateKey(ctx, session, job.FullName(), job.Email)
	})
	if err != nil {
		return nil, err
	}

	var artifacts *interfaces.ProvisioningResult
	err = p.stage(log, job.JobID, StageExportArtifacts, func() (err error) {
		artifacts, err = p.exportArtifacts(ctx, log, session, job.Email)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(log, job.JobID, StageTransferToCard, func() error {
		return p.keys.KeyToCard(ctx, session, job.Email, p.cfg.AdminPIN)
	})
	if err != nil {
		return nil, err
	}

	artifacts.TokenSerial = serial
	return artifacts, nil
}

// stage runs fn as the named stage, logging and timing the transition.
func (p *Pipeline) stage(log *slog.Logger, jobID string, stage Stage, fn func() error) error {
	if p.observer != nil {
		p.observer(jobID, stage)
	}
	log.Debug("Entering stage", "stage", stage)

	start := time.Now()
	err := fn()
	metrics.ObserveStage(string(stage), time.Since(start), err == nil)
	if err != nil {
		log.Debug("Stage failed", "stage", stage, "err", err)
		return err
	}
	return nil
}

func (p *Pipeline) awaitToken(ctx context.Context, log *slog.Logger) (interfaces.Serial, error) {
	retry := RetryState{MaxAttempts: p.cfg.TokenWaitRetries, Interval: p.cfg.TokenWaitInterval}

	for {
		serial, err := p.detector.Detect(ctx)
		if err == nil {
			return serial, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("token wait aborted: %w", ctx.Err())
		}
		if !interfaces.Retryable(err) {
			return "", err
		}

		retry.Attempts++
		metrics.TokenWaitAttempt()
		if retry.Exhausted() {
			return "", fmt.Errorf("no token after %d checks: %w", retry.Attempts, err)
		}

		log.Info("No token found, waiting", "attempt", retry.Attempts, "max_attempts", retry.MaxAttempts, "interval", retry.Interval)
		if err := sleepCtx(ctx, retry.Interval); err != nil {
			return "", fmt.Errorf("token wait aborted: %w", err)
		}
	}
}

func (p *Pipeline) exportArtifacts(ctx context.Context, log *slog.Logger, s *gpgutils.Session, email string) (*interfaces.ProvisioningResult, error) {
	armored, err := p.keys.ExportArmored(ctx, s, email)
	if err != nil {
		return nil, err
	}
	keyInfo, err := cryptoutils.ParseArmoredPublicKey(armored)
	if err != nil {
		return nil, err
	}

	sshKey, err := p.keys.ExportSSH(ctx, s, email)
	if err != nil {
		return nil, err
	}
	sshInfo, err := cryptoutils.ParseSSHPublicKey(sshKey)
	if err != nil {
		return nil, err
	}

	log.Debug("Artifacts exported", "fingerprint", keyInfo.Fingerprint, "ssh_fingerprint", sshInfo.Fingerprint)
	return &interfaces.ProvisioningResult{
		ArmoredPublicKey: string(armored),
		SSHPublicKey:     strings.TrimSpace(string(sshKey)),
		Fingerprint:      keyInfo.Fingerprint,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ interfaces.Provisioner = (*Pipeline)(nil)
var _ SessionManager = (*gpgutils.SessionManager)(nil)
var _ KeyManager = (*gpgutils.Keyring)(nil)
