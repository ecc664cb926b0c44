package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruteri/smartcard-provisioning-worker/api/jobsource"
	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/ruteri/smartcard-provisioning-worker/provisioner"
	"github.com/ruteri/smartcard-provisioning-worker/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testJob = interfaces.Job{JobID: "job-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}

var testResult = &interfaces.ProvisioningResult{
	ArmoredPublicKey: "-----BEGIN PGP PUBLIC KEY BLOCK-----",
	SSHPublicKey:     "ssh-rsa AAAA",
	TokenSerial:      "15545563",
	Fingerprint:      "ABCDEF",
}

type harness struct {
	source      *jobsource.MockJobSource
	provisioner *provisioner.MockProvisioner
	archive     *storage.MockArtifactBackend
	worker      *Worker
}

func newHarness(t *testing.T, withArchive bool) *harness {
	t.Helper()
	h := &harness{
		source:      &jobsource.MockJobSource{},
		provisioner: &provisioner.MockProvisioner{},
	}

	var archive interfaces.ArtifactBackend
	if withArchive {
		h.archive = &storage.MockArtifactBackend{BackendName: "mock"}
		archive = h.archive
	}

	w, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		WorkerID:     "YubiBridge",
		PollInterval: 10 * time.Millisecond,
	}, h.source, h.provisioner, archive)
	require.NoError(t, err)
	h.worker = w
	return h
}

func (h *harness) assertExpectations(t *testing.T) {
	h.source.AssertExpectations(t)
	h.provisioner.AssertExpectations(t)
	if h.archive != nil {
		h.archive.AssertExpectations(t)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty worker id", Config{PollInterval: time.Second}},
		{"zero interval", Config{WorkerID: "w"}},
		{"negative interval", Config{WorkerID: "w", PollInterval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(slog.Default(), tt.cfg, &jobsource.MockJobSource{}, &provisioner.MockProvisioner{}, nil)
			assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
		})
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErr   bool
		wantReady bool
	}{
		{name: "registered", wantReady: true},
		{name: "already registered", err: fmt.Errorf("register: %w", interfaces.ErrAlreadyRegistered), wantReady: true},
		{name: "transport error", err: errors.New("connection refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.source.On("RegisterWorker", mock.Anything, "YubiBridge").Return(tt.err).Once()

			err := h.worker.Register(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantReady, h.worker.Ready())
			assert.Equal(t, tt.wantReady, h.worker.Status().Registered)
			h.assertExpectations(t)
		})
	}
}

func TestPollOnceNoJob(t *testing.T) {
	h := newHarness(t, true)
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(nil, nil).Once()

	assert.False(t, h.worker.PollOnce(context.Background()))
	h.provisioner.AssertNotCalled(t, "Provision", mock.Anything, mock.Anything)
	h.source.AssertNotCalled(t, "ReportJobResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, h.worker.Status().LastPoll.IsZero())
	h.assertExpectations(t)
}

func TestPollOnceTransportError(t *testing.T) {
	h := newHarness(t, false)
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(nil, errors.New("connection refused")).Once()

	assert.False(t, h.worker.PollOnce(context.Background()))
	h.provisioner.AssertNotCalled(t, "Provision", mock.Anything, mock.Anything)
	h.assertExpectations(t)
}

func TestPollOnceSuccess(t *testing.T) {
	h := newHarness(t, true)
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(&testJob, nil).Once()
	h.provisioner.On("Provision", mock.Anything, testJob).Return(testResult, nil).Once()
	h.archive.On("Store", mock.Anything, mock.Anything, mock.Anything).Return(nil).Times(3)
	h.source.On("ReportJobResult", mock.Anything, "YubiBridge", "job-1", interfaces.Succeeded(testResult)).Return(nil).Once()

	assert.True(t, h.worker.PollOnce(context.Background()))

	status := h.worker.Status()
	assert.False(t, status.Busy)
	assert.Equal(t, "job-1", status.LastJobID)
	assert.Equal(t, "success", status.LastOutcome)
	assert.EqualValues(t, 1, status.JobsSucceeded)
	assert.EqualValues(t, 0, status.JobsFailed)
	h.assertExpectations(t)
}

func TestPollOnceFailureCarriesKind(t *testing.T) {
	h := newHarness(t, true)
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(&testJob, nil).Once()
	h.provisioner.On("Provision", mock.Anything, testJob).
		Return(nil, fmt.Errorf("could not detect token: %w", interfaces.ErrNoTokenFound)).Once()
	h.source.On("ReportJobResult", mock.Anything, "YubiBridge", "job-1", mock.MatchedBy(func(o interfaces.JobOutcome) bool {
		return !o.Success() && o.Kind == interfaces.KindNoTokenFound
	})).Return(nil).Once()

	assert.True(t, h.worker.PollOnce(context.Background()))

	status := h.worker.Status()
	assert.Equal(t, string(interfaces.KindNoTokenFound), status.LastOutcome)
	assert.Contains(t, status.LastError, "could not detect token")
	assert.EqualValues(t, 1, status.JobsFailed)
	h.archive.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
	h.assertExpectations(t)
}

func TestArchiveFailureDoesNotFailJob(t *testing.T) {
	h := newHarness(t, true)
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(&testJob, nil).Once()
	h.provisioner.On("Provision", mock.Anything, testJob).Return(testResult, nil).Once()
	h.archive.On("Store", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket gone"))
	h.source.On("ReportJobResult", mock.Anything, "YubiBridge", "job-1", interfaces.Succeeded(testResult)).Return(nil).Once()

	assert.True(t, h.worker.PollOnce(context.Background()))
	assert.EqualValues(t, 1, h.worker.Status().JobsSucceeded)
	h.assertExpectations(t)
}

func TestReportFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, false)
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(&testJob, nil).Once()
	h.provisioner.On("Provision", mock.Anything, testJob).Return(testResult, nil).Once()
	h.source.On("ReportJobResult", mock.Anything, "YubiBridge", "job-1", mock.Anything).Return(errors.New("502 bad gateway")).Once()

	assert.True(t, h.worker.PollOnce(context.Background()))
	h.source.AssertNumberOfCalls(t, "ReportJobResult", 1)
	h.assertExpectations(t)
}

func TestStatusWhileBusy(t *testing.T) {
	h := newHarness(t, false)
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(&testJob, nil).Once()

	var during Status
	h.provisioner.On("Provision", mock.Anything, testJob).Run(func(mock.Arguments) {
		h.worker.SetStage("job-1", "GenerateKey")
		h.worker.SetStage("other-job", "Done")
		during = h.worker.Status()
	}).Return(testResult, nil).Once()
	h.source.On("ReportJobResult", mock.Anything, "YubiBridge", "job-1", mock.Anything).Return(nil).Once()

	h.worker.PollOnce(context.Background())

	assert.True(t, during.Busy)
	assert.Equal(t, "job-1", during.CurrentJobID)
	assert.Equal(t, "GenerateKey", during.Stage)

	after := h.worker.Status()
	assert.False(t, after.Busy)
	assert.Empty(t, after.CurrentJobID)
	assert.Empty(t, after.Stage)
}

func TestReportSurvivesCancellation(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(&testJob, nil).Once()
	h.provisioner.On("Provision", mock.Anything, testJob).Run(func(mock.Arguments) {
		cancel()
	}).Return(nil, fmt.Errorf("token wait aborted: %w", context.Canceled)).Once()

	var reportCtxErr error
	h.source.On("ReportJobResult", mock.Anything, "YubiBridge", "job-1", mock.MatchedBy(func(o interfaces.JobOutcome) bool {
		return o.Kind == interfaces.KindCanceled
	})).Run(func(args mock.Arguments) {
		reportCtxErr = args.Get(0).(context.Context).Err()
	}).Return(nil).Once()

	assert.True(t, h.worker.PollOnce(ctx))
	assert.NoError(t, reportCtxErr)
	h.assertExpectations(t)
}

func TestRunContinuesAfterTransportError(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(nil, errors.New("connection refused")).Once()
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(&testJob, nil).Once()
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(nil, nil)
	h.provisioner.On("Provision", mock.Anything, testJob).Return(testResult, nil).Once()

	reported := make(chan struct{})
	h.source.On("ReportJobResult", mock.Anything, "YubiBridge", "job-1", interfaces.Succeeded(testResult)).Run(func(mock.Arguments) {
		close(reported)
	}).Return(nil).Once()

	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	select {
	case <-reported:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not reported")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	h.provisioner.AssertNumberOfCalls(t, "Provision", 1)
	h.source.AssertNumberOfCalls(t, "ReportJobResult", 1)
}

func TestRunCanceledBeforeStart(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, h.worker.Run(ctx))
	h.source.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
}

func TestJobsNeverOverlap(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running, maxRunning, calls atomic.Int32
	h.source.On("GetJob", mock.Anything, "YubiBridge").Return(&testJob, nil)
	h.provisioner.On("Provision", mock.Anything, testJob).Run(func(mock.Arguments) {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		if calls.Add(1) == 3 {
			cancel()
		}
	}).Return(testResult, nil)
	h.source.On("ReportJobResult", mock.Anything, "YubiBridge", "job-1", mock.Anything).Return(nil)

	require.NoError(t, h.worker.Run(ctx))
	assert.EqualValues(t, 1, maxRunning.Load())
	assert.EqualValues(t, 3, calls.Load())
}
