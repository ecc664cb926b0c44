package interfaces

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"plain sentinel", ErrNoTokenFound, KindNoTokenFound},
		{"wrapped sentinel", fmt.Errorf("detect: %w", ErrMultipleTokensPresent), KindMultipleTokensPresent},
		{"double wrapped", fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrTokenReset)), KindTokenReset},
		{"joined primary first", errors.Join(fmt.Errorf("gen: %w", ErrExternalTool), ErrSessionTeardown), KindExternalTool},
		{"joined teardown only", errors.Join(errors.New("opaque"), ErrSessionTeardown), KindSessionTeardown},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), KindCanceled},
		{"deadline", context.DeadlineExceeded, KindCanceled},
		{"unknown", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(fmt.Errorf("list: %w", ErrNoTokenFound)))
	require.False(t, Retryable(ErrMultipleTokensPresent))
	require.False(t, Retryable(nil))
}

func TestFailedOutcome(t *testing.T) {
	outcome := Failed(fmt.Errorf("could not generate key: %w", ErrExternalTool))
	require.False(t, outcome.Success())
	require.Equal(t, KindExternalTool, outcome.Kind)
	require.Contains(t, outcome.Message, "could not generate key")

	result := &ProvisioningResult{ArmoredPublicKey: "pgp", SSHPublicKey: "ssh", TokenSerial: "123"}
	outcome = Succeeded(result)
	require.True(t, outcome.Success())
	require.Equal(t, KindNone, outcome.Kind)
}

func TestJob(t *testing.T) {
	job := Job{JobID: "J1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	require.Equal(t, "Ada Lovelace", job.FullName())
	require.NoError(t, job.Validate())

	tests := []struct {
		name string
		job  Job
	}{
		{"missing id", Job{Email: "a@b"}},
		{"missing email", Job{JobID: "J1"}},
		{"newline in name", Job{JobID: "J1", FirstName: "Ada\n%commit", Email: "a@b"}},
		{"carriage return in email", Job{JobID: "J1", Email: "a@b\r"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			require.ErrorIs(t, err, ErrInvalidJob)
			require.Equal(t, KindInvalidJob, KindOf(err))
		})
	}
}

func TestArtifactKeyPath(t *testing.T) {
	require.Equal(t, "J1/public.asc", ArtifactKey{JobID: "J1", Name: ArmoredKeyArtifact}.Path())
	require.Equal(t, ".._etc/ssh.pub", ArtifactKey{JobID: "../etc", Name: SSHKeyArtifact}.Path())
	require.Equal(t, "_/metadata.json", ArtifactKey{JobID: "..", Name: MetadataArtifact}.Path())
}

func TestNewArchiveLocation(t *testing.T) {
	loc, err := NewArchiveLocation("s3://bucket/prefix?region=eu-west-1")
	require.NoError(t, err)
	require.Equal(t, "s3", loc.Scheme)
	require.Equal(t, "bucket", loc.Host)
	require.Equal(t, "eu-west-1", loc.GetParam("region"))

	_, err = NewArchiveLocation("ipfs://localhost:5001")
	require.ErrorIs(t, err, ErrInvalidLocationURI)
}
