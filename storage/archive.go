package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
)

// Metadata is the metadata.json entry of an archived job.
type Metadata struct {
	JobID       string            `json:"job_id"`
	TokenSerial interfaces.Serial `json:"token_serial"`
	Fingerprint string            `json:"fingerprint"`
	ArchivedAt  time.Time         `json:"archived_at"`
}

// ArchiveResult stores the public artifacts of a successful run. Every
// artifact is attempted; the returned error joins all failures.
func ArchiveResult(ctx context.Context, backend interfaces.ArtifactBackend, jobID string, result *interfaces.ProvisioningResult) error {
	if result == nil {
		return errors.New("nothing to archive")
	}

	metadata, err := json.MarshalIndent(Metadata{
		JobID:       jobID,
		TokenSerial: result.TokenSerial,
		Fingerprint: result.Fingerprint,
		ArchivedAt:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode metadata: %w", err)
	}

	artifacts := []struct {
		name interfaces.ArtifactName
		data []byte
	}{
		{interfaces.ArmoredKeyArtifact, []byte(result.ArmoredPublicKey)},
		{interfaces.SSHKeyArtifact, []byte(strings.TrimSpace(result.SSHPublicKey) + "\n")},
		{interfaces.MetadataArtifact, metadata},
	}

	var errs []error
	for _, a := range artifacts {
		key := interfaces.ArtifactKey{JobID: jobID, Name: a.name}
		if err := backend.Store(ctx, key, a.data); err != nil {
			errs = append(errs, fmt.Errorf("could not store %s: %w", key.Path(), err))
		}
	}
	return errors.Join(errs...)
}
