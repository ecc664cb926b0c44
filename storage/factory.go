package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
)

// BackendFactory creates archive backends from parsed URIs.
type BackendFactory struct {
	log *slog.Logger
}

// NewBackendFactory creates a new factory instance.
func NewBackendFactory(logger *slog.Logger) *BackendFactory {
	return &BackendFactory{log: logger}
}

// BackendFor creates an archive backend for a single location.
//
// Supported schemes:
//   - file:///abs/path or file://./relative/path
//   - s3://[ACCESS:SECRET@]bucket/prefix?region=..&endpoint=..&acl=..&path_style=true
//   - vault://host:port/mount/path?tls=false&ca_cert=..&client_cert=..&client_key=..
func (f *BackendFactory) BackendFor(location interfaces.ArchiveLocation) (interfaces.ArtifactBackend, error) {
	switch strings.ToLower(location.Scheme) {
	case "file":
		return f.createFileBackend(location)
	case "s3":
		return f.createS3Backend(location)
	case "vault":
		return f.createVaultBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a fan-out backend over every location. Any
// location that cannot be turned into a backend fails the whole call.
func (f *BackendFactory) CreateMultiBackend(locations []interfaces.ArchiveLocation) (interfaces.ArtifactBackend, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: no archive locations", interfaces.ErrInvalidLocationURI)
	}

	backends := make([]interfaces.ArtifactBackend, 0, len(locations))
	for _, location := range locations {
		backend, err := f.BackendFor(location)
		if err != nil {
			return nil, fmt.Errorf("could not create archive backend for %s: %w", location.Scheme, err)
		}
		backends = append(backends, backend)
	}

	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiBackend(backends, f.log), nil
}

// FromURIs parses each URI and builds the combined backend.
func (f *BackendFactory) FromURIs(uris []string) (interfaces.ArtifactBackend, error) {
	locations := make([]interfaces.ArchiveLocation, 0, len(uris))
	for _, uri := range uris {
		location, err := interfaces.NewArchiveLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	return f.CreateMultiBackend(locations)
}

func (f *BackendFactory) createFileBackend(location interfaces.ArchiveLocation) (interfaces.ArtifactBackend, error) {
	f.log.Debug("Creating file backend", slog.String("uri", location.String()))

	dir := location.Path
	if location.Host != "" {
		dir = location.Host + "/" + strings.TrimPrefix(dir, "/")
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}

	return NewFileBackend(filepath.Clean(dir), f.log)
}

func (f *BackendFactory) createS3Backend(location interfaces.ArchiveLocation) (interfaces.ArtifactBackend, error) {
	f.log.Debug("Creating S3 backend", slog.String("bucket", location.Host))

	cfg := S3Config{
		Bucket:    location.Host,
		Prefix:    location.Path,
		Region:    location.GetParam("region"),
		Endpoint:  location.GetParam("endpoint"),
		ACL:       location.GetParam("acl"),
		PathStyle: location.GetParam("path_style") == "true",
	}
	if location.Auth != "" {
		cfg.AccessKey, cfg.SecretKey, _ = strings.Cut(location.Auth, ":")
	}

	return NewS3Backend(cfg, f.log)
}

func (f *BackendFactory) createVaultBackend(location interfaces.ArchiveLocation) (interfaces.ArtifactBackend, error) {
	f.log.Debug("Creating Vault backend", slog.String("uri", location.String()))

	scheme := "https"
	if location.GetParam("tls") == "false" {
		scheme = "http"
	}

	mountPath, dataPath, _ := strings.Cut(strings.TrimPrefix(location.Path, "/"), "/")

	return NewVaultBackend(VaultConfig{
		Address:    fmt.Sprintf("%s://%s", scheme, location.Host),
		MountPath:  mountPath,
		DataPath:   dataPath,
		CACert:     location.GetParam("ca_cert"),
		ClientCert: location.GetParam("client_cert"),
		ClientKey:  location.GetParam("client_key"),
	}, f.log)
}

var _ interfaces.ArtifactBackendFactory = (*BackendFactory)(nil)
