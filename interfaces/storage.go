package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ArtifactName names one public artifact file within a job's archive entry.
type ArtifactName string

const (
	// ArmoredKeyArtifact is the ASCII-armored public key.
	ArmoredKeyArtifact ArtifactName = "public.asc"
	// SSHKeyArtifact is the authorized_keys line.
	SSHKeyArtifact ArtifactName = "ssh.pub"
	// MetadataArtifact is a JSON document with serial and fingerprint.
	MetadataArtifact ArtifactName = "metadata.json"
)

// ArtifactKey addresses a single archived artifact.
type ArtifactKey struct {
	JobID string
	Name  ArtifactName
}

// Path returns the backend-independent relative path "<job_id>/<name>".
func (k ArtifactKey) Path() string {
	return path.Join(sanitizePathElement(k.JobID), string(k.Name))
}

func sanitizePathElement(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// ArchiveLocation represents a parsed artifact archive URI.
type ArchiveLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname or bucket
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewArchiveLocation parses and validates an archive URI.
func NewArchiveLocation(uri string) (ArchiveLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ArchiveLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "vault":
	default:
		return ArchiveLocation{}, fmt.Errorf("%w: unsupported archive scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return ArchiveLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc ArchiveLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc ArchiveLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

var (
	// ErrBackendUnavailable is returned when an archive backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when an archive URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// ArtifactBackend stores public provisioning artifacts for auditing.
// Only public material is ever handed to a backend.
type ArtifactBackend interface {
	// Store writes data under key, overwriting any previous content.
	Store(ctx context.Context, key ArtifactKey, data []byte) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// ArtifactBackendFactory creates archive backends from URIs.
type ArtifactBackendFactory interface {
	// BackendFor creates a backend from a single URI.
	// Supports file://, s3://, vault://
	BackendFor(location ArchiveLocation) (ArtifactBackend, error)

	// CreateMultiBackend creates a fan-out backend over several URIs.
	CreateMultiBackend(locations []ArchiveLocation) (ArtifactBackend, error)
}
