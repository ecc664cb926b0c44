package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
	Token       string
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) handler(respond func(w http.ResponseWriter, req *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, recordedRequest{
			Method:      req.Method,
			Path:        req.URL.Path,
			Body:        string(body),
			ContentType: req.Header.Get("Content-Type"),
			Token:       req.Header.Get("X-Vault-Token"),
		})
		r.mu.Unlock()
		respond(w, req)
	}
}

func (r *recorder) find(method, path string) (recordedRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.Method == method && req.Path == path {
			return req, true
		}
	}
	return recordedRequest{}, false
}

func mustLocation(t *testing.T, uri string) interfaces.ArchiveLocation {
	t.Helper()
	location, err := interfaces.NewArchiveLocation(uri)
	require.NoError(t, err)
	return location
}

func TestBackendFor(t *testing.T) {
	dir := t.TempDir()
	factory := NewBackendFactory(quietLogger())

	tests := []struct {
		name     string
		uri      string
		wantName string
		wantErr  bool
	}{
		{name: "file", uri: "file://" + filepath.Join(dir, "archive"), wantName: "file-archive"},
		{name: "s3 with credentials", uri: "s3://AKIA:secret@bucket/prefix?region=eu-central-1", wantName: "s3-bucket"},
		{name: "s3 without bucket", uri: "s3:///prefix", wantErr: true},
		{name: "vault", uri: "vault://vault.example.com:8200/secret/provisioning", wantName: "vault-secret-provisioning"},
		{name: "vault without mount", uri: "vault://vault.example.com:8200", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := factory.BackendFor(mustLocation(t, tt.uri))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, backend.Name())
		})
	}
}

func TestBackendForUnsupportedScheme(t *testing.T) {
	_, err := NewBackendFactory(quietLogger()).BackendFor(interfaces.ArchiveLocation{Scheme: "ipfs"})
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = interfaces.NewArchiveLocation("ipfs://localhost:5001")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestS3BackendRedactsCredentials(t *testing.T) {
	backend, err := NewBackendFactory(quietLogger()).BackendFor(mustLocation(t, "s3://AKIA:supersecret@bucket/prefix?region=eu-central-1"))
	require.NoError(t, err)
	assert.NotContains(t, backend.LocationURI(), "supersecret")
	assert.Contains(t, backend.LocationURI(), "AKIA:***@bucket")
}

func TestFromURIs(t *testing.T) {
	dir := t.TempDir()
	factory := NewBackendFactory(quietLogger())

	single, err := factory.FromURIs([]string{"file://" + filepath.Join(dir, "a")})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, single)

	multi, err := factory.FromURIs([]string{"file://" + filepath.Join(dir, "a"), "file://" + filepath.Join(dir, "b")})
	require.NoError(t, err)
	assert.IsType(t, &MultiBackend{}, multi)

	_, err = factory.FromURIs(nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = factory.FromURIs([]string{"file://" + dir, "gopher://x"})
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestS3BackendStore(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	uri := "s3://AKIA:secret@bucket/audit?region=us-east-1&path_style=true&endpoint=" + srv.URL
	backend, err := NewBackendFactory(quietLogger()).BackendFor(mustLocation(t, uri))
	require.NoError(t, err)

	ctx := context.Background()
	require.True(t, backend.Available(ctx))
	require.NoError(t, ArchiveResult(ctx, backend, "job-1", testResult))

	put, ok := rec.find(http.MethodPut, "/bucket/audit/job-1/public.asc")
	require.True(t, ok, "public key uploaded")
	assert.Equal(t, testResult.ArmoredPublicKey, put.Body)
	assert.Equal(t, "application/pgp-keys", put.ContentType)

	_, ok = rec.find(http.MethodPut, "/bucket/audit/job-1/ssh.pub")
	assert.True(t, ok, "ssh key uploaded")
	_, ok = rec.find(http.MethodPut, "/bucket/audit/job-1/metadata.json")
	assert.True(t, ok, "metadata uploaded")
}

func TestVaultBackendStore(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "test-token")

	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/v1/sys/health" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"initialized": true, "sealed": false, "standby": false})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	uri := "vault://" + strings.TrimPrefix(srv.URL, "http://") + "/secret/provisioning?tls=false"
	backend, err := NewBackendFactory(quietLogger()).BackendFor(mustLocation(t, uri))
	require.NoError(t, err)

	ctx := context.Background()
	require.True(t, backend.Available(ctx))

	key := interfaces.ArtifactKey{JobID: "job-1", Name: interfaces.SSHKeyArtifact}
	require.NoError(t, backend.Store(ctx, key, []byte("ssh-ed25519 AAAA")))

	put, ok := rec.find(http.MethodPut, "/v1/secret/data/provisioning/job-1/ssh.pub")
	require.True(t, ok)
	assert.Equal(t, "test-token", put.Token)

	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(put.Body), &body))
	assert.Equal(t, "ssh-ed25519 AAAA", body.Data["content"])
}

func TestVaultBackendUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(299)
		_ = json.NewEncoder(w).Encode(map[string]any{"initialized": true, "sealed": true})
	}))
	defer srv.Close()

	backend, err := NewVaultBackend(VaultConfig{Address: srv.URL, MountPath: "secret", DataPath: "provisioning", Token: "t"}, quietLogger())
	require.NoError(t, err)
	assert.False(t, backend.Available(context.Background()))
}
