package storage

import (
	"context"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockArtifactBackend implements interfaces.ArtifactBackend for testing.
type MockArtifactBackend struct {
	mock.Mock
	BackendName string
}

func (m *MockArtifactBackend) Store(ctx context.Context, key interfaces.ArtifactKey, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *MockArtifactBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockArtifactBackend) Name() string {
	return m.BackendName
}

func (m *MockArtifactBackend) LocationURI() string {
	return "mock:" + m.BackendName
}
