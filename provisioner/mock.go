package provisioner

import (
	"context"

	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockProvisioner implements interfaces.Provisioner for testing.
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Provision(ctx context.Context, job interfaces.Job) (*interfaces.ProvisioningResult, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ProvisioningResult), args.Error(1)
}

var _ interfaces.Provisioner = (*MockProvisioner)(nil)
