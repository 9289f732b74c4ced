package mocks

import (
	"context"

	"github.com/dukex/convergence/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockDeviceController is a mock implementation of simulator.DeviceController.
type MockDeviceController struct {
	mock.Mock
}

func (m *MockDeviceController) Execute(ctx context.Context, command models.DeviceCommand) (models.CommandResult, error) {
	args := m.Called(ctx, command)

	result, _ := args.Get(0).(models.CommandResult)

	return result, args.Error(1)
}
