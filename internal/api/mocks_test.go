package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/resident-x/grott-messages/internal/domain"
)

// mockRegistry is a testify mock of domain.Registry.
type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) RegisterDatalogger(id string, ip string, port int, protocol uint16) error {
	return m.Called(id, ip, port, protocol).Error(0)
}

func (m *mockRegistry) RegisterInverter(dataloggerID string, inverterID string, deviceID uint8) error {
	return m.Called(dataloggerID, inverterID, deviceID).Error(0)
}

func (m *mockRegistry) GetDatalogger(id string) (*domain.DataloggerInfo, bool) {
	args := m.Called(id)
	dl, _ := args.Get(0).(*domain.DataloggerInfo)
	return dl, args.Bool(1)
}

func (m *mockRegistry) GetAllDataloggers() []*domain.DataloggerInfo {
	dataloggers, _ := m.Called().Get(0).([]*domain.DataloggerInfo)
	return dataloggers
}

func (m *mockRegistry) GetInverters(dataloggerID string) ([]*domain.InverterInfo, bool) {
	args := m.Called(dataloggerID)
	inverters, _ := args.Get(0).([]*domain.InverterInfo)
	return inverters, args.Bool(1)
}

// mockPublisher is a testify mock of domain.MessagePublisher.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, data interface{}) error {
	return m.Called(ctx, topic, data).Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}
