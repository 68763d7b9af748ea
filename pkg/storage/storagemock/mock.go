package storagemock

import (
	"context"

	"github.com/emonview/emonview/pkg/storage"
	"github.com/emonview/emonview/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetAppConfig(ctx context.Context, id string) (types.AppConfig, error) {
	args := m.Called(ctx, id)
	if len(args) > 0 {
		return args.Get(0).(types.AppConfig), args.Error(1)
	}
	return types.AppConfig{}, nil
}

func (m *MockDatabase) ListAppConfigs(ctx context.Context) ([]types.AppConfig, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.AppConfig), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) CreateAppConfig(ctx context.Context, cfg types.AppConfig) (types.AppConfig, error) {
	args := m.Called(ctx, cfg)
	if len(args) > 0 {
		return args.Get(0).(types.AppConfig), args.Error(1)
	}
	return cfg, nil
}

func (m *MockDatabase) UpdateAppConfig(ctx context.Context, id string, update types.AppConfigUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockDatabase) WatchAppConfig(ctx context.Context, id string) (<-chan types.AppConfig, error) {
	args := m.Called(ctx, id)
	if len(args) > 0 {
		ch, _ := args.Get(0).(chan types.AppConfig)
		return ch, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
