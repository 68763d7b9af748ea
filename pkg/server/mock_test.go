package server

import (
	"context"

	"github.com/emonview/emonview/pkg/myelectric"
	"github.com/emonview/emonview/pkg/types"
	"github.com/stretchr/testify/mock"
)

type mockViewModel struct {
	mock.Mock
}

var _ ViewModel = (*mockViewModel)(nil)

func (m *mockViewModel) State() myelectric.State {
	args := m.Called()
	return args.Get(0).(myelectric.State)
}

func (m *mockViewModel) SetActive(active bool) {
	m.Called(active)
}

func (m *mockViewModel) ConfigFields() []types.ConfigField {
	args := m.Called()
	return args.Get(0).([]types.ConfigField)
}

func (m *mockViewModel) ConfigData() map[string]any {
	args := m.Called()
	return args.Get(0).(map[string]any)
}

func (m *mockViewModel) UpdateWithConfigData(ctx context.Context, data map[string]any) {
	m.Called(ctx, data)
}

func (m *mockViewModel) FeedList(ctx context.Context) ([]types.Feed, error) {
	args := m.Called(ctx)
	if v, ok := args.Get(0).([]types.Feed); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
