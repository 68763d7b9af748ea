package emoncmsmock

import (
	"context"
	"time"

	"github.com/emonview/emonview/pkg/emoncms"
	"github.com/emonview/emonview/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockFeedClient struct {
	mock.Mock
}

var _ emoncms.FeedClient = (*MockFeedClient)(nil)

func (m *MockFeedClient) FeedData(ctx context.Context, account types.Account, feedID string, from, until time.Time, interval int) ([]types.DataPoint, error) {
	args := m.Called(ctx, account, feedID, from, until, interval)
	if v, ok := args.Get(0).([]types.DataPoint); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFeedClient) FeedDataDaily(ctx context.Context, account types.Account, feedID string, from, until time.Time) ([]types.DataPoint, error) {
	args := m.Called(ctx, account, feedID, from, until)
	if v, ok := args.Get(0).([]types.DataPoint); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFeedClient) FeedValues(ctx context.Context, account types.Account, feedIDs []string) (map[string]float64, error) {
	args := m.Called(ctx, account, feedIDs)
	if v, ok := args.Get(0).(map[string]float64); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFeedClient) ListFeeds(ctx context.Context, account types.Account) ([]types.Feed, error) {
	args := m.Called(ctx, account)
	if v, ok := args.Get(0).([]types.Feed); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
