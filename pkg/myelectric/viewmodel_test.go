package myelectric

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emonview/emonview/pkg/emoncms/emoncmsmock"
	"github.com/emonview/emonview/pkg/storage"
	"github.com/emonview/emonview/pkg/storage/storagemock"
	"github.com/emonview/emonview/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type vmHarness struct {
	vm      *ViewModel
	account types.Account
	client  *emoncmsmock.MockFeedClient
	store   *storagemock.MockDatabase
	clock   *fakeClock
	configs chan types.AppConfig
	initial types.AppConfig
}

func newHarness(t *testing.T, cfg types.AppConfig) *vmHarness {
	t.Helper()
	h := &vmHarness{
		account: testEngineAccount(),
		client:  &emoncmsmock.MockFeedClient{},
		store:   &storagemock.MockDatabase{},
		clock:   newFakeClock(testNow),
		configs: make(chan types.AppConfig, 4),
		initial: cfg,
	}
	h.store.On("GetAppConfig", mock.Anything, "app").Return(cfg, nil)
	h.store.On("WatchAppConfig", mock.Anything, "app").Return(h.configs, nil)

	vm, err := newViewModel(context.Background(), Config{RefreshInterval: time.Minute}, h.account, h.client, h.store, "app", h.clock)
	require.NoError(t, err)
	h.vm = vm
	return h
}

// start runs the view model until the test ends and returns a func that stops
// it early.
func (h *vmHarness) start(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, h.vm.Run(ctx))
	}()
	h.configs <- h.initial

	stop := func() {
		cancel()
		<-done
	}
	t.Cleanup(stop)
	return stop
}

func readyConfig() types.AppConfig {
	return types.AppConfig{ID: "app", Name: "Home", UseFeedID: strPtr("1"), KWHFeedID: strPtr("2")}
}

func TestNewViewModel(t *testing.T) {
	t.Run("missing app", func(t *testing.T) {
		store := &storagemock.MockDatabase{}
		store.On("GetAppConfig", mock.Anything, "nope").Return(types.AppConfig{}, storage.ErrAppNotFound)

		_, err := New(context.Background(), Config{}, testEngineAccount(), &emoncmsmock.MockFeedClient{}, store, "nope")
		require.ErrorIs(t, err, storage.ErrAppNotFound)
	})

	t.Run("initial state", func(t *testing.T) {
		h := newHarness(t, readyConfig())

		title, _ := h.vm.Title().Latest()
		assert.Equal(t, "Home", title)
		ready, _ := h.vm.IsReady().Latest()
		assert.True(t, ready)
		refreshing, _ := h.vm.IsRefreshing().Latest()
		assert.False(t, refreshing)
		_, ok := h.vm.Data().Latest()
		assert.False(t, ok)
		assert.True(t, h.vm.UpdatedAt().IsZero())
		assert.False(t, h.vm.Active())
	})
}

func TestViewModelRefresh(t *testing.T) {
	t.Run("activating refreshes", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		expectRefresh(h.client, h.account, map[string]float64{"1": 350, "2": 1012.5})
		h.start(t)

		refreshing, cancelRefreshing := collect(h.vm.IsRefreshing())
		defer cancelRefreshing()
		data, cancelData := collect(h.vm.Data())
		defer cancelData()
		assert.False(t, recv(t, refreshing))

		h.vm.SetActive(true)
		assert.True(t, h.vm.Active())
		assert.True(t, recv(t, refreshing))
		d := recv(t, data)
		assert.Equal(t, 350.0, d.PowerNow)
		assert.Equal(t, 12.5, d.UsageToday)
		assert.False(t, recv(t, refreshing))
		assert.False(t, h.vm.UpdatedAt().IsZero())

		st := h.vm.State()
		assert.Equal(t, "Home", st.Title)
		assert.True(t, st.Ready)
		assert.True(t, st.Active)
		require.NotNil(t, st.Data)
		assert.Equal(t, 350.0, st.Data.PowerNow)
		assert.Nil(t, st.LastError)
		assert.NotNil(t, st.UpdatedAt)

		// every tick refreshes again
		require.Eventually(t, func() bool {
			return !h.vm.busy.Load()
		}, time.Second, 5*time.Millisecond)
		h.clock.Tick()
		recv(t, data)
	})

	t.Run("requests are dropped while busy", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		release := make(chan struct{})
		h.client.On("FeedValues", mock.Anything, h.account, []string{"1", "2"}).
			Run(func(mock.Arguments) { <-release }).
			Return(map[string]float64{"1": 350, "2": 1012.5}, nil).Once()
		expectRefresh(h.client, h.account, map[string]float64{"1": 350, "2": 1012.5})
		h.start(t)

		refreshing, cancelRefreshing := collect(h.vm.IsRefreshing())
		defer cancelRefreshing()
		data, cancelData := collect(h.vm.Data())
		defer cancelData()
		recv(t, refreshing)

		dropped := testutil.ToFloat64(refreshDroppedTotal)
		h.vm.SetActive(true)
		assert.True(t, recv(t, refreshing))

		h.clock.Tick()
		require.Eventually(t, func() bool {
			return testutil.ToFloat64(refreshDroppedTotal) == dropped+1
		}, time.Second, 5*time.Millisecond)

		changed := readyConfig()
		changed.KWHFeedID = strPtr("3")
		h.configs <- changed
		require.Eventually(t, func() bool {
			return testutil.ToFloat64(refreshDroppedTotal) == dropped+2
		}, time.Second, 5*time.Millisecond)

		close(release)
		recv(t, data)
		assert.False(t, recv(t, refreshing))
		assertNothing(t, refreshing)
		assertNothing(t, data)
		h.client.AssertNumberOfCalls(t, "FeedValues", 1)
	})

	t.Run("not configured is reported every time", func(t *testing.T) {
		cfg := types.AppConfig{ID: "app", Name: "Home", UseFeedID: strPtr("1")}
		h := newHarness(t, cfg)
		h.start(t)

		errs, cancelErrs := collect(h.vm.Errors())
		defer cancelErrs()
		data, cancelData := collect(h.vm.Data())
		defer cancelData()

		h.vm.SetActive(true)
		assert.Equal(t, ErrorKindNotConfigured, recv(t, errs))
		require.Eventually(t, func() bool {
			return !h.vm.busy.Load()
		}, time.Second, 5*time.Millisecond)

		h.clock.Tick()
		assert.Equal(t, ErrorKindNotConfigured, recv(t, errs))
		assertNothing(t, data)
		assert.Empty(t, h.client.Calls)

		kind, err := h.vm.LastError()
		assert.Equal(t, ErrorKindNotConfigured, kind)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("client failure is generic", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		h.client.On("FeedValues", mock.Anything, h.account, []string{"1", "2"}).
			Return(nil, errors.New("connection refused"))
		expectRefresh(h.client, h.account, nil)
		h.start(t)

		errs, cancelErrs := collect(h.vm.Errors())
		defer cancelErrs()

		h.vm.SetActive(true)
		assert.Equal(t, ErrorKindGeneric, recv(t, errs))
		kind, err := h.vm.LastError()
		assert.Equal(t, ErrorKindGeneric, kind)
		assert.ErrorContains(t, err, "connection refused")

		st := h.vm.State()
		require.NotNil(t, st.LastError)
		assert.Equal(t, ErrorKindGeneric, st.LastError.Kind)
		assert.Nil(t, st.Data)
		assert.Nil(t, st.UpdatedAt)
	})

	t.Run("feed change refreshes while inactive", func(t *testing.T) {
		h := newHarness(t, types.AppConfig{ID: "app", Name: "Home", UseFeedID: strPtr("1")})
		expectRefresh(h.client, h.account, map[string]float64{"1": 350, "2": 1012.5})
		h.start(t)

		data, cancelData := collect(h.vm.Data())
		defer cancelData()

		h.configs <- types.AppConfig{ID: "app", Name: "Solar", UseFeedID: strPtr("1"), KWHFeedID: strPtr("2")}
		d := recv(t, data)
		assert.Equal(t, 350.0, d.PowerNow)

		title, _ := h.vm.Title().Latest()
		assert.Equal(t, "Solar", title)
		ready, _ := h.vm.IsReady().Latest()
		assert.True(t, ready)
		assert.Equal(t, 0, h.clock.Created())
	})

	t.Run("name change does not refresh", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		h.start(t)

		titles, cancelTitles := collect(h.vm.Title())
		defer cancelTitles()
		data, cancelData := collect(h.vm.Data())
		defer cancelData()
		assert.Equal(t, "Home", recv(t, titles))

		renamed := readyConfig()
		renamed.Name = "Garage"
		h.configs <- renamed
		require.Eventually(t, func() bool {
			title, _ := h.vm.Title().Latest()
			return title == "Garage"
		}, time.Second, 5*time.Millisecond)
		assertNothing(t, data)
		assert.Empty(t, h.client.Calls)
	})

	t.Run("result after stop is discarded", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		release := make(chan struct{})
		h.client.On("FeedValues", mock.Anything, h.account, []string{"1", "2"}).
			Run(func(mock.Arguments) { <-release }).
			Return(map[string]float64{"1": 350, "2": 1012.5}, nil).Once()
		expectRefresh(h.client, h.account, nil)
		stop := h.start(t)

		refreshing, cancelRefreshing := collect(h.vm.IsRefreshing())
		defer cancelRefreshing()
		data, cancelData := collect(h.vm.Data())
		defer cancelData()
		recv(t, refreshing)

		h.vm.SetActive(true)
		assert.True(t, recv(t, refreshing))
		stop()

		close(release)
		assert.False(t, recv(t, refreshing))
		assertNothing(t, data)
		assert.True(t, h.vm.UpdatedAt().IsZero())
	})
}

func TestViewModelRun(t *testing.T) {
	t.Run("watch closed", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		close(h.configs)
		err := h.vm.Run(context.Background())
		assert.ErrorContains(t, err, "app config watch closed")
	})

	t.Run("watch fails", func(t *testing.T) {
		store := &storagemock.MockDatabase{}
		store.On("GetAppConfig", mock.Anything, "app").Return(readyConfig(), nil)
		store.On("WatchAppConfig", mock.Anything, "app").Return(nil, errors.New("offline"))

		vm, err := New(context.Background(), Config{}, testEngineAccount(), &emoncmsmock.MockFeedClient{}, store, "app")
		require.NoError(t, err)
		assert.ErrorContains(t, vm.Run(context.Background()), "offline")
	})
}

func TestViewModelConfig(t *testing.T) {
	t.Run("fields", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		fields := h.vm.ConfigFields()
		require.Len(t, fields, 3)
		assert.Equal(t, types.ConfigKeyName, fields[0].ID)
		assert.Equal(t, types.ConfigFieldTypeFeed, fields[1].Type)
		assert.Equal(t, types.ConfigFieldTypeFeed, fields[2].Type)
	})

	t.Run("data", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		assert.Equal(t, map[string]any{"name": "Home", "useFeedId": "1", "kwhFeedId": "2"}, h.vm.ConfigData())

		h = newHarness(t, types.AppConfig{ID: "app", Name: "Empty"})
		assert.Equal(t, map[string]any{"name": "Empty"}, h.vm.ConfigData())
	})

	t.Run("update persists strings only", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		h.store.On("UpdateAppConfig", mock.Anything, "app", types.AppConfigUpdate{
			Name:      strPtr("Garage"),
			KWHFeedID: strPtr("9"),
		}).Return(nil).Once()

		h.vm.UpdateWithConfigData(context.Background(), map[string]any{
			"name":      "Garage",
			"kwhFeedId": "9",
			"useFeedId": 5,
		})
		h.store.AssertExpectations(t)
	})

	t.Run("empty update is skipped", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		h.vm.UpdateWithConfigData(context.Background(), map[string]any{"other": "x"})
		h.store.AssertNotCalled(t, "UpdateAppConfig", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("update failure is not surfaced", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		h.store.On("UpdateAppConfig", mock.Anything, "app", mock.Anything).Return(errors.New("read only")).Once()

		errs, cancelErrs := collect(h.vm.Errors())
		defer cancelErrs()
		h.vm.UpdateWithConfigData(context.Background(), map[string]any{"name": "Garage"})
		assertNothing(t, errs)
		_, err := h.vm.LastError()
		assert.NoError(t, err)
	})

	t.Run("feed list", func(t *testing.T) {
		h := newHarness(t, readyConfig())
		h.client.On("ListFeeds", mock.Anything, h.account).Return([]types.Feed{{ID: "1", Name: "use"}}, nil)

		feeds, err := h.vm.FeedList(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []types.Feed{{ID: "1", Name: "use"}}, feeds)
	})
}
