package myelectric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emonview/emonview/pkg/emoncms"
	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/storage"
	"github.com/emonview/emonview/pkg/types"
)

// ViewModel drives a MyElectric view: it refreshes the composite data while
// the view is active or when its feeds change, and exposes the results and
// refresh state as streams.
type ViewModel struct {
	account types.Account
	client  emoncms.FeedClient
	store   storage.Database
	appID   string

	engine  *Engine
	trigger *Trigger
	tracker *Tracker

	title *Stream[string]
	data  *Stream[types.MyElectricData]
	ready *Stream[bool]

	mu        sync.Mutex
	config    types.AppConfig
	updatedAt time.Time

	active atomic.Bool
	// busy admits a single refresh at a time
	busy atomic.Bool
	// generation is bumped when Run returns so late results are discarded
	generation atomic.Uint64
}

// New loads the app config and returns a ViewModel bound to it. It fails if
// the app config does not exist.
func New(ctx context.Context, cfg Config, account types.Account, client emoncms.FeedClient, store storage.Database, appID string) (*ViewModel, error) {
	return newViewModel(ctx, cfg, account, client, store, appID, realClock{})
}

func newViewModel(ctx context.Context, cfg Config, account types.Account, client emoncms.FeedClient, store storage.Database, appID string, c clock) (*ViewModel, error) {
	appCfg, err := store.GetAppConfig(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to load app config (id=%s): %w", appID, err)
	}

	vm := &ViewModel{
		account: account,
		client:  client,
		store:   store,
		appID:   appID,
		engine:  newEngine(account, client, c),
		trigger: newTrigger(c, cfg.RefreshInterval),
		tracker: newTracker(),
		title:   newStreamWith(appCfg.Name),
		data:    newStream[types.MyElectricData](true),
		ready:   newStreamWith(appCfg.Feeds().Ready()),
		config:  appCfg,
	}
	return vm, nil
}

// Title streams the app's display name.
func (vm *ViewModel) Title() *Stream[string] {
	return vm.title
}

// Data streams the result of every successful refresh.
func (vm *ViewModel) Data() *Stream[types.MyElectricData] {
	return vm.data
}

// IsRefreshing streams whether a refresh is running.
func (vm *ViewModel) IsRefreshing() *Stream[bool] {
	return vm.tracker.IsRefreshing()
}

// IsReady streams whether both feeds are configured.
func (vm *ViewModel) IsReady() *Stream[bool] {
	return vm.ready
}

// Errors streams the kind of every failed refresh.
func (vm *ViewModel) Errors() *Stream[ErrorKind] {
	return vm.tracker.Errors()
}

// LastError returns the failure of the most recent refresh if it failed.
func (vm *ViewModel) LastError() (ErrorKind, error) {
	return vm.tracker.LastError()
}

// UpdatedAt returns when data was last published.
func (vm *ViewModel) UpdatedAt() time.Time {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.updatedAt
}

// Active returns the last value passed to SetActive.
func (vm *ViewModel) Active() bool {
	return vm.active.Load()
}

// SetActive is called with true while the view is visible. Refreshes happen
// immediately and then periodically until it is set to false. Run must be
// running.
func (vm *ViewModel) SetActive(active bool) {
	vm.active.Store(active)
	vm.trigger.SetActive(active)
}

// Run watches the app config and handles refresh requests until ctx is done.
// A refresh that is running when Run returns is allowed to finish but its
// result is discarded.
func (vm *ViewModel) Run(ctx context.Context) error {
	ctx = log.Component(ctx, "myelectric")
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("appID", vm.appID)))
	ctx, cancel := context.WithCancel(ctx)
	defer vm.generation.Add(1)

	configs, err := vm.store.WatchAppConfig(ctx, vm.appID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch app config: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		vm.trigger.Run(ctx, func(reason TriggerReason) {
			vm.requestRefresh(ctx, reason)
		})
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-configs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("app config watch closed")
			}
			vm.observeConfig(cfg)
		}
	}
}

func (vm *ViewModel) observeConfig(cfg types.AppConfig) {
	vm.mu.Lock()
	vm.config = cfg
	vm.mu.Unlock()

	feeds := cfg.Feeds()
	vm.title.publish(cfg.Name)
	vm.ready.publish(feeds.Ready())
	vm.trigger.ObserveFeeds(feeds)
}

func (vm *ViewModel) currentConfig() types.AppConfig {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.config
}

// requestRefresh starts a refresh unless one is already running, in which
// case the request is dropped.
func (vm *ViewModel) requestRefresh(ctx context.Context, reason TriggerReason) {
	refreshTriggersTotal.WithLabelValues(string(reason)).Inc()
	if !vm.busy.CompareAndSwap(false, true) {
		refreshDroppedTotal.Inc()
		log.Ctx(ctx).DebugContext(ctx, "refresh already running, dropping request", slog.String("reason", string(reason)))
		return
	}

	gen := vm.generation.Load()
	feeds := vm.currentConfig().Feeds()
	vm.tracker.begin()

	// deactivating or closing the view doesn't cancel a running refresh
	rctx := context.WithoutCancel(ctx)
	go func() {
		defer vm.busy.Store(false)
		defer vm.tracker.end()

		start := time.Now()
		data, err := vm.engine.Refresh(rctx, feeds)
		observeRefresh(err, time.Since(start).Seconds())

		if vm.generation.Load() != gen {
			log.Ctx(rctx).DebugContext(rctx, "discarding refresh result after view closed")
			return
		}
		if err != nil {
			log.Ctx(rctx).WarnContext(
				rctx,
				"refresh failed",
				slog.String("reason", string(reason)),
				slog.String("kind", Classify(err).String()),
				slog.Any("error", err),
			)
			vm.tracker.fail(err)
			return
		}

		vm.mu.Lock()
		vm.updatedAt = time.Now()
		vm.mu.Unlock()
		vm.tracker.succeed()
		vm.data.publish(data)
		log.Ctx(rctx).DebugContext(
			rctx,
			"refresh complete",
			slog.String("reason", string(reason)),
			slog.Float64("powerNow", data.PowerNow),
			slog.Float64("usageToday", data.UsageToday),
			slog.Int("linePoints", len(data.LineChartData)),
			slog.Int("barPoints", len(data.BarChartData)),
		)
	}()
}

// StateError describes why the most recent refresh failed.
type StateError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// State is a point in time snapshot of every stream of the view model.
type State struct {
	Title      string                `json:"title"`
	Ready      bool                  `json:"ready"`
	Active     bool                  `json:"active"`
	Refreshing bool                  `json:"refreshing"`
	Data       *types.MyElectricData `json:"data"`
	LastError  *StateError           `json:"lastError,omitempty"`
	UpdatedAt  *time.Time            `json:"updatedAt,omitempty"`
}

// State returns the latest value of every stream.
func (vm *ViewModel) State() State {
	var st State
	st.Title, _ = vm.title.Latest()
	st.Ready, _ = vm.ready.Latest()
	st.Refreshing, _ = vm.tracker.IsRefreshing().Latest()
	st.Active = vm.Active()
	if d, ok := vm.data.Latest(); ok {
		st.Data = &d
	}
	if kind, err := vm.LastError(); err != nil {
		st.LastError = &StateError{Kind: kind, Message: err.Error()}
	}
	if at := vm.UpdatedAt(); !at.IsZero() {
		st.UpdatedAt = &at
	}
	return st
}

// FeedList returns the account's feeds so the config UI can pick from them.
func (vm *ViewModel) FeedList(ctx context.Context) ([]types.Feed, error) {
	return vm.client.ListFeeds(ctx, vm.account)
}

// ConfigFields describes the fields of the app config.
func (vm *ViewModel) ConfigFields() []types.ConfigField {
	return []types.ConfigField{
		{ID: types.ConfigKeyName, Name: "Name", Type: types.ConfigFieldTypeString},
		{ID: types.ConfigKeyUseFeedID, Name: "Use Feed", Type: types.ConfigFieldTypeFeed},
		{ID: types.ConfigKeyKWHFeedID, Name: "kWh Feed", Type: types.ConfigFieldTypeFeed},
	}
}

// ConfigData returns the current config keyed by field id. Unset feeds are
// left out.
func (vm *ViewModel) ConfigData() map[string]any {
	cfg := vm.currentConfig()
	data := map[string]any{
		types.ConfigKeyName: cfg.Name,
	}
	if cfg.UseFeedID != nil {
		data[types.ConfigKeyUseFeedID] = *cfg.UseFeedID
	}
	if cfg.KWHFeedID != nil {
		data[types.ConfigKeyKWHFeedID] = *cfg.KWHFeedID
	}
	return data
}

// UpdateWithConfigData persists the string values in data. Failures are
// logged and not returned.
func (vm *ViewModel) UpdateWithConfigData(ctx context.Context, data map[string]any) {
	var update types.AppConfigUpdate
	if v, ok := data[types.ConfigKeyName].(string); ok {
		update.Name = &v
	}
	if v, ok := data[types.ConfigKeyUseFeedID].(string); ok {
		update.UseFeedID = &v
	}
	if v, ok := data[types.ConfigKeyKWHFeedID].(string); ok {
		update.KWHFeedID = &v
	}
	if update.Empty() {
		return
	}

	if err := vm.store.UpdateAppConfig(ctx, vm.appID, update); err != nil {
		err = &Error{Kind: ErrorKindUpdateFailed, Err: err}
		log.Ctx(ctx).ErrorContext(ctx, "failed to save app config", slog.String("appID", vm.appID), slog.Any("error", err))
	}
}
