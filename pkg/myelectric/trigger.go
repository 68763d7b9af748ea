package myelectric

import (
	"context"
	"log/slog"
	"time"

	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/types"
)

// DefaultRefreshInterval is how often an active view refreshes.
const DefaultRefreshInterval = 10 * time.Second

// TriggerReason is why a refresh was requested.
type TriggerReason string

const (
	TriggerReasonTimer  TriggerReason = "timer"
	TriggerReasonConfig TriggerReason = "config"
)

// Trigger merges a visibility-gated periodic timer and feed configuration
// changes into a single stream of refresh requests. All inputs are handled on
// the goroutine running Run so emit is never called concurrently.
type Trigger struct {
	clock    clock
	interval time.Duration

	activeCh chan bool
	feedsCh  chan types.FeedPair

	// only touched by Run
	active    bool
	ticker    ticker
	feeds     types.FeedPair
	seenFeeds bool
}

// NewTrigger returns a Trigger that ticks every interval while active.
func NewTrigger(interval time.Duration) *Trigger {
	return newTrigger(realClock{}, interval)
}

func newTrigger(c clock, interval time.Duration) *Trigger {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Trigger{
		clock:    c,
		interval: interval,
		activeCh: make(chan bool, 8),
		feedsCh:  make(chan types.FeedPair, 8),
	}
}

// SetActive turns the periodic timer on or off. Setting the current value
// again does nothing.
func (t *Trigger) SetActive(active bool) {
	t.activeCh <- active
}

// ObserveFeeds records the current feed pair. The first pair observed only
// sets the baseline, every later pair that differs requests a refresh.
func (t *Trigger) ObserveFeeds(p types.FeedPair) {
	t.feedsCh <- p
}

// Run processes inputs until ctx is done, calling emit for every refresh
// request.
func (t *Trigger) Run(ctx context.Context, emit func(TriggerReason)) {
	defer func() {
		t.stopTicker()
		t.active = false
	}()

	for {
		var tickC <-chan time.Time
		if t.ticker != nil {
			tickC = t.ticker.C()
		}

		select {
		case <-ctx.Done():
			return
		case active := <-t.activeCh:
			if active == t.active {
				continue
			}
			t.active = active
			log.Ctx(ctx).DebugContext(ctx, "refresh timer toggled", slog.Bool("active", active))
			if !active {
				t.stopTicker()
				continue
			}
			t.ticker = t.clock.NewTicker(t.interval)
			emit(TriggerReasonTimer)
		case <-tickC:
			emit(TriggerReasonTimer)
		case p := <-t.feedsCh:
			if !t.seenFeeds {
				t.seenFeeds = true
				t.feeds = p
				continue
			}
			if p == t.feeds {
				continue
			}
			t.feeds = p
			log.Ctx(ctx).DebugContext(
				ctx,
				"feeds changed",
				slog.String("useFeedID", p.Use),
				slog.String("kwhFeedID", p.KWH),
			)
			emit(TriggerReasonConfig)
		}
	}
}

func (t *Trigger) stopTicker() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}
