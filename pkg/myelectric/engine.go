package myelectric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/emonview/emonview/pkg/emoncms"
	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/types"
	"golang.org/x/sync/errgroup"
)

const (
	lineChartWindow = 8 * time.Hour
	// number of buckets the line chart is sampled into
	lineChartBuckets = 1500
	// one more day than is shown so the first day has a previous reading
	barChartDays = 15
)

// Engine fetches and combines everything a single refresh needs.
type Engine struct {
	account types.Account
	client  emoncms.FeedClient
	clock   clock
	cache   startOfDayCache
}

// NewEngine returns an Engine that reads feeds of account through client.
func NewEngine(account types.Account, client emoncms.FeedClient) *Engine {
	return newEngine(account, client, realClock{})
}

func newEngine(account types.Account, client emoncms.FeedClient, c clock) *Engine {
	return &Engine{
		account: account,
		client:  client,
		clock:   c,
	}
}

// Refresh fetches the current power, today's usage and both chart histories
// concurrently. If any fetch fails the whole refresh fails with that error.
func (e *Engine) Refresh(ctx context.Context, feeds types.FeedPair) (types.MyElectricData, error) {
	if !feeds.Ready() {
		return types.MyElectricData{}, ErrNotConfigured
	}

	now := e.clock.Now()
	midnight := startOfDay(now)

	var (
		baseline  types.DataPoint
		values    map[string]float64
		lineChart []types.DataPoint
		barChart  []types.DataPoint
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		baseline, err = e.StartOfDay(gctx, feeds.KWH, midnight)
		return err
	})
	g.Go(func() error {
		var err error
		values, err = e.client.FeedValues(gctx, e.account, []string{feeds.Use, feeds.KWH})
		return err
	})
	g.Go(func() error {
		var err error
		lineChart, err = e.lineChartHistory(gctx, feeds.Use, now)
		return err
	})
	g.Go(func() error {
		var err error
		barChart, err = e.barChartHistory(gctx, feeds.KWH, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.MyElectricData{}, err
	}

	var powerNow, usageToday float64
	use, hasUse := values[feeds.Use]
	kwh, hasKWH := values[feeds.KWH]
	if hasUse && hasKWH {
		powerNow = use
		usageToday = kwh - baseline.Value
	} else {
		log.Ctx(ctx).WarnContext(
			ctx,
			"latest values missing a feed",
			slog.Bool("hasUse", hasUse),
			slog.Bool("hasKWH", hasKWH),
		)
	}

	return types.MyElectricData{
		PowerNow:      powerNow,
		UsageToday:    usageToday,
		LineChartData: lineChart,
		BarChartData:  barChart,
	}, nil
}

// StartOfDay returns the kWh feed's reading at midnight, looking it up at most
// once per day.
func (e *Engine) StartOfDay(ctx context.Context, kwhFeedID string, midnight time.Time) (types.DataPoint, error) {
	v, cached, err := e.cache.baseline(ctx, kwhFeedID, midnight, func(ctx context.Context) (types.DataPoint, error) {
		points, err := e.client.FeedData(ctx, e.account, kwhFeedID, midnight, midnight.Add(time.Second), 1)
		if err != nil {
			return types.DataPoint{}, err
		}
		if len(points) == 0 {
			return types.DataPoint{}, errors.New("no start of day reading")
		}
		return points[0], nil
	})
	if err != nil {
		return types.DataPoint{}, fmt.Errorf("failed to get start of day reading: %w", err)
	}
	if cached {
		startOfDayLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		startOfDayLookupsTotal.WithLabelValues("miss").Inc()
		log.Ctx(ctx).DebugContext(
			ctx,
			"fetched start of day reading",
			slog.String("kwhFeedID", kwhFeedID),
			slog.Time("midnight", midnight),
			slog.Float64("value", v.Value),
		)
	}
	return v, nil
}

func (e *Engine) lineChartHistory(ctx context.Context, useFeedID string, now time.Time) ([]types.DataPoint, error) {
	from := now.Add(-lineChartWindow)
	interval := int(math.Floor(now.Sub(from).Seconds() / lineChartBuckets))
	return e.client.FeedData(ctx, e.account, useFeedID, from, now, interval)
}

func (e *Engine) barChartHistory(ctx context.Context, kwhFeedID string, now time.Time) ([]types.DataPoint, error) {
	from := now.Add(-barChartDays * 24 * time.Hour)
	points, err := e.client.FeedDataDaily(ctx, e.account, kwhFeedID, from, now)
	if err != nil {
		return nil, err
	}
	return DailyDeltas(points), nil
}
