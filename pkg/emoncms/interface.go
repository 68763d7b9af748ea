package emoncms

import (
	"context"
	"time"

	"github.com/emonview/emonview/pkg/types"
)

// FeedClient defines the feed data operations of an EmonCMS server.
type FeedClient interface {
	// FeedData returns the samples of a feed between from and until, bucketed
	// at the given interval in seconds, ascending by time.
	FeedData(ctx context.Context, account types.Account, feedID string, from, until time.Time, interval int) ([]types.DataPoint, error)

	// FeedDataDaily returns one sample per calendar day between from and until.
	FeedDataDaily(ctx context.Context, account types.Account, feedID string, from, until time.Time) ([]types.DataPoint, error)

	// FeedValues returns the latest value of each requested feed. Feeds without
	// a value are missing from the map rather than being an error.
	FeedValues(ctx context.Context, account types.Account, feedIDs []string) (map[string]float64, error)

	// ListFeeds returns all feeds on the account.
	ListFeeds(ctx context.Context, account types.Account) ([]types.Feed, error)
}
