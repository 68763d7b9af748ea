package emoncms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emonview/emonview/pkg/common"
	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/types"
)

// Client implements FeedClient against the EmonCMS HTTP API.
type Client struct {
	client *http.Client
}

var _ FeedClient = (*Client)(nil)

// NewClient returns a Client whose requests time out after timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		client: common.HTTPClient(timeout),
	}
}

// FeedData returns the samples of a feed bucketed at interval seconds.
func (c *Client) FeedData(ctx context.Context, account types.Account, feedID string, from, until time.Time, interval int) ([]types.DataPoint, error) {
	params := url.Values{}
	params.Set("id", feedID)
	params.Set("start", strconv.FormatInt(from.UnixMilli(), 10))
	params.Set("end", strconv.FormatInt(until.UnixMilli(), 10))
	params.Set("interval", strconv.Itoa(interval))

	points, err := c.getDataPoints(ctx, account, params)
	if err != nil {
		return nil, fmt.Errorf("feed data failed (id=%s): %w", feedID, err)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"got emoncms feed data",
		slog.String("feedID", feedID),
		slog.Time("from", from),
		slog.Time("until", until),
		slog.Int("interval", interval),
		slog.Int("count", len(points)),
	)
	return points, nil
}

// FeedDataDaily returns one sample per day for a feed.
func (c *Client) FeedDataDaily(ctx context.Context, account types.Account, feedID string, from, until time.Time) ([]types.DataPoint, error) {
	params := url.Values{}
	params.Set("id", feedID)
	params.Set("start", strconv.FormatInt(from.UnixMilli(), 10))
	params.Set("end", strconv.FormatInt(until.UnixMilli(), 10))
	params.Set("mode", "daily")

	points, err := c.getDataPoints(ctx, account, params)
	if err != nil {
		return nil, fmt.Errorf("daily feed data failed (id=%s): %w", feedID, err)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"got emoncms daily feed data",
		slog.String("feedID", feedID),
		slog.Time("from", from),
		slog.Time("until", until),
		slog.Int("count", len(points)),
	)
	return points, nil
}

// FeedValues returns the latest value of each feed in a single request.
func (c *Client) FeedValues(ctx context.Context, account types.Account, feedIDs []string) (map[string]float64, error) {
	if len(feedIDs) == 0 {
		return map[string]float64{}, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(feedIDs, ","))

	req, err := c.newGetRequest(ctx, account, "feed/fetch.json", params)
	if err != nil {
		return nil, err
	}

	var raw []number
	if err := c.doRequest(req, &raw); err != nil {
		return nil, fmt.Errorf("feed values failed: %w", err)
	}

	values := make(map[string]float64, len(feedIDs))
	for i, id := range feedIDs {
		if i >= len(raw) || !raw[i].valid {
			continue
		}
		values[id] = raw[i].value
	}
	return values, nil
}

type feedListEntry struct {
	ID    flexString `json:"id"`
	Name  string     `json:"name"`
	Tag   string     `json:"tag"`
	Time  number     `json:"time"`
	Value number     `json:"value"`
}

// ListFeeds returns all of the feeds on the account.
func (c *Client) ListFeeds(ctx context.Context, account types.Account) ([]types.Feed, error) {
	req, err := c.newGetRequest(ctx, account, "feed/list.json", nil)
	if err != nil {
		return nil, err
	}

	var entries []feedListEntry
	if err := c.doRequest(req, &entries); err != nil {
		return nil, fmt.Errorf("list feeds failed: %w", err)
	}

	feeds := make([]types.Feed, 0, len(entries))
	for _, e := range entries {
		f := types.Feed{
			ID:    string(e.ID),
			Name:  e.Name,
			Tag:   e.Tag,
			Value: e.Value.value,
		}
		if e.Time.valid {
			f.Time = time.Unix(int64(e.Time.value), 0)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func (c *Client) getDataPoints(ctx context.Context, account types.Account, params url.Values) ([]types.DataPoint, error) {
	req, err := c.newGetRequest(ctx, account, "feed/data.json", params)
	if err != nil {
		return nil, err
	}

	var raw [][]*float64
	if err := c.doRequest(req, &raw); err != nil {
		return nil, err
	}

	points := make([]types.DataPoint, 0, len(raw))
	for _, p := range raw {
		// emoncms returns null for buckets without data
		if len(p) < 2 || p[0] == nil || p[1] == nil {
			continue
		}
		points = append(points, types.DataPoint{
			Time:  time.UnixMilli(int64(*p[0])),
			Value: *p[1],
		})
	}
	return points, nil
}

func (c *Client) newGetRequest(ctx context.Context, account types.Account, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(account.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid account url: %w", err)
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", account.APIKey)
	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
}

type errorResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

func (c *Client) doRequest(req *http.Request, dest interface{}) error {
	ctx := req.Context()

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).ErrorContext(ctx, "emoncms request failed", slog.Int("status", resp.StatusCode), slog.String("path", req.URL.Path))
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body = bytes.TrimSpace(body)
	// errors come back as an object while every result we ask for is an array
	if len(body) > 0 && body[0] == '{' {
		var er errorResponse
		if err := json.Unmarshal(body, &er); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to decode emoncms error", slog.Any("error", err), slog.String("body", string(body)))
			return err
		}
		if er.Message == "" {
			return errors.New("emoncms unknown error")
		}
		log.Ctx(ctx).ErrorContext(ctx, "emoncms api error", slog.String("message", er.Message))
		return fmt.Errorf("emoncms api error: %s", er.Message)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode emoncms result", slog.Any("error", err), slog.String("body", string(body)))
		return fmt.Errorf("failed to decode emoncms result: %w", err)
	}
	return nil
}

// number decodes a JSON number, a numeric string or null.
type number struct {
	value float64
	valid bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	*n = number{}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			// non-numeric values are treated as missing
			return nil
		}
		n.value, n.valid = f, true
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return nil
	}
	n.value, n.valid = f, true
	return nil
}

// flexString decodes either a JSON string or a JSON number as a string.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	*s = flexString(strings.TrimSpace(string(b)))
	return nil
}
