package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/emonview/emonview/pkg/emoncms"
	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/storage"
	"github.com/emonview/emonview/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// seed creates or updates an app config, picking feeds from the account by
// name when ids aren't given.
func main() {
	s := storage.Configured()
	client, account := emoncms.Configured()

	appID := lflag.String("app-id", "", "ID of the app to create or update. Defaults to the only stored app")
	appName := lflag.String("app-name", "", "Name of the app")
	useFeedID := lflag.String("use-feed-id", "", "Power feed id")
	kwhFeedID := lflag.String("kwh-feed-id", "", "Cumulative kWh feed id")
	useFeedName := lflag.String("use-feed-name", "use", "Power feed name to look up when use-feed-id is empty")
	kwhFeedName := lflag.String("kwh-feed-name", "use_kwh", "kWh feed name to look up when kwh-feed-id is empty")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	if *useFeedID == "" || *kwhFeedID == "" {
		feeds, err := client.ListFeeds(ctx, *account)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to list feeds", "error", err)
			os.Exit(1)
		}
		for _, f := range feeds {
			if *useFeedID == "" && f.Name == *useFeedName {
				*useFeedID = f.ID
			}
			if *kwhFeedID == "" && f.Name == *kwhFeedName {
				*kwhFeedID = f.ID
			}
		}
		log.Ctx(ctx).InfoContext(ctx, "looked up feeds", "feeds", len(feeds), "useFeedID", *useFeedID, "kwhFeedID", *kwhFeedID)
	}

	var update types.AppConfigUpdate
	if *appName != "" {
		update.Name = appName
	}
	if *useFeedID != "" {
		update.UseFeedID = useFeedID
	}
	if *kwhFeedID != "" {
		update.KWHFeedID = kwhFeedID
	}

	app, created, err := storage.EnsureAppConfig(ctx, s, *appID, types.AppConfig{}.Apply(update))
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load app", "error", err)
		os.Exit(1)
	}
	if !created && !update.Empty() {
		if err := s.UpdateAppConfig(ctx, app.ID, update); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to update app", "error", err)
			os.Exit(1)
		}
		app = app.Apply(update)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(app); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to print app", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "seeded app", "appID", app.ID, "created", created)
}
