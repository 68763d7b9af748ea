package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/types"
)

// EnsureAppConfig returns the app config to run. With an id it loads that app
// and creates it from defaults if it is missing. Without an id it uses the
// only stored app, or creates one from defaults if there are none.
func EnsureAppConfig(ctx context.Context, db Database, id string, defaults types.AppConfig) (types.AppConfig, bool, error) {
	if id != "" {
		cfg, err := db.GetAppConfig(ctx, id)
		if err == nil {
			return cfg, false, nil
		}
		if !errors.Is(err, ErrAppNotFound) {
			return types.AppConfig{}, false, err
		}
	} else {
		apps, err := db.ListAppConfigs(ctx)
		if err != nil {
			return types.AppConfig{}, false, err
		}
		switch len(apps) {
		case 0:
		case 1:
			return apps[0], false, nil
		default:
			return types.AppConfig{}, false, fmt.Errorf("found %d apps, an app id is required", len(apps))
		}
	}

	defaults.ID = id
	if defaults.Name == "" {
		defaults.Name = "My Electric"
	}
	cfg, err := db.CreateAppConfig(ctx, defaults)
	if err != nil {
		return types.AppConfig{}, false, err
	}
	log.Ctx(ctx).InfoContext(ctx, "created app", slog.String("appID", cfg.ID), slog.String("name", cfg.Name))
	return cfg, true, nil
}
