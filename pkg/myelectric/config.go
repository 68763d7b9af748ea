package myelectric

import (
	"time"

	"github.com/levenlabs/go-lflag"
)

// Config holds the tunables of a view model.
type Config struct {
	RefreshInterval time.Duration
}

// Configured registers the myelectric flags. The returned Config is filled in
// once flags are parsed.
func Configured() *Config {
	c := &Config{RefreshInterval: DefaultRefreshInterval}
	interval := lflag.Duration("refresh-interval", DefaultRefreshInterval, "How often to refresh while the view is active")

	lflag.Do(func() {
		c.RefreshInterval = *interval
	})
	return c
}
