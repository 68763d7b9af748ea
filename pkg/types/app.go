package types

import (
	"fmt"
)

// CurrentAppConfigVersion is the current version of the stored AppConfig.
// Increment this value when adding new fields that require default values.
const CurrentAppConfigVersion = 1

// Keys used by the config UI when reading or writing an AppConfig as a map.
const (
	ConfigKeyName      = "name"
	ConfigKeyUseFeedID = "useFeedId"
	ConfigKeyKWHFeedID = "kwhFeedId"
)

// AppConfig is the persisted configuration of one MyElectric app. The feed ids
// are nil until the user picks a feed.
type AppConfig struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UseFeedID *string `json:"useFeedId,omitempty"`
	KWHFeedID *string `json:"kwhFeedId,omitempty"`
}

// Feeds returns the pair of feed ids the app reads from.
func (c AppConfig) Feeds() FeedPair {
	var p FeedPair
	if c.UseFeedID != nil {
		p.Use = *c.UseFeedID
		p.HasUse = true
	}
	if c.KWHFeedID != nil {
		p.KWH = *c.KWHFeedID
		p.HasKWH = true
	}
	return p
}

// Apply returns a copy of the config with the non-nil fields of the update set.
func (c AppConfig) Apply(u AppConfigUpdate) AppConfig {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.UseFeedID != nil {
		id := *u.UseFeedID
		c.UseFeedID = &id
	}
	if u.KWHFeedID != nil {
		id := *u.KWHFeedID
		c.KWHFeedID = &id
	}
	return c
}

// AppConfigUpdate is a partial update of an AppConfig. Nil fields are left
// unchanged.
type AppConfigUpdate struct {
	Name      *string `json:"name,omitempty"`
	UseFeedID *string `json:"useFeedId,omitempty"`
	KWHFeedID *string `json:"kwhFeedId,omitempty"`
}

// Empty returns true if the update would not change anything.
func (u AppConfigUpdate) Empty() bool {
	return u.Name == nil && u.UseFeedID == nil && u.KWHFeedID == nil
}

// FeedPair is the comparable (useFeedId, kwhFeedId) pair of an AppConfig.
type FeedPair struct {
	Use    string
	HasUse bool
	KWH    string
	HasKWH bool
}

// Ready returns true when both feeds are configured.
func (p FeedPair) Ready() bool {
	return p.HasUse && p.HasKWH
}

// ConfigFieldType is the kind of value a config field holds.
type ConfigFieldType string

const (
	ConfigFieldTypeString ConfigFieldType = "string"
	ConfigFieldTypeFeed   ConfigFieldType = "feed"
)

// ConfigField describes a single field the config UI should render.
type ConfigField struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Type ConfigFieldType `json:"type"`
}

// MigrateAppConfig migrates a stored config to the current version.
// It returns the migrated config, a boolean indicating if changes were made, and an error if migration failed.
func MigrateAppConfig(c AppConfig, currentVersion int) (AppConfig, bool, error) {
	if currentVersion >= CurrentAppConfigVersion {
		return c, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentAppConfigVersion; version++ {
		switch version {
		case 1:
			// version 1: initial, the app always had a name
			if c.Name == "" {
				c.Name = "My Electric"
				migrated = true
			}
		default:
			return c, false, fmt.Errorf("unknown app config version: %d", version)
		}
	}
	return c, migrated, nil
}
