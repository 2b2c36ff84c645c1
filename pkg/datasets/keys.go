// Package datasets binds the reference-data datasets of the ride app to the
// generic adapter: their keys, freshness windows, loaders and views.
package datasets

import (
	"strings"
	"time"
)

const (
	// LocationsTTL is the freshness window of a city's location catalog.
	LocationsTTL = 5 * time.Minute
	// SuggestionsTTL is the freshness window of the ride-based suggestions.
	SuggestionsTTL = 2 * time.Minute
	// NotificationPollInterval is how often unread notifications are
	// invalidated while someone is subscribed. They have no TTL.
	NotificationPollInterval = 15 * time.Second

	LocationsKeyPrefix           = "locations:"
	SuggestionsKey               = "location-suggestions"
	UnreadNotificationsKeyPrefix = "unread-notifications:"
)

// DefaultCategoryOrder is the render order of location categories.
var DefaultCategoryOrder = []string{
	"Universities & Colleges",
	"Transport Hubs",
	"Hospitals",
	"Shopping & Markets",
	"Offices & Business Parks",
	"Residential Areas",
	"Landmarks",
}

// LocationsKey returns the cache key of a city's catalog.
func LocationsKey(city string) string {
	return LocationsKeyPrefix + strings.TrimSpace(city)
}

// UnreadNotificationsKey returns the cache key of a user's unread notifications.
func UnreadNotificationsKey(userID string) string {
	return UnreadNotificationsKeyPrefix + strings.TrimSpace(userID)
}
