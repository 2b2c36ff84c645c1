package datasets

import (
	"context"
	"net/http"
	"net/url"

	"github.com/illmade-knight/go-ridecache/pkg/fetch"
	"github.com/illmade-knight/go-ridecache/pkg/types"
)

// JSONFetcher is the request primitive the loaders use. *fetch.Client
// satisfies it.
type JSONFetcher interface {
	FetchJSON(ctx context.Context, path string, opts fetch.Options, out any) error
}

// LocationSource loads the active locations of a city.
type LocationSource interface {
	Locations(ctx context.Context, city string) ([]types.LocationRecord, error)
}

// APILocationSource loads locations from the ride API.
type APILocationSource struct {
	api JSONFetcher
}

// NewAPILocationSource creates a LocationSource backed by the ride API.
func NewAPILocationSource(api JSONFetcher) *APILocationSource {
	return &APILocationSource{api: api}
}

// Locations calls GET /locations?city=<city>&active=true.
func (s *APILocationSource) Locations(ctx context.Context, city string) ([]types.LocationRecord, error) {
	var out []types.LocationRecord
	err := s.api.FetchJSON(ctx, "/locations", fetch.Options{
		Method: http.MethodGet,
		Params: url.Values{"city": {city}, "active": {"true"}},
	}, &out)
	return out, err
}

func loadRideEndpoints(api JSONFetcher) func(ctx context.Context) ([]types.RideEndpoints, error) {
	return func(ctx context.Context) ([]types.RideEndpoints, error) {
		var out []types.RideEndpoints
		err := api.FetchJSON(ctx, "/rides/endpoints", fetch.Options{Method: http.MethodGet}, &out)
		return out, err
	}
}

func loadUnreadNotifications(api JSONFetcher, userID string) func(ctx context.Context) ([]types.Notification, error) {
	return func(ctx context.Context) ([]types.Notification, error) {
		var out []types.Notification
		err := api.FetchJSON(ctx, "/notifications", fetch.Options{
			Method: http.MethodGet,
			Params: url.Values{"userId": {userID}, "unread": {"true"}},
		}, &out)
		return out, err
	}
}
