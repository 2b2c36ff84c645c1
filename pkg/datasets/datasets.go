package datasets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/illmade-knight/go-ridecache/pkg/adapter"
	"github.com/illmade-knight/go-ridecache/pkg/fetch"
	"github.com/illmade-knight/go-ridecache/pkg/invalidation"
	"github.com/illmade-knight/go-ridecache/pkg/types"
	"github.com/illmade-knight/go-ridecache/pkg/views"
)

// LocationCatalog serves a city's locations grouped by category.
type LocationCatalog struct {
	city string
	*adapter.Adapter[[]types.LocationRecord, types.GroupedView]
}

// City returns the catalog's city.
func (c *LocationCatalog) City() string { return c.city }

// LocationSuggestions serves places ranked by how often they appear in rides.
type LocationSuggestions struct {
	*adapter.Adapter[[]types.RideEndpoints, []types.SuggestionRecord]
}

// Search reads the suggestions and keeps those starting with prefix, capped
// at limit. Loading, staleness and errors are those of the underlying read.
func (s *LocationSuggestions) Search(ctx context.Context, prefix string, limit int) adapter.Result[[]types.SuggestionRecord] {
	res := s.Read(ctx)
	res.Data = views.FilterSuggestions(res.Data, prefix, limit)
	return res
}

// UnreadNotifications serves a user's unread notification badge.
type UnreadNotifications struct {
	userID string
	api    JSONFetcher
	poller *invalidation.Poller
	*adapter.Adapter[[]types.Notification, types.UnreadSummary]
}

// UserID returns the user the notifications belong to.
func (n *UnreadNotifications) UserID() string { return n.userID }

// Subscribe starts polling for the user while the subscription is held.
// Callers must Unsubscribe when they stop rendering the badge.
func (n *UnreadNotifications) Subscribe() (*invalidation.Subscription, error) {
	if n.poller == nil {
		return nil, errors.New("notification polling is not configured")
	}
	return n.poller.Subscribe(n.Key())
}

// MarkRead marks one notification as read and refreshes the dataset, since
// the cached unread list is known to be wrong after the write.
func (n *UnreadNotifications) MarkRead(ctx context.Context, notificationID string) (adapter.Result[types.UnreadSummary], error) {
	id := strings.TrimSpace(notificationID)
	if id == "" {
		return adapter.Result[types.UnreadSummary]{}, errors.New("notification id cannot be empty")
	}
	err := n.api.FetchJSON(ctx, "/notifications/"+url.PathEscape(id)+"/read", fetch.Options{Method: http.MethodPost}, nil)
	if err != nil {
		return adapter.Result[types.UnreadSummary]{}, fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	return n.Refresh(ctx), nil
}
