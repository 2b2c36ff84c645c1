package invalidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/illmade-knight/go-ridecache/pkg/cache"
)

// ErrNoRoute is returned for keys no registered target owns.
var ErrNoRoute = errors.New("no invalidation target for key")

type route struct {
	prefix string
	target cache.Invalidator
}

// Router dispatches invalidations to the store owning a key, chosen by the
// longest matching key prefix. Datasets keep their payloads in separately
// typed stores, so a change feed needs this to reach the right one.
type Router struct {
	mu     sync.RWMutex
	routes []route
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{}
}

// Route sends keys starting with prefix to target. A later call with the
// same prefix replaces the earlier target.
func (r *Router) Route(prefix string, target cache.Invalidator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.routes {
		if r.routes[i].prefix == prefix {
			r.routes[i].target = target
			return
		}
	}
	r.routes = append(r.routes, route{prefix: prefix, target: target})
}

// Invalidate satisfies cache.Invalidator.
func (r *Router) Invalidate(ctx context.Context, key string) error {
	r.mu.RLock()
	var best route
	found := false
	for _, rt := range r.routes {
		if strings.HasPrefix(key, rt.prefix) && (!found || len(rt.prefix) > len(best.prefix)) {
			best, found = rt, true
		}
	}
	r.mu.RUnlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrNoRoute, key)
	}
	return best.target.Invalidate(ctx, key)
}
