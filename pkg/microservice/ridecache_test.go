package microservice_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-ridecache/pkg/datasets"
	"github.com/illmade-knight/go-ridecache/pkg/fetch"
	"github.com/illmade-knight/go-ridecache/pkg/microservice"
	"github.com/illmade-knight/go-ridecache/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Data      json.RawMessage `json:"data"`
	Stale     bool            `json:"stale"`
	Error     string          `json:"error"`
	FetchedAt *time.Time      `json:"fetchedAt"`
}

// newService wires the service to an upstream API served by upstream.
func newService(t *testing.T, upstream http.Handler) *microservice.RideCacheService {
	t.Helper()
	svc, _ := newServiceWithRegistry(t, upstream)
	return svc
}

func newServiceWithRegistry(t *testing.T, upstream http.Handler) (*microservice.RideCacheService, *datasets.Registry) {
	t.Helper()
	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)

	client, err := fetch.NewClient(&fetch.ClientConfig{BaseURL: api.URL, Timeout: 5 * time.Second}, api.Client(), nil, zerolog.Nop())
	require.NoError(t, err)
	reg, err := datasets.NewRegistry(datasets.RegistryConfig{}, client, nil, datasets.NewInMemoryStores(zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	return microservice.NewRideCacheService(":0", reg, 10, zerolog.Nop()), reg
}

func do(t *testing.T, svc *microservice.RideCacheService, method, path string) (int, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	svc.Mux().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestRideCacheService_Locations(t *testing.T) {
	var calls atomic.Int32
	var failing atomic.Bool
	upstream := http.NewServeMux()
	upstream.HandleFunc("GET /locations", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"catalog offline"}`))
			return
		}
		_ = json.NewEncoder(w).Encode([]types.LocationRecord{
			{ID: "1", Name: "Vadodara Junction", Category: "Transport Hubs", City: r.URL.Query().Get("city"), Active: true},
		})
	})
	svc := newService(t, upstream)

	t.Run("Read returns the grouped view", func(t *testing.T) {
		code, body := do(t, svc, http.MethodGet, "/v1/locations/Vadodara")

		require.Equal(t, http.StatusOK, code)
		var view types.GroupedView
		require.NoError(t, json.Unmarshal(body.Data, &view))
		assert.Equal(t, []string{"Transport Hubs"}, view.CategoryNames())
		assert.False(t, body.Stale)
		assert.NotNil(t, body.FetchedAt)
	})

	t.Run("Failed refresh serves last-known data with an error flag", func(t *testing.T) {
		failing.Store(true)
		code, body := do(t, svc, http.MethodPost, "/v1/refresh/locations/Vadodara")

		require.Equal(t, http.StatusOK, code)
		assert.True(t, body.Stale)
		assert.Contains(t, body.Error, "catalog offline")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("First load failure is an upstream error", func(t *testing.T) {
		code, body := do(t, svc, http.MethodGet, "/v1/locations/Surat")

		assert.Equal(t, http.StatusBadGateway, code)
		assert.Contains(t, body.Error, "catalog offline")
	})
}

func TestRideCacheService_Suggestions(t *testing.T) {
	upstream := http.NewServeMux()
	upstream.HandleFunc("GET /rides/endpoints", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]types.RideEndpoints{
			{Source: "Alkapuri", Destination: "Akota"},
			{Source: "Alkapuri", Destination: "Gotri"},
		})
	})
	svc := newService(t, upstream)

	code, body := do(t, svc, http.MethodGet, "/v1/locations/suggestions?q=a&limit=1")

	require.Equal(t, http.StatusOK, code)
	var got []types.SuggestionRecord
	require.NoError(t, json.Unmarshal(body.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, types.SuggestionRecord{Name: "Alkapuri", Count: 2, Role: types.RoleSource}, got[0])

	code, _ = do(t, svc, http.MethodGet, "/v1/locations/suggestions?limit=-1")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRideCacheService_Notifications(t *testing.T) {
	var read atomic.Bool
	upstream := http.NewServeMux()
	upstream.HandleFunc("GET /notifications", func(w http.ResponseWriter, r *http.Request) {
		list := []types.Notification{{ID: "n1", UserID: r.URL.Query().Get("userId")}}
		if read.Load() {
			list = nil
		}
		_ = json.NewEncoder(w).Encode(list)
	})
	upstream.HandleFunc("POST /notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		read.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	svc := newService(t, upstream)

	code, body := do(t, svc, http.MethodGet, "/v1/notifications/user-1/unread")
	require.Equal(t, http.StatusOK, code)
	var summary types.UnreadSummary
	require.NoError(t, json.Unmarshal(body.Data, &summary))
	assert.Equal(t, 1, summary.Count)

	code, body = do(t, svc, http.MethodPost, "/v1/notifications/user-1/n1/read")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body.Data, &summary))
	assert.Equal(t, 0, summary.Count)
}

func TestBaseServer_StartAndShutdown(t *testing.T) {
	svc := newService(t, http.NewServeMux())
	require.NoError(t, svc.Start(context.Background()))

	resp, err := http.Get(fmt.Sprintf("http://localhost%s/healthz", svc.GetHTTPPort()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
}

func TestRideCacheService_ClearCache(t *testing.T) {
	var calls atomic.Int32
	upstream := http.NewServeMux()
	upstream.HandleFunc("GET /rides/endpoints", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode([]types.RideEndpoints{{Source: "Alkapuri", Destination: "Akota"}})
	})
	svc := newService(t, upstream)

	code, _ := do(t, svc, http.MethodGet, "/v1/locations/suggestions")
	require.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	svc.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/cache", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	code, body := do(t, svc, http.MethodGet, "/v1/locations/suggestions")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, body.Stale, "a cleared key loads again instead of serving stale data")
	assert.Equal(t, int32(2), calls.Load())
}

func TestRideCacheService_Readiness(t *testing.T) {
	svc, reg := newServiceWithRegistry(t, http.NewServeMux())

	rec := httptest.NewRecorder()
	svc.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, reg.Close())

	rec = httptest.NewRecorder()
	svc.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), datasets.ErrRegistryClosed.Error())
}
