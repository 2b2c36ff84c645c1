//go:build integration

package fetch_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-ridecache/pkg/fetch"
	"github.com/illmade-knight/go-ridecache/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreLocationSource_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set; skipping Firestore integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	const projectID = "test-project"
	const collection = "locations"

	client, err := firestore.NewClient(ctx, projectID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	seed := []types.LocationRecord{
		{ID: "a", Name: "MSU Baroda", Category: "Universities & Colleges", City: "Vadodara", Active: true, DisplayOrder: 2},
		{ID: "b", Name: "Vadodara Junction", Category: "Transport Hubs", City: "Vadodara", Active: true, DisplayOrder: 1},
		{ID: "c", Name: "Old Depot", Category: "Transport Hubs", City: "Vadodara", Active: false, DisplayOrder: 0},
		{ID: "d", Name: "Ahmedabad Junction", Category: "Transport Hubs", City: "Ahmedabad", Active: true, DisplayOrder: 0},
	}
	for _, rec := range seed {
		_, err := client.Collection(collection).Doc(rec.ID).Set(ctx, rec)
		require.NoError(t, err)
	}

	src, err := fetch.NewFirestoreLocationSource(&fetch.FirestoreConfig{ProjectID: projectID, CollectionName: collection}, client, zerolog.Nop())
	require.NoError(t, err)

	records, err := src.Locations(ctx, "Vadodara")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Vadodara Junction", records[0].Name)
	assert.Equal(t, "MSU Baroda", records[1].Name)
}
