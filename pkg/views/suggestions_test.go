package views_test

import (
	"testing"

	"github.com/illmade-knight/go-ridecache/pkg/types"
	"github.com/illmade-knight/go-ridecache/pkg/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSuggestions(t *testing.T) {
	t.Run("Counts, roles and first-seen casing", func(t *testing.T) {
		// Arrange
		rides := []types.RideEndpoints{
			{Source: "Alkapuri", Destination: "Vadodara Junction"},
			{Source: "alkapuri", Destination: "MSU Baroda"},
			{Source: "VADODARA JUNCTION", Destination: "Alkapuri"},
		}

		// Act
		got := views.BuildSuggestions(rides)

		// Assert
		require.Len(t, got, 3)
		assert.Equal(t, types.SuggestionRecord{Name: "Alkapuri", Count: 3, Role: types.RoleBoth}, got[0])
		assert.Equal(t, types.SuggestionRecord{Name: "Vadodara Junction", Count: 2, Role: types.RoleBoth}, got[1])
		assert.Equal(t, types.SuggestionRecord{Name: "MSU Baroda", Count: 1, Role: types.RoleDestination}, got[2])
	})

	t.Run("Equal counts keep first-seen order", func(t *testing.T) {
		rides := []types.RideEndpoints{
			{Source: "Gotri", Destination: "Akota"},
			{Source: "Manjalpur", Destination: "Fatehgunj"},
		}

		got := views.BuildSuggestions(rides)

		assert.Equal(t, []string{"Gotri", "Akota", "Manjalpur", "Fatehgunj"}, suggestionNames(got))
		assert.Equal(t, types.RoleSource, got[0].Role)
		assert.Equal(t, types.RoleDestination, got[1].Role)
	})

	t.Run("Blank endpoints are ignored", func(t *testing.T) {
		got := views.BuildSuggestions([]types.RideEndpoints{{Source: "  ", Destination: " Akota "}})

		require.Len(t, got, 1)
		assert.Equal(t, "Akota", got[0].Name)
	})

	t.Run("Deterministic", func(t *testing.T) {
		rides := []types.RideEndpoints{
			{Source: "A", Destination: "B"}, {Source: "B", Destination: "C"}, {Source: "C", Destination: "A"},
		}
		assert.Equal(t, views.BuildSuggestions(rides), views.BuildSuggestions(rides))
	})
}

func TestFilterSuggestions(t *testing.T) {
	suggestions := []types.SuggestionRecord{
		{Name: "Alkapuri", Count: 5}, {Name: "Akota", Count: 4}, {Name: "Gotri", Count: 3}, {Name: "alembic Road", Count: 1},
	}

	assert.Equal(t, []string{"Alkapuri", "alembic Road"}, suggestionNames(views.FilterSuggestions(suggestions, "AL", 0)))
	assert.Equal(t, []string{"Alkapuri"}, suggestionNames(views.FilterSuggestions(suggestions, "al", 1)))
	assert.Len(t, views.FilterSuggestions(suggestions, "", 0), 4)
	assert.Empty(t, views.FilterSuggestions(suggestions, "zz", 10))
}

func suggestionNames(s []types.SuggestionRecord) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, r.Name)
	}
	return out
}
