package views

import (
	"cmp"
	"slices"
	"strings"

	"github.com/illmade-knight/go-ridecache/pkg/types"
	"golang.org/x/text/cases"
)

type suggestionTally struct {
	name          string
	count         int
	asSource      bool
	asDestination bool
}

// BuildSuggestions ranks every place that appears as a ride endpoint.
// Names are matched case-insensitively and keep the casing they were first
// seen with. The result is ordered by count descending; equal counts keep
// first-seen order.
func BuildSuggestions(rides []types.RideEndpoints) []types.SuggestionRecord {
	fold := cases.Fold()
	index := make(map[string]int)
	var tallies []*suggestionTally

	observe := func(name string, source bool) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := fold.String(name)
		i, ok := index[key]
		if !ok {
			i = len(tallies)
			index[key] = i
			tallies = append(tallies, &suggestionTally{name: name})
		}
		t := tallies[i]
		t.count++
		if source {
			t.asSource = true
		} else {
			t.asDestination = true
		}
	}

	for _, ride := range rides {
		observe(ride.Source, true)
		observe(ride.Destination, false)
	}

	out := make([]types.SuggestionRecord, 0, len(tallies))
	for _, t := range tallies {
		role := types.RoleBoth
		switch {
		case t.asSource && !t.asDestination:
			role = types.RoleSource
		case t.asDestination && !t.asSource:
			role = types.RoleDestination
		}
		out = append(out, types.SuggestionRecord{Name: t.name, Count: t.count, Role: role})
	}
	slices.SortStableFunc(out, func(a, b types.SuggestionRecord) int {
		return cmp.Compare(b.Count, a.Count)
	})
	return out
}

// FilterSuggestions returns the suggestions whose name starts with prefix,
// ignoring case, capped at limit entries. A limit <= 0 means no cap. The
// ranking of the input is preserved.
func FilterSuggestions(suggestions []types.SuggestionRecord, prefix string, limit int) []types.SuggestionRecord {
	fold := cases.Fold()
	p := fold.String(strings.TrimSpace(prefix))

	out := make([]types.SuggestionRecord, 0)
	for _, s := range suggestions {
		if limit > 0 && len(out) == limit {
			break
		}
		if strings.HasPrefix(fold.String(s.Name), p) {
			out = append(out, s)
		}
	}
	return out
}
