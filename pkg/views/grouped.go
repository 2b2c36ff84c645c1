// Package views derives the render-ready structures from cached payloads.
// Every builder is a pure function of its input: the same input always gives
// the same output and inputs are never modified.
package views

import (
	"cmp"
	"slices"

	"github.com/illmade-knight/go-ridecache/pkg/types"
)

// BuildGrouped groups active locations by category.
//
// Categories listed in categoryOrder come first, in that order. Categories
// outside the list are appended after them in the order they are first
// encountered. Empty categories are omitted. Within a category, locations
// are ordered by DisplayOrder with ties kept in input order.
func BuildGrouped(records []types.LocationRecord, categoryOrder []string) types.GroupedView {
	buckets := make(map[string][]types.LocationRecord)
	var encountered []string
	for _, rec := range records {
		if !rec.Active {
			continue
		}
		if _, seen := buckets[rec.Category]; !seen {
			encountered = append(encountered, rec.Category)
		}
		buckets[rec.Category] = append(buckets[rec.Category], rec)
	}

	ordered := make([]string, 0, len(encountered))
	listed := make(map[string]bool, len(categoryOrder))
	for _, cat := range categoryOrder {
		if listed[cat] {
			continue
		}
		listed[cat] = true
		if _, ok := buckets[cat]; ok {
			ordered = append(ordered, cat)
		}
	}
	for _, cat := range encountered {
		if !listed[cat] {
			ordered = append(ordered, cat)
		}
	}

	view := types.GroupedView{Categories: make([]types.CategoryGroup, 0, len(ordered))}
	for _, cat := range ordered {
		locs := buckets[cat]
		slices.SortStableFunc(locs, func(a, b types.LocationRecord) int {
			return cmp.Compare(a.DisplayOrder, b.DisplayOrder)
		})
		view.Categories = append(view.Categories, types.CategoryGroup{Category: cat, Locations: locs})
	}
	return view
}
