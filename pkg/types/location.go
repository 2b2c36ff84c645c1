package types

// LocationRecord is one entry of the reference-location catalog for a city.
// Name is what the UI selects on, so it acts as the effective identity even
// though it is only guaranteed unique within a category.
type LocationRecord struct {
	ID           string `json:"id" firestore:"id"`
	Name         string `json:"name" firestore:"name"`
	Category     string `json:"category" firestore:"category"`
	City         string `json:"city" firestore:"city"`
	Active       bool   `json:"active" firestore:"active"`
	DisplayOrder int    `json:"displayOrder" firestore:"displayOrder"`
}

// CategoryGroup holds the locations of a single category, already ordered.
type CategoryGroup struct {
	Category  string           `json:"category"`
	Locations []LocationRecord `json:"locations"`
}

// GroupedView is the catalog grouped by category. Categories are kept in a
// slice rather than a map so the render order survives serialization.
type GroupedView struct {
	Categories []CategoryGroup `json:"categories"`
}

// Lookup returns the locations of a category and whether it is present.
func (g GroupedView) Lookup(category string) ([]LocationRecord, bool) {
	for _, c := range g.Categories {
		if c.Category == category {
			return c.Locations, true
		}
	}
	return nil, false
}

// CategoryNames lists the categories in render order.
func (g GroupedView) CategoryNames() []string {
	names := make([]string, 0, len(g.Categories))
	for _, c := range g.Categories {
		names = append(names, c.Category)
	}
	return names
}
