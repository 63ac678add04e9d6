// Package attribution assigns every new item to exactly one category based
// on the albums it belongs to.
package attribution

import "slices"

// Category is the single destination label of an item: an album title or
// one of the synthetic categories.
type Category string

// Default category names and threshold.
const (
	DefaultVideos     = "Videos"
	DefaultGroup      = "Group Stuff"
	DefaultUnsorted   = "Not in any album"
	DefaultCollapseAt = 3
)

// DefaultCatchAll lists the albums that end the scan as soon as they match.
var DefaultCatchAll = []string{"Random People", "Unspecified"}

// Rules are the names and threshold driving attribution.
type Rules struct {
	// CatchAll titles stop the album scan, keeping the titles accumulated so far.
	CatchAll []string
	// Videos is both a collapse trigger and the collapsed category.
	Videos string
	// Group is the category of items in exactly two albums.
	Group string
	// Unsorted is the category of items in no album.
	Unsorted string
	// CollapseAt is the title count that collapses an item to Videos.
	CollapseAt int
}

// DefaultRules returns the stock rule set.
func DefaultRules() Rules {
	return Rules{
		CatchAll:   slices.Clone(DefaultCatchAll),
		Videos:     DefaultVideos,
		Group:      DefaultGroup,
		Unsorted:   DefaultUnsorted,
		CollapseAt: DefaultCollapseAt,
	}
}

// action is what a matching rule does to the scan.
type action int

const (
	actionContinue action = iota
	actionStop
	actionCollapse
)

// rule is one row of the decision table.
type rule struct {
	name   string
	when   func(titles []string) bool
	action action
}

// table returns the decision table, evaluated in order after each album
// match. The first rule whose predicate holds decides.
func (r Rules) table() []rule {
	return []rule{
		{
			name: "catch-all",
			when: func(titles []string) bool {
				return slices.ContainsFunc(titles, func(t string) bool {
					return slices.Contains(r.CatchAll, t)
				})
			},
			action: actionStop,
		},
		{
			name: "collapse",
			when: func(titles []string) bool {
				return slices.Contains(titles, r.Videos) || len(titles) >= r.CollapseAt
			},
			action: actionCollapse,
		},
	}
}

// Step applies the decision table to the titles accumulated so far. It
// returns the titles to keep and whether the album scan ends.
func (r Rules) Step(titles []string) ([]string, bool) {
	for _, row := range r.table() {
		if !row.when(titles) {
			continue
		}
		switch row.action {
		case actionStop:
			return titles, true
		case actionCollapse:
			return []string{r.Videos}, true
		}
	}
	return titles, false
}

// Resolve maps the accumulated titles to a category.
//
// More than two titles only survive when a catch-all match ends the scan at
// the third album; the first title wins then.
func (r Rules) Resolve(titles []string) Category {
	switch len(titles) {
	case 0:
		return Category(r.Unsorted)
	case 2:
		return Category(r.Group)
	default:
		return Category(titles[0])
	}
}

// IsUnsorted reports whether c is the no-album category.
func (r Rules) IsUnsorted(c Category) bool {
	return string(c) == r.Unsorted
}
