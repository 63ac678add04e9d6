package attribution

import "github.com/hpungsan/gphotosync/internal/media"

// Membership is the set of item IDs found in one album.
type Membership struct {
	Album media.Album
	Items map[string]struct{}
}

// NewMembership indexes the items of an album.
func NewMembership(album media.Album, items []media.Item) Membership {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it.ID] = struct{}{}
	}
	return Membership{Album: album, Items: set}
}

// Contains reports whether the album holds the item.
func (m Membership) Contains(id string) bool {
	_, ok := m.Items[id]
	return ok
}

// Result is the attribution of one run.
type Result struct {
	// Categories maps item ID to its category.
	Categories map[string]Category
	// Titles maps item ID to the titles used for resolution.
	Titles map[string][]string
	// Uncategorized lists the items found in no album, in input order.
	Uncategorized []media.Item
}

// Category returns the category of an item ID.
func (r *Result) Category(id string) Category {
	return r.Categories[id]
}

// Titles scans memberships in order and returns the accumulated titles for
// one item.
func (r Rules) Titles(id string, memberships []Membership) []string {
	var titles []string
	for _, m := range memberships {
		if !m.Contains(id) {
			continue
		}
		titles = append(titles, m.Album.Title)
		var stop bool
		if titles, stop = r.Step(titles); stop {
			break
		}
	}
	return titles
}

// Attribute classifies every item. memberships must be in the stable album
// order; it decides which titles accumulate first.
func Attribute(items []media.Item, memberships []Membership, rules Rules) *Result {
	res := &Result{
		Categories: make(map[string]Category, len(items)),
		Titles:     make(map[string][]string, len(items)),
	}
	for _, item := range items {
		titles := rules.Titles(item.ID, memberships)
		res.Titles[item.ID] = titles
		res.Categories[item.ID] = rules.Resolve(titles)
		if len(titles) == 0 {
			res.Uncategorized = append(res.Uncategorized, item)
		}
	}
	return res
}
