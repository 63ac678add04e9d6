// Package fetch turns the paged media listing into a lazy item sequence.
package fetch

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/gphotosync/internal/media"
	"github.com/hpungsan/gphotosync/internal/photos/api"
	"github.com/hpungsan/gphotosync/internal/timestamp"
)

// Lister returns one page of media items.
type Lister interface {
	SearchMediaItems(ctx context.Context, filter api.SearchFilter) (*api.MediaItems, error)
}

// Scope selects the whole library or a single album.
type Scope struct {
	AlbumID string
}

// Library is the newest-first stream of every item.
func Library() Scope { return Scope{} }

// Album is the member stream of one album.
func Album(id string) Scope { return Scope{AlbumID: id} }

// IsAlbum reports whether s is an album scope.
func (s Scope) IsAlbum() bool { return s.AlbumID != "" }

// Stats counts what the fetcher observed across all sequences.
type Stats struct {
	Pages              int64
	Items              int64
	OrderingViolations int64
}

// Fetcher produces media item sequences from a Lister.
type Fetcher struct {
	lister     Lister
	normalizer timestamp.Normalizer
	log        *logrus.Logger

	pages      atomic.Int64
	items      atomic.Int64
	violations atomic.Int64
}

// New returns a Fetcher.
func New(lister Lister, n timestamp.Normalizer, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fetcher{lister: lister, normalizer: n, log: logger}
}

// Stats returns a snapshot of the counters.
func (f *Fetcher) Stats() Stats {
	return Stats{
		Pages:              f.pages.Load(),
		Items:              f.items.Load(),
		OrderingViolations: f.violations.Load(),
	}
}

// Items returns the items of scope, newest first, pageSize per request.
//
// When since is set the sequence ends at the first item captured strictly
// before it, even in the middle of a page. If that item opens the listing
// and a later item on its page is newer, the listing is treated as unordered:
// every page is read and only items before since are dropped. Ranging over the result again
// starts from the first page. Errors are yielded once and end the sequence.
func (f *Fetcher) Items(ctx context.Context, scope Scope, pageSize int, since *time.Time) iter.Seq2[media.Item, error] {
	return func(yield func(media.Item, error) bool) {
		filter := api.SearchFilter{
			AlbumID:  scope.AlbumID,
			PageSize: pageSize,
		}
		if since != nil && !scope.IsAlbum() {
			filter.Filters = sinceFilter(*since)
		}

		var (
			lastID    string
			previous  time.Time
			seen      bool
			filtering bool
		)
		for {
			if err := ctx.Err(); err != nil {
				yield(media.Item{}, err)
				return
			}
			page, err := f.lister.SearchMediaItems(ctx, filter)
			if err != nil {
				yield(media.Item{}, err)
				return
			}
			f.pages.Add(1)

			records := page.MediaItems
			if len(records) > 0 && seen && records[0].ID == lastID {
				// skip first if ID duplicated from last page
				records = records[1:]
			}
			for i, rec := range records {
				item, err := media.FromAPI(rec, f.normalizer)
				if err != nil {
					yield(media.Item{}, err)
					return
				}
				first := !seen
				if seen && item.Captured.After(previous) {
					f.violations.Add(1)
					f.log.WithFields(logrus.Fields{
						"album":    scope.AlbumID,
						"item":     item.ID,
						"captured": item.Captured,
						"previous": previous,
					}).Warn("listing not ordered newest-first; date cutoff may be inaccurate")
				}
				seen = true
				lastID = item.ID
				previous = item.Captured

				if since != nil && item.Captured.Before(*since) {
					if first && f.newerAhead(records[i+1:], item.Captured) {
						filtering = true
						f.log.WithFields(logrus.Fields{
							"album": scope.AlbumID,
							"item":  item.ID,
						}).Warn("listing starts before the cutoff but is not newest-first; scanning the whole listing")
					}
					if filtering {
						continue
					}
					return
				}
				f.items.Add(1)
				if !yield(item, nil) {
					return
				}
			}

			if page.NextPageToken == "" {
				return
			}
			filter.PageToken = page.NextPageToken
		}
	}
}

// newerAhead reports whether any of rest was captured after t.
func (f *Fetcher) newerAhead(rest []api.MediaItem, t time.Time) bool {
	for _, rec := range rest {
		item, err := media.FromAPI(rec, f.normalizer)
		if err == nil && item.Captured.After(t) {
			return true
		}
	}
	return false
}

// Collect drains seq into a slice, stopping after limit items when limit > 0.
func Collect(seq iter.Seq2[media.Item, error], limit int) ([]media.Item, error) {
	var out []media.Item
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// sinceFilter limits a library search to dates on or after the day before
// since. The service filters on calendar dates, so the client cutoff still
// decides the exact instant.
func sinceFilter(since time.Time) *api.Filters {
	start := since.UTC().AddDate(0, 0, -1)
	// a far end date keeps the range open-ended
	end := time.Now().UTC().AddDate(1, 0, 0)
	return &api.Filters{
		DateFilter: &api.DateFilter{
			Ranges: []api.DateRange{{
				StartDate: api.Date{Year: start.Year(), Month: int(start.Month()), Day: start.Day()},
				EndDate:   api.Date{Year: end.Year(), Month: int(end.Month()), Day: end.Day()},
			}},
		},
	}
}
