// Package membership loads the members of every album, one album at a time
// or with a bounded worker pool.
package membership

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/gphotosync/internal/attribution"
	"github.com/hpungsan/gphotosync/internal/fetch"
	"github.com/hpungsan/gphotosync/internal/media"
	"github.com/hpungsan/gphotosync/internal/timestamp"
)

// ListerFactory builds an independent lister for one task. Listers are not
// shared between workers.
type ListerFactory func() (fetch.Lister, error)

// Options control how memberships are loaded.
type Options struct {
	// Workers is the number of concurrent album loads; 1 or less is sequential.
	Workers  int
	PageSize int
	// Since bounds every album scan when set.
	Since      *time.Time
	Normalizer timestamp.Normalizer
	Logger     *logrus.Logger
}

// Result holds the loaded memberships in album order.
type Result struct {
	Memberships []attribution.Membership
	// OrderingViolations counts items seen out of newest-first order.
	OrderingViolations int64
}

// tagged carries a membership with the index of its album.
type tagged struct {
	index      int
	membership attribution.Membership
	violations int64
}

// Load returns the membership of every album in the order of albums. The
// first failure cancels the remaining work and is returned.
func Load(ctx context.Context, albums []media.Album, factory ListerFactory, opt Options) (*Result, error) {
	if opt.Logger == nil {
		opt.Logger = logrus.StandardLogger()
	}
	if opt.Workers <= 1 {
		return loadSequential(ctx, albums, factory, opt)
	}
	return loadParallel(ctx, albums, factory, opt)
}

func loadSequential(ctx context.Context, albums []media.Album, factory ListerFactory, opt Options) (*Result, error) {
	lister, err := factory()
	if err != nil {
		return nil, err
	}
	res := &Result{Memberships: make([]attribution.Membership, 0, len(albums))}
	for _, album := range albums {
		t, err := loadAlbum(ctx, lister, album, opt)
		if err != nil {
			return nil, err
		}
		res.Memberships = append(res.Memberships, t.membership)
		res.OrderingViolations += t.violations
	}
	return res, nil
}

func loadParallel(ctx context.Context, albums []media.Album, factory ListerFactory, opt Options) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.Workers)

	results := make(chan tagged, len(albums))
	for i, album := range albums {
		g.Go(func() error {
			lister, err := factory()
			if err != nil {
				return err
			}
			t, err := loadAlbum(gctx, lister, album, opt)
			if err != nil {
				return err
			}
			t.index = i
			results <- t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	collected := make([]tagged, 0, len(albums))
	for r := range results {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(a, b int) bool {
		return collected[a].index < collected[b].index
	})

	res := &Result{Memberships: make([]attribution.Membership, len(collected))}
	for i, r := range collected {
		res.Memberships[i] = r.membership
		res.OrderingViolations += r.violations
	}
	return res, nil
}

func loadAlbum(ctx context.Context, lister fetch.Lister, album media.Album, opt Options) (tagged, error) {
	f := fetch.New(lister, opt.Normalizer, opt.Logger)
	items, err := fetch.Collect(f.Items(ctx, fetch.Album(album.ID), opt.PageSize, opt.Since), 0)
	if err != nil {
		return tagged{}, fmt.Errorf("album %q: %w", album.Title, err)
	}
	opt.Logger.WithFields(logrus.Fields{
		"album":    album.Title,
		"members":  len(items),
		"declared": album.ItemCount,
	}).Debug("album loaded")
	return tagged{
		membership: attribution.NewMembership(album, items),
		violations: f.Stats().OrderingViolations,
	}, nil
}
