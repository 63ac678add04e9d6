package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/hpungsan/gphotosync/internal/attribution"
	"github.com/hpungsan/gphotosync/internal/boundary"
	"github.com/hpungsan/gphotosync/internal/db"
	"github.com/hpungsan/gphotosync/internal/errors"
	"github.com/hpungsan/gphotosync/internal/fetch"
	"github.com/hpungsan/gphotosync/internal/materialize"
	"github.com/hpungsan/gphotosync/internal/media"
	"github.com/hpungsan/gphotosync/internal/membership"
	"github.com/hpungsan/gphotosync/internal/report"
)

// SyncOutput is the result of one run.
type SyncOutput struct {
	RunID      string `json:"run_id"`
	NothingNew bool   `json:"nothing_new"`

	BoundaryBefore  string `json:"boundary_before,omitempty"`
	BoundaryAfter   string `json:"boundary_after,omitempty"`
	BoundaryOutcome string `json:"boundary_outcome"`

	Scanned            int   `json:"scanned"`
	NewItems           int   `json:"new_items"`
	Albums             int   `json:"albums"`
	OrderingViolations int64 `json:"ordering_violations"`

	Categories  map[string]string `json:"categories,omitempty"`
	Summary     report.Summary    `json:"summary"`
	ReportFiles []string          `json:"report_files,omitempty"`
}

// Sync runs one incremental sync: find the items newer than the stored
// boundary, attribute them to albums, materialize them and move the boundary
// to the newest item.
func Sync(ctx context.Context, rc *RunContext) (*SyncOutput, error) {
	if err := rc.validate(); err != nil {
		return nil, err
	}
	cfg := rc.Config
	runID := ulid.Make().String()
	log := rc.logger().WithField("run_id", runID)
	started := rc.now()

	store := boundary.Store{Path: cfg.BoundaryFile}
	before, err := store.Load()
	if err != nil {
		return nil, err
	}
	out := &SyncOutput{RunID: runID, BoundaryBefore: before}

	if rc.DB != nil {
		if err := db.InsertRun(rc.DB, runID, started.Unix(), before); err != nil {
			return nil, err
		}
	}

	err = syncRun(ctx, rc, log, store, out)
	rc.finishRun(out, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func syncRun(ctx context.Context, rc *RunContext, log *logrus.Entry, store boundary.Store, out *SyncOutput) error {
	cfg := rc.Config

	// 1. newest slice of the library, up to the boundary
	listing, violations, err := readListing(ctx, rc, out.BoundaryBefore)
	if err != nil {
		return err
	}
	out.Scanned = len(listing)
	out.OrderingViolations = violations

	newItems, outcome := boundary.FindNew(listing, out.BoundaryBefore)
	out.BoundaryOutcome = outcome.String()
	switch outcome {
	case boundary.OutcomeNothingNew:
		log.Info(errors.NewNothingNew(out.BoundaryBefore).Message)
		out.NothingNew = true
		return nil
	case boundary.OutcomeNotFound:
		log.Warn(errors.NewBoundaryNotFound(out.BoundaryBefore, len(listing)).Error())
	}
	if len(newItems) == 0 {
		log.Info("library is empty")
		out.NothingNew = true
		return nil
	}
	out.NewItems = len(newItems)
	log.WithFields(logrus.Fields{"new": len(newItems), "outcome": outcome}).Info("new items found")

	// 2. album memberships, bounded by the oldest new item
	apiAlbums, err := rc.Service.ListAlbums(ctx)
	if err != nil {
		return err
	}
	albums := media.AlbumsFromAPI(apiAlbums)
	out.Albums = len(albums)

	var since *time.Time
	if cfg.CutoffEnabled() {
		oldest := newItems[len(newItems)-1].Captured
		since = &oldest
	}
	loaded, err := membership.Load(ctx, albums, rc.listerFactory(), membership.Options{
		Workers:    cfg.AlbumWorkers,
		PageSize:   cfg.AlbumPageSize,
		Since:      since,
		Normalizer: rc.Normalizer,
		Logger:     rc.logger(),
	})
	if err != nil {
		return err
	}
	out.OrderingViolations += loaded.OrderingViolations
	if out.OrderingViolations > 0 {
		log.WithField("violations", out.OrderingViolations).Warn("listings were not ordered newest-first")
	}

	// 3. one category per item
	result := attribution.Attribute(newItems, loaded.Memberships, rc.Rules)
	out.Categories = make(map[string]string, len(result.Categories))
	for id, c := range result.Categories {
		out.Categories[id] = string(c)
	}

	// 4. download, stamp, rename
	rep := report.New()
	m := &materialize.Materializer{
		Root:              cfg.DestinationRoot,
		Rules:             rc.Rules,
		UnorganizedFolder: cfg.UnorganizedFolder,
		Naming:            cfg.Naming,
		Normalizer:        rc.Normalizer,
		Codec:             rc.Codec,
		Content:           rc.Service,
		Report:            rep,
		Logger:            rc.logger(),
	}
	for _, item := range newItems {
		category := result.Category(item.ID)
		o, err := m.Materialize(ctx, item, category)
		if err != nil {
			out.Summary = rep.Summary()
			return err
		}
		if rc.DB != nil {
			err := db.InsertSyncedItem(rc.DB, &db.SyncedItem{
				RunID:      out.RunID,
				ItemID:     item.ID,
				Filename:   item.Filename,
				Category:   string(category),
				Path:       o.Path,
				CapturedAt: item.Captured.Unix(),
				AutoDated:  o.AutoDated,
				Bytes:      o.Bytes,
			})
			if err != nil {
				return err
			}
		}
	}
	out.Summary = rep.Summary()

	// 5. the newest item becomes the next boundary
	if err := store.Save(newItems[0].ID); err != nil {
		return err
	}
	out.BoundaryAfter = newItems[0].ID

	if cfg.ReportDir != "" {
		mdPath, htmlPath, err := report.WriteFiles(cfg.ReportDir, out.RunID, out.Summary)
		if err != nil {
			return err
		}
		out.ReportFiles = []string{mdPath, htmlPath}
	}
	return nil
}

// readListing reads the newest library items until the boundary has been
// read or the listing limit is reached.
func readListing(ctx context.Context, rc *RunContext, boundaryID string) ([]media.Item, int64, error) {
	f := fetch.New(rc.Service, rc.Normalizer, rc.logger())
	var listing []media.Item
	for item, err := range f.Items(ctx, fetch.Library(), rc.Config.ListingPageSize, nil) {
		if err != nil {
			return nil, 0, err
		}
		listing = append(listing, item)
		if item.ID == boundaryID || len(listing) >= rc.Config.ListingLimit {
			break
		}
	}
	return listing, f.Stats().OrderingViolations, nil
}

// listerFactory hands each album loader its own service when a factory is
// configured.
func (rc *RunContext) listerFactory() membership.ListerFactory {
	return func() (fetch.Lister, error) {
		if rc.NewService == nil || rc.Config.AlbumWorkers <= 1 {
			return rc.Service, nil
		}
		s, err := rc.NewService()
		if err != nil {
			return nil, fmt.Errorf("create album client: %w", err)
		}
		return s, nil
	}
}

// finishRun records the final state of the run in the ledger. Ledger
// failures are logged, never returned.
func (rc *RunContext) finishRun(out *SyncOutput, runErr error) {
	if rc.DB == nil {
		return
	}
	finished := rc.now().Unix()
	r := &db.Run{
		ID:          out.RunID,
		FinishedAt:  &finished,
		Status:      db.StatusSucceeded,
		NewItems:    out.NewItems,
		Written:     out.Summary.Written,
		AutoDated:   len(out.Summary.AutoDated),
		Unorganized: len(out.Summary.Unorganized),
		Bytes:       out.Summary.Bytes,
	}
	if out.BoundaryAfter != "" {
		r.BoundaryAfter = &out.BoundaryAfter
	}
	if out.BoundaryOutcome != "" {
		r.BoundaryOutcome = &out.BoundaryOutcome
	}
	switch {
	case runErr != nil:
		r.Status = db.StatusFailed
		msg := runErr.Error()
		r.Error = &msg
	case out.NothingNew:
		r.Status = db.StatusNothingNew
	}
	if err := db.FinishRun(rc.DB, r); err != nil {
		rc.logger().WithField("run_id", out.RunID).WithError(err).Error("failed to record run")
	}
}
