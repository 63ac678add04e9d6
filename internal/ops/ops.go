package ops

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/gphotosync/internal/attribution"
	"github.com/hpungsan/gphotosync/internal/config"
	"github.com/hpungsan/gphotosync/internal/errors"
	"github.com/hpungsan/gphotosync/internal/materialize"
	"github.com/hpungsan/gphotosync/internal/photos"
	"github.com/hpungsan/gphotosync/internal/timestamp"
)

// History limits
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// RunContext carries everything one sync run needs. Nothing in it outlives
// the run except what the run writes to disk.
type RunContext struct {
	Config *config.Config

	// Service lists the library, albums and content.
	Service photos.Service
	// NewService builds an independent service for each concurrent album
	// loader. When nil, Service is used for sequential loading.
	NewService photos.Factory

	Normalizer timestamp.Normalizer
	Rules      attribution.Rules
	Codec      materialize.Codec
	Logger     *logrus.Logger

	// DB is the optional run ledger.
	DB *sql.DB

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// RulesFromConfig builds attribution rules from configuration.
func RulesFromConfig(cfg *config.Config) attribution.Rules {
	rules := attribution.DefaultRules()
	if cfg == nil {
		return rules
	}
	rules.CatchAll = append([]string(nil), cfg.CatchAllAlbums...)
	if cfg.VideosCategory != "" {
		rules.Videos = cfg.VideosCategory
	}
	if cfg.GroupCategory != "" {
		rules.Group = cfg.GroupCategory
	}
	if cfg.UnsortedCategory != "" {
		rules.Unsorted = cfg.UnsortedCategory
	}
	if cfg.CollapseAt > 0 {
		rules.CollapseAt = cfg.CollapseAt
	}
	return rules
}

func (rc *RunContext) validate() error {
	if rc.Config == nil {
		return errors.NewInvalidConfig("run has no configuration")
	}
	if rc.Service == nil {
		return errors.NewInternal(fmt.Errorf("run has no photo service"))
	}
	if rc.Codec == nil {
		return errors.NewInternal(fmt.Errorf("run has no metadata codec"))
	}
	if rc.Config.DestinationRoot == "" {
		return errors.NewInvalidConfig("destination root is not set; set " + config.EnvDestinationRoot + " or destination_root")
	}
	return nil
}

func (rc *RunContext) now() time.Time {
	if rc.Now == nil {
		return time.Now()
	}
	return rc.Now()
}

func (rc *RunContext) logger() *logrus.Logger {
	if rc.Logger == nil {
		return logrus.StandardLogger()
	}
	return rc.Logger
}
