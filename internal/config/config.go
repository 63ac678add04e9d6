package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	syncerrors "github.com/hpungsan/gphotosync/internal/errors"
)

// Naming modes for materialized files.
const (
	NamingReplace = "replace" // "2023-07-04 05.00.00.jpg"
	NamingPrefix  = "prefix"  // "2023-07-04 05.00.00 IMG_0001.jpg"
)

// Environment variables that override file configuration.
const (
	EnvDestinationRoot = "PHOTO_DIRECTORY"
	EnvLogLevel        = "GPHOTOSYNC_LOG_LEVEL"
	EnvAlbumWorkers    = "GPHOTOSYNC_ALBUM_WORKERS"
)

// Config holds application configuration.
type Config struct {
	// DestinationRoot is the directory that receives one subfolder per category.
	DestinationRoot string `json:"destination_root,omitempty"`

	// CredentialsFile is the OAuth client secrets file downloaded from the
	// Google Cloud console. Relative paths resolve against the base directory.
	CredentialsFile string `json:"credentials_file,omitempty"`

	// TokenFile caches the OAuth token between runs.
	TokenFile string `json:"token_file,omitempty"`

	// BoundaryFile holds the ID of the newest item synced by the previous run.
	BoundaryFile string `json:"boundary_file,omitempty"`

	// ListingPageSize is the page size used for the global library listing.
	ListingPageSize int `json:"listing_page_size,omitempty"`

	// ListingLimit caps how many of the newest library items are scanned
	// while looking for the boundary.
	ListingLimit int `json:"listing_limit,omitempty"`

	// AlbumPageSize is the page size used when loading album memberships.
	AlbumPageSize int `json:"album_page_size,omitempty"`

	// AlbumWorkers is the number of concurrent album loaders. 1 loads albums
	// sequentially.
	AlbumWorkers int `json:"album_workers,omitempty"`

	// AlbumDateCutoff stops each album scan at the oldest new item. Set to
	// false when albums are not ordered newest-first.
	AlbumDateCutoff *bool `json:"album_date_cutoff,omitempty"`

	// Naming is "replace" or "prefix".
	Naming string `json:"naming,omitempty"`

	// CatchAllAlbums stop album scanning as soon as one of them matches.
	CatchAllAlbums []string `json:"catch_all_albums,omitempty"`

	VideosCategory    string `json:"videos_category,omitempty"`
	GroupCategory     string `json:"group_category,omitempty"`
	UnsortedCategory  string `json:"unsorted_category,omitempty"`
	UnorganizedFolder string `json:"unorganized_folder,omitempty"`

	// CollapseAt is the album count at which an item collapses to the videos category.
	CollapseAt int `json:"collapse_at,omitempty"`

	// Timezone is the IANA name of the destination zone.
	Timezone string `json:"timezone,omitempty"`

	// MaxRetries bounds transport-level retries of a single API call.
	MaxRetries int `json:"max_retries,omitempty"`

	// RequestsPerSecond paces calls to the photo service.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`

	// RequestTimeout bounds each Library API call, e.g. "60s".
	RequestTimeout string `json:"request_timeout,omitempty"`

	// DownloadTimeout bounds each content download. "0s" disables it.
	DownloadTimeout string `json:"download_timeout,omitempty"`

	LogLevel string `json:"log_level,omitempty"`

	// ReportDir, when set, receives a markdown and HTML copy of each run summary.
	ReportDir string `json:"report_dir,omitempty"`

	// DBMaxOpenConns limits the maximum number of open ledger connections.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle ledger connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cutoff := true
	return &Config{
		CredentialsFile:   "credentials.json",
		TokenFile:         "token.json",
		BoundaryFile:      "newest_id.txt",
		ListingPageSize:   30,
		ListingLimit:      30,
		AlbumPageSize:     20,
		AlbumWorkers:      1,
		AlbumDateCutoff:   &cutoff,
		Naming:            NamingReplace,
		CatchAllAlbums:    []string{"Random People", "Unspecified"},
		VideosCategory:    "Videos",
		GroupCategory:     "Group Stuff",
		UnsortedCategory:  "Not in any album",
		UnorganizedFolder: "Not Organized",
		CollapseAt:        3,
		Timezone:          "America/Los_Angeles",
		MaxRetries:        3,
		RequestsPerSecond: 5,
		RequestTimeout:    "60s",
		DownloadTimeout:   "30m",
		LogLevel:          "info",
	}
}

// Load loads configuration from baseDir/config.json, then baseDir/.env and
// ./.env, then the process environment.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.gphotosync.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	if err := loadDotEnv(filepath.Join(baseDir, ".env"), ".env"); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.resolvePaths(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads each existing .env file without overriding variables that
// are already set.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvDestinationRoot)); v != "" {
		cfg.DestinationRoot = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAlbumWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return syncerrors.NewInvalidConfig(fmt.Sprintf("%s must be an integer, got %q", EnvAlbumWorkers, v))
		}
		cfg.AlbumWorkers = n
	}
	return nil
}

// resolvePaths makes the credential, token and boundary paths absolute
// relative to baseDir.
func (c *Config) resolvePaths(baseDir string) {
	c.CredentialsFile = resolve(baseDir, c.CredentialsFile)
	c.TokenFile = resolve(baseDir, c.TokenFile)
	c.BoundaryFile = resolve(baseDir, c.BoundaryFile)
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Naming != NamingReplace && c.Naming != NamingPrefix {
		return syncerrors.NewInvalidConfig(fmt.Sprintf("naming must be one of: %s, %s", NamingReplace, NamingPrefix))
	}
	if c.ListingPageSize < 1 || c.ListingPageSize > 100 {
		return syncerrors.NewInvalidConfig("listing_page_size must be between 1 and 100")
	}
	if c.AlbumPageSize < 1 || c.AlbumPageSize > 100 {
		return syncerrors.NewInvalidConfig("album_page_size must be between 1 and 100")
	}
	if c.ListingLimit < 1 {
		return syncerrors.NewInvalidConfig("listing_limit must be positive")
	}
	if c.AlbumWorkers < 1 {
		return syncerrors.NewInvalidConfig("album_workers must be at least 1")
	}
	if c.CollapseAt < 2 {
		return syncerrors.NewInvalidConfig("collapse_at must be at least 2")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return syncerrors.NewInvalidConfig(fmt.Sprintf("unknown timezone %q", c.Timezone))
	}
	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return syncerrors.NewInvalidConfig(fmt.Sprintf("invalid request_timeout %q", c.RequestTimeout))
	}
	if d, err := time.ParseDuration(c.DownloadTimeout); err != nil || d < 0 {
		return syncerrors.NewInvalidConfig(fmt.Sprintf("invalid download_timeout %q", c.DownloadTimeout))
	}
	return nil
}

// CutoffEnabled reports whether album scans stop at the oldest new item.
func (c *Config) CutoffEnabled() bool {
	return c.AlbumDateCutoff == nil || *c.AlbumDateCutoff
}

// Timeout returns RequestTimeout as a duration, falling back to one minute.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// ContentTimeout returns DownloadTimeout as a duration. Zero means downloads
// run until the context ends; an unparsable value falls back to 30 minutes.
func (c *Config) ContentTimeout() time.Duration {
	d, err := time.ParseDuration(c.DownloadTimeout)
	if err != nil || d < 0 {
		return 30 * time.Minute
	}
	return d
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, syncerrors.NewInvalidConfig(fmt.Sprintf("%s: %v", configPath, err))
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence when set; the catch-all list is replaced,
// not merged, so a config file can shrink it.
func Merge(base, overlay *Config) *Config {
	result := *base

	overlayString(&result.DestinationRoot, overlay.DestinationRoot)
	overlayString(&result.CredentialsFile, overlay.CredentialsFile)
	overlayString(&result.TokenFile, overlay.TokenFile)
	overlayString(&result.BoundaryFile, overlay.BoundaryFile)
	overlayString(&result.Naming, overlay.Naming)
	overlayString(&result.VideosCategory, overlay.VideosCategory)
	overlayString(&result.GroupCategory, overlay.GroupCategory)
	overlayString(&result.UnsortedCategory, overlay.UnsortedCategory)
	overlayString(&result.UnorganizedFolder, overlay.UnorganizedFolder)
	overlayString(&result.Timezone, overlay.Timezone)
	overlayString(&result.RequestTimeout, overlay.RequestTimeout)
	overlayString(&result.DownloadTimeout, overlay.DownloadTimeout)
	overlayString(&result.LogLevel, overlay.LogLevel)
	overlayString(&result.ReportDir, overlay.ReportDir)

	overlayInt(&result.ListingPageSize, overlay.ListingPageSize)
	overlayInt(&result.ListingLimit, overlay.ListingLimit)
	overlayInt(&result.AlbumPageSize, overlay.AlbumPageSize)
	overlayInt(&result.AlbumWorkers, overlay.AlbumWorkers)
	overlayInt(&result.CollapseAt, overlay.CollapseAt)
	overlayInt(&result.MaxRetries, overlay.MaxRetries)
	overlayInt(&result.DBMaxOpenConns, overlay.DBMaxOpenConns)
	overlayInt(&result.DBMaxIdleConns, overlay.DBMaxIdleConns)

	if overlay.RequestsPerSecond != 0 {
		result.RequestsPerSecond = overlay.RequestsPerSecond
	}
	if overlay.AlbumDateCutoff != nil {
		v := *overlay.AlbumDateCutoff
		result.AlbumDateCutoff = &v
	}
	if overlay.CatchAllAlbums != nil {
		result.CatchAllAlbums = cleanStringSlice(overlay.CatchAllAlbums)
	} else {
		result.CatchAllAlbums = cleanStringSlice(base.CatchAllAlbums)
	}

	return &result
}

func overlayString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func overlayInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// cleanStringSlice trims whitespace and removes empty and duplicate entries,
// keeping the first occurrence order.
func cleanStringSlice(a []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}
