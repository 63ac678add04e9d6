package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	syncerrors "github.com/hpungsan/gphotosync/internal/errors"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvDestinationRoot, "")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListingPageSize != 30 {
		t.Fatalf("ListingPageSize = %d, want 30", cfg.ListingPageSize)
	}
	if cfg.Naming != NamingReplace {
		t.Fatalf("Naming = %q, want %q", cfg.Naming, NamingReplace)
	}
	if !cfg.CutoffEnabled() {
		t.Fatal("CutoffEnabled() = false, want true by default")
	}
	if got, want := cfg.TokenFile, filepath.Join(tmpDir, "token.json"); got != want {
		t.Fatalf("TokenFile = %q, want %q", got, want)
	}
	if got, want := cfg.BoundaryFile, filepath.Join(tmpDir, "newest_id.txt"); got != want {
		t.Fatalf("BoundaryFile = %q, want %q", got, want)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvDestinationRoot, "")
	configPath := filepath.Join(tmpDir, "config.json")

	data := `{"album_page_size": 50, "naming": "prefix", "album_date_cutoff": false, "catch_all_albums": ["Misc"]}`
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AlbumPageSize != 50 {
		t.Fatalf("AlbumPageSize = %d, want 50", cfg.AlbumPageSize)
	}
	if cfg.Naming != NamingPrefix {
		t.Fatalf("Naming = %q, want %q", cfg.Naming, NamingPrefix)
	}
	if cfg.CutoffEnabled() {
		t.Fatal("CutoffEnabled() = true, want false")
	}
	if len(cfg.CatchAllAlbums) != 1 || cfg.CatchAllAlbums[0] != "Misc" {
		t.Fatalf("CatchAllAlbums = %v, want [Misc]", cfg.CatchAllAlbums)
	}
	// Untouched keys keep their defaults
	if cfg.VideosCategory != "Videos" {
		t.Fatalf("VideosCategory = %q, want %q", cfg.VideosCategory, "Videos")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := Load(tmpDir)
	if !syncerrors.Is(err, syncerrors.ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"destination_root": "/from/file"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv(EnvDestinationRoot, "/from/env")
	t.Setenv(EnvAlbumWorkers, "4")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DestinationRoot != "/from/env" {
		t.Fatalf("DestinationRoot = %q, want %q", cfg.DestinationRoot, "/from/env")
	}
	if cfg.AlbumWorkers != 4 {
		t.Fatalf("AlbumWorkers = %d, want 4", cfg.AlbumWorkers)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	// Registered so the variable is restored after the test; godotenv only
	// fills variables that are unset.
	t.Setenv(EnvDestinationRoot, "")
	os.Unsetenv(EnvDestinationRoot)

	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("PHOTO_DIRECTORY=/from/dotenv\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DestinationRoot != "/from/dotenv" {
		t.Fatalf("DestinationRoot = %q, want %q", cfg.DestinationRoot, "/from/dotenv")
	}
}

func TestLoad_BadWorkersEnv(t *testing.T) {
	t.Setenv(EnvAlbumWorkers, "many")

	_, err := Load(t.TempDir())
	if !syncerrors.Is(err, syncerrors.ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want INVALID_CONFIG", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad naming", func(c *Config) { c.Naming = "suffix" }, true},
		{"page size too large", func(c *Config) { c.ListingPageSize = 101 }, true},
		{"album page size zero", func(c *Config) { c.AlbumPageSize = 0 }, true},
		{"zero workers", func(c *Config) { c.AlbumWorkers = 0 }, true},
		{"collapse at one", func(c *Config) { c.CollapseAt = 1 }, true},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, true},
		{"bad timeout", func(c *Config) { c.RequestTimeout = "soon" }, true},
		{"bad download timeout", func(c *Config) { c.DownloadTimeout = "later" }, true},
		{"negative download timeout", func(c *Config) { c.DownloadTimeout = "-1s" }, true},
		{"unbounded downloads", func(c *Config) { c.DownloadTimeout = "0s" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge_ScalarsAndPointers(t *testing.T) {
	off := false
	base := DefaultConfig()
	overlay := &Config{
		ListingLimit:      90,
		RequestsPerSecond: 2.5,
		AlbumDateCutoff:   &off,
	}

	result := Merge(base, overlay)

	if result.ListingLimit != 90 {
		t.Errorf("ListingLimit = %d, want 90", result.ListingLimit)
	}
	if result.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v, want 2.5", result.RequestsPerSecond)
	}
	if result.CutoffEnabled() {
		t.Error("CutoffEnabled() = true, want false")
	}
	if !base.CutoffEnabled() {
		t.Error("Merge must not mutate base")
	}
	if result.ListingPageSize != base.ListingPageSize {
		t.Errorf("ListingPageSize = %d, want base %d", result.ListingPageSize, base.ListingPageSize)
	}
}

func TestMerge_CatchAllCleaned(t *testing.T) {
	result := Merge(DefaultConfig(), &Config{CatchAllAlbums: []string{" Misc ", "", "Misc", "People"}})

	want := []string{"Misc", "People"}
	if len(result.CatchAllAlbums) != len(want) {
		t.Fatalf("CatchAllAlbums = %v, want %v", result.CatchAllAlbums, want)
	}
	for i := range want {
		if result.CatchAllAlbums[i] != want[i] {
			t.Errorf("CatchAllAlbums[%d] = %q, want %q", i, result.CatchAllAlbums[i], want[i])
		}
	}
}

func TestTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Timeout().String() != "1m0s" {
		t.Errorf("Timeout() = %v, want 1m0s", cfg.Timeout())
	}
	cfg.RequestTimeout = "garbage"
	if cfg.Timeout().String() != "1m0s" {
		t.Errorf("Timeout() fallback = %v, want 1m0s", cfg.Timeout())
	}
}

func TestContentTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ContentTimeout() != 30*time.Minute {
		t.Errorf("ContentTimeout() = %v, want 30m0s", cfg.ContentTimeout())
	}
	if cfg.ContentTimeout() <= cfg.Timeout() {
		t.Errorf("ContentTimeout() = %v, want longer than Timeout() %v", cfg.ContentTimeout(), cfg.Timeout())
	}
	cfg = Merge(cfg, &Config{DownloadTimeout: "0s"})
	if cfg.ContentTimeout() != 0 {
		t.Errorf("ContentTimeout() = %v, want 0", cfg.ContentTimeout())
	}
}
