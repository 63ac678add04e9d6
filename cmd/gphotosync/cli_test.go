package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/gphotosync/internal/config"
	"github.com/hpungsan/gphotosync/internal/db"
	"github.com/hpungsan/gphotosync/internal/errors"
	"github.com/hpungsan/gphotosync/internal/logging"
	"github.com/hpungsan/gphotosync/internal/ops"
	"github.com/hpungsan/gphotosync/internal/photos"
	"github.com/hpungsan/gphotosync/internal/photos/api"
	"github.com/hpungsan/gphotosync/internal/report"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// testConfig returns a default config rooted in temporary directories.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DestinationRoot = filepath.Join(base, "photos")
	cfg.BoundaryFile = filepath.Join(base, "newest_id.txt")
	cfg.CredentialsFile = filepath.Join(base, "credentials.json")
	cfg.TokenFile = filepath.Join(base, "token.json")
	cfg.RequestsPerSecond = 0
	return cfg
}

func video(id, name, created string) api.MediaItem {
	return api.MediaItem{
		ID:            id,
		Filename:      name,
		MimeType:      "video/mp4",
		MediaMetadata: api.MediaMetadata{CreationTime: created, Video: &struct{}{}},
	}
}

// libraryServer serves a two-item library with one album over the Library
// API paths the client uses.
func libraryServer(t *testing.T) *httptest.Server {
	t.Helper()
	newer := video("v2", "clip2.mp4", "2023-07-05T12:00:00Z")
	older := video("v1", "clip1.mp4", "2023-07-04T12:00:00Z")

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/mediaItems":
			_ = json.NewEncoder(w).Encode(api.MediaItems{MediaItems: []api.MediaItem{newer, older}})
		case r.Method == http.MethodPost && r.URL.Path == "/mediaItems:search":
			_ = json.NewEncoder(w).Encode(api.MediaItems{MediaItems: []api.MediaItem{newer}})
		case r.URL.Path == "/albums":
			_ = json.NewEncoder(w).Encode(api.ListAlbums{Albums: []api.Album{{ID: "a1", Title: "Birthday"}}})
		case strings.HasPrefix(r.URL.Path, "/mediaItems/"):
			id := strings.TrimPrefix(r.URL.Path, "/mediaItems/")
			_ = json.NewEncoder(w).Encode(api.MediaItem{ID: id, BaseURL: srv.URL + "/content/" + id})
		case strings.HasPrefix(r.URL.Path, "/content/"):
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("movie " + strings.TrimPrefix(r.URL.Path, "/content/")))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConnect(srv *httptest.Server) connectFunc {
	return func(_ context.Context, cfg *config.Config, logger *logrus.Logger) (photos.Service, photos.Factory, error) {
		factory := func() (photos.Service, error) {
			return photos.NewClient(srv.Client(), photos.Options{RootURL: srv.URL, Logger: logger}), nil
		}
		svc, err := factory()
		return svc, factory, err
	}
}

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout
	return buf.String(), runErr
}

// TestCLISync_DefaultAction runs a sync without naming the command.
func TestCLISync_DefaultAction(t *testing.T) {
	database := setupTestDB(t)
	cfg := testConfig(t)
	app := newCLIApp(database, cfg, logging.Discard(), testConnect(libraryServer(t)))

	out, err := captureStdout(t, func() error {
		return app.Run([]string{"gphotosync"})
	})
	require.NoError(t, err)
	require.Contains(t, out, report.PNGAdvisory)

	require.FileExists(t, filepath.Join(cfg.DestinationRoot, "Birthday", "2023-07-05 05.00.00.mp4"))
	require.FileExists(t, filepath.Join(cfg.DestinationRoot, "Not Organized", "2023-07-04 05.00.00.mp4"))
	require.Contains(t, out, "clip1.mp4")

	data, err := os.ReadFile(cfg.BoundaryFile)
	require.NoError(t, err)
	require.Equal(t, "v2", strings.TrimSpace(string(data)))
}

// TestCLISync_NothingNew checks that a repeated run is a clean no-op.
func TestCLISync_NothingNew(t *testing.T) {
	database := setupTestDB(t)
	cfg := testConfig(t)
	connect := testConnect(libraryServer(t))

	_, err := captureStdout(t, func() error {
		return newCLIApp(database, cfg, logging.Discard(), connect).Run([]string{"gphotosync", "sync"})
	})
	require.NoError(t, err)

	out, err := captureStdout(t, func() error {
		return newCLIApp(database, cfg, logging.Discard(), connect).Run([]string{"gphotosync", "sync"})
	})
	require.NoError(t, err)
	require.Equal(t, "No new items since the last run.\n", out)
}

// TestCLISync_JSON tests the --json output and the workers override.
func TestCLISync_JSON(t *testing.T) {
	database := setupTestDB(t)
	cfg := testConfig(t)
	app := newCLIApp(database, cfg, logging.Discard(), testConnect(libraryServer(t)))

	out, err := captureStdout(t, func() error {
		return app.Run([]string{"gphotosync", "sync", "--json", "--workers=2"})
	})
	require.NoError(t, err)

	var output ops.SyncOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output), "output: %s", out)
	require.Equal(t, 2, output.NewItems)
	require.Equal(t, "Birthday", output.Categories["v2"])
	require.Equal(t, "Not in any album", output.Categories["v1"])
	require.Equal(t, 1, cfg.AlbumWorkers, "flag does not mutate the loaded config")
}

// TestCLIHistory lists runs after a sync and shows one run's items.
func TestCLIHistory(t *testing.T) {
	database := setupTestDB(t)
	cfg := testConfig(t)
	connect := testConnect(libraryServer(t))

	out, err := captureStdout(t, func() error {
		return newCLIApp(database, cfg, logging.Discard(), connect).Run([]string{"gphotosync", "sync", "--json"})
	})
	require.NoError(t, err)
	var synced ops.SyncOutput
	require.NoError(t, json.Unmarshal([]byte(out), &synced))

	out, err = captureStdout(t, func() error {
		return newCLIApp(database, cfg, logging.Discard(), connect).Run([]string{"gphotosync", "history", "--limit=5"})
	})
	require.NoError(t, err)
	var history ops.HistoryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history.Runs, 1)
	require.Equal(t, synced.RunID, history.Runs[0].ID)
	require.Equal(t, db.StatusSucceeded, history.Runs[0].Status)

	out, err = captureStdout(t, func() error {
		return newCLIApp(database, cfg, logging.Discard(), connect).Run([]string{"gphotosync", "history", "--run", synced.RunID})
	})
	require.NoError(t, err)
	history = ops.HistoryOutput{}
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history.Items, 2)
}

// TestCLIErrorHandling tests error handling in CLI commands.
func TestCLIErrorHandling(t *testing.T) {
	database := setupTestDB(t)
	cfg := testConfig(t)

	t.Run("auth without credentials returns error", func(t *testing.T) {
		app := newCLIApp(database, cfg, logging.Discard(), nil)
		err := app.Run([]string{"gphotosync", "auth"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "[AUTH]")
	})

	t.Run("history of unknown run returns error", func(t *testing.T) {
		app := newCLIApp(database, cfg, logging.Discard(), nil)
		err := app.Run([]string{"gphotosync", "history", "--run", "nope"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "[NOT_FOUND]")
	})

	t.Run("missing destination returns error", func(t *testing.T) {
		noDest := *cfg
		noDest.DestinationRoot = ""
		app := newCLIApp(database, &noDest, logging.Discard(), testConnect(libraryServer(t)))
		err := app.Run([]string{"gphotosync"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "[INVALID_CONFIG]")
	})

	t.Run("sync without configuration returns error", func(t *testing.T) {
		app := newCLIApp(nil, nil, logging.Discard(), nil)
		require.Error(t, app.Run([]string{"gphotosync", "sync"}))
	})
}

// TestOutputError keeps the code of wrapped errors.
func TestOutputError(t *testing.T) {
	direct := outputError(errors.NewNotFound("run", "r1"))
	require.True(t, strings.HasPrefix(direct.Error(), "[NOT_FOUND] "), direct.Error())

	wrapped := outputError(fmt.Errorf("load album a1: %w", errors.NewRemote("list albums", fmt.Errorf("boom"))))
	require.True(t, strings.HasPrefix(wrapped.Error(), "[REMOTE] load album a1: "), wrapped.Error())

	plain := outputError(fmt.Errorf("disk full"))
	require.Equal(t, "disk full", plain.Error())
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"gphotosync"}, false},
		{"help flag", []string{"gphotosync", "--help"}, true},
		{"short help flag", []string{"gphotosync", "-h"}, true},
		{"version flag", []string{"gphotosync", "--version"}, true},
		{"short version flag", []string{"gphotosync", "-v"}, true},
		{"help command", []string{"gphotosync", "help"}, true},
		{"sync command", []string{"gphotosync", "sync"}, false},
		{"history command", []string{"gphotosync", "history"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Save and restore os.Args
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if got := isHelpOrVersion(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// TestBaseDirectory tests the base directory override.
func TestBaseDirectory(t *testing.T) {
	t.Setenv(envHome, "/tmp/gps-home")
	dir, err := baseDirectory()
	require.NoError(t, err)
	require.Equal(t, "/tmp/gps-home", dir)
}
