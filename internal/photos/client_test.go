package photos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hpungsan/gphotosync/internal/errors"
	"github.com/hpungsan/gphotosync/internal/logging"
	"github.com/hpungsan/gphotosync/internal/photos/api"
)

func newTestClient(t *testing.T, h http.Handler, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), Options{
		RootURL:    srv.URL,
		MaxRetries: retries,
		Logger:     logging.Discard(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSearchMediaItems_LibraryUsesList(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/mediaItems", r.URL.Path)
		require.Equal(t, "30", r.URL.Query().Get("pageSize"))
		require.Equal(t, "tok", r.URL.Query().Get("pageToken"))
		writeJSON(w, 200, api.MediaItems{
			MediaItems:    []api.MediaItem{{ID: "a"}, {ID: "b"}},
			NextPageToken: "next",
		})
	}), 0)

	got, err := c.SearchMediaItems(context.Background(), api.SearchFilter{PageSize: 30, PageToken: "tok"})
	require.NoError(t, err)
	require.Len(t, got.MediaItems, 2)
	require.Equal(t, "next", got.NextPageToken)
}

func TestSearchMediaItems_AlbumUsesSearch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/mediaItems:search", r.URL.Path)
		var body api.SearchFilter
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "album1", body.AlbumID)
		require.Equal(t, 20, body.PageSize)
		require.Nil(t, body.Filters)
		writeJSON(w, 200, api.MediaItems{MediaItems: []api.MediaItem{{ID: "x"}}})
	}), 0)

	got, err := c.SearchMediaItems(context.Background(), api.SearchFilter{AlbumID: "album1", PageSize: 20})
	require.NoError(t, err)
	require.Len(t, got.MediaItems, 1)
	require.Empty(t, got.NextPageToken)
}

func TestSearchMediaItems_DecodesServiceError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, api.Error{Details: api.ErrorDetails{
			Code:    400,
			Message: "Request contains an invalid argument.",
			Status:  "INVALID_ARGUMENT",
		}})
	}), 0)

	_, err := c.SearchMediaItems(context.Background(), api.SearchFilter{AlbumID: "a", PageSize: 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrRemote))
	require.Contains(t, err.Error(), "Request contains an invalid argument.")
	require.Contains(t, err.Error(), "INVALID_ARGUMENT")
}

func TestRetryOnUnavailable(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, 200, api.MediaItem{ID: "ok"})
	}), 2)

	got, err := c.GetMediaItem(context.Background(), "ok")
	require.NoError(t, err)
	require.Equal(t, "ok", got.ID)
	require.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}), 2)

	_, err := c.Download(context.Background(), c.rest.BaseURL+"/content=d")
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrRemote))
	require.Contains(t, err.Error(), "Image not found or broken")
	require.Equal(t, int32(1), calls.Load())
}

func TestListAlbums_Paginates(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/albums", r.URL.Path)
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, 200, api.ListAlbums{
				Albums:        []api.Album{{ID: "1", Title: "Trip"}, {ID: "2", Title: "Random People"}},
				NextPageToken: "p2",
			})
		case "p2":
			// first entry repeats the last one of the previous page
			writeJSON(w, 200, api.ListAlbums{
				Albums: []api.Album{{ID: "2", Title: "Random People"}, {ID: "3", Title: "Videos"}},
			})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}), 0)

	got, err := c.ListAlbums(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"Trip", "Random People", "Videos"}, []string{got[0].Title, got[1].Title, got[2].Title})
}

func TestDownload_ReturnsBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/content=dv", r.URL.Path)
		_, _ = w.Write([]byte("movie bytes"))
	}), 0)

	got, err := c.Download(context.Background(), c.rest.BaseURL+"/content=dv")
	require.NoError(t, err)
	require.Equal(t, "movie bytes", string(got))
}

func TestDownload_OutlivesAPITimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		if r.URL.Path == "/content=d" {
			_, _ = w.Write([]byte("large file"))
			return
		}
		writeJSON(w, http.StatusOK, api.MediaItem{ID: "x"})
	})
	srv := httptest.NewServer(slow)
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), Options{
		RootURL: srv.URL,
		Timeout: 50 * time.Millisecond,
		Logger:  logging.Discard(),
	})

	got, err := c.Download(context.Background(), srv.URL+"/content=d")
	require.NoError(t, err)
	require.Equal(t, "large file", string(got))

	_, err = c.GetMediaItem(context.Background(), "x")
	require.True(t, errors.Is(err, errors.ErrRemote))
}

func TestDownload_OwnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), Options{
		RootURL:         srv.URL,
		DownloadTimeout: 50 * time.Millisecond,
		Logger:          logging.Discard(),
	})

	_, err := c.Download(context.Background(), srv.URL+"/content=d")
	require.True(t, errors.Is(err, errors.ErrRemote))
}

func TestCanceledContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}), 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetMediaItem(ctx, "x")
	require.True(t, errors.Is(err, errors.ErrRemote))
}

func TestNewLimiter(t *testing.T) {
	require.Equal(t, rate.Inf, NewLimiter(0).Limit())
	require.Equal(t, rate.Limit(5), NewLimiter(5).Limit())
}

func TestSharedLimiter(t *testing.T) {
	shared := NewLimiter(2)
	a := NewClient(http.DefaultClient, Options{Limiter: shared, RequestsPerSecond: 100})
	b := NewClient(http.DefaultClient, Options{Limiter: shared})
	require.Same(t, a.limiter, b.limiter)
}
