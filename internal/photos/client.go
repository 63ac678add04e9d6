// Package photos is a small client for the Google Photos Library API.
package photos

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/hpungsan/gphotosync/internal/errors"
	"github.com/hpungsan/gphotosync/internal/photos/api"
)

const (
	rootURL     = "https://photoslibrary.googleapis.com/v1"
	albumChunks = 50 // max albums per page
)

var retryErrorCodes = []int{
	429, // Too Many Requests.
	500, // Internal Server Error
	502, // Bad Gateway
	503, // Service Unavailable
	504, // Gateway Timeout
	509, // Bandwidth Limit Exceeded
}

// Service is the subset of the Library API used by a sync run.
type Service interface {
	// SearchMediaItems returns one page of the library or of an album.
	SearchMediaItems(ctx context.Context, filter api.SearchFilter) (*api.MediaItems, error)
	// ListAlbums returns every album owned by the user.
	ListAlbums(ctx context.Context) ([]api.Album, error)
	// GetMediaItem re-reads an item, refreshing its short-lived base URL.
	GetMediaItem(ctx context.Context, id string) (*api.MediaItem, error)
	// Download fetches raw bytes from a content URL.
	Download(ctx context.Context, url string) ([]byte, error)
}

// Factory builds an independent Service. Concurrent workers each call it
// once instead of sharing one client.
type Factory func() (Service, error)

// Options configures a Client.
type Options struct {
	RootURL           string
	MaxRetries        int
	RequestsPerSecond float64
	// Timeout bounds each API call, retries included.
	Timeout time.Duration
	// DownloadTimeout bounds each Download; zero leaves it to ctx.
	DownloadTimeout time.Duration
	Logger          *logrus.Logger
	// Limiter, when set, is shared instead of building one from
	// RequestsPerSecond, so clients built by a Factory pace together.
	Limiter *rate.Limiter
}

// NewLimiter returns the pacing limiter for requestsPerSecond; zero or less
// is unlimited.
func NewLimiter(requestsPerSecond float64) *rate.Limiter {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return rate.NewLimiter(limit, 1)
}

// Client implements Service over resty.
type Client struct {
	rest            *resty.Client
	limiter         *rate.Limiter
	log             *logrus.Logger
	timeout         time.Duration
	downloadTimeout time.Duration
}

// NewClient wraps an authorized http.Client. The http.Client is owned by the
// returned Client.
func NewClient(httpClient *http.Client, opt Options) *Client {
	if opt.RootURL == "" {
		opt.RootURL = rootURL
	}
	if opt.Logger == nil {
		opt.Logger = logrus.StandardLogger()
	}
	limiter := opt.Limiter
	if limiter == nil {
		limiter = NewLimiter(opt.RequestsPerSecond)
	}

	r := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(opt.RootURL, "/")).
		SetRetryCount(opt.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(shouldRetry)

	return &Client{
		rest:            r,
		limiter:         limiter,
		log:             opt.Logger,
		timeout:         opt.Timeout,
		downloadTimeout: opt.DownloadTimeout,
	}
}

// shouldRetry returns whether a response or transport error deserves
// another attempt.
func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return false
		}
		return !errors.Is(err, errors.ErrAuth)
	}
	if resp == nil {
		return false
	}
	for _, code := range retryErrorCodes {
		if resp.StatusCode() == code {
			return true
		}
	}
	return false
}

// do paces and runs one call bounded by timeout, decoding non-2xx responses
// into *api.Error.
func (c *Client) do(ctx context.Context, op string, timeout time.Duration, fn func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.NewRemote(op, err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var apiErr api.Error
	resp, err := fn(c.rest.R().SetContext(ctx).SetError(&apiErr))
	if err != nil {
		return nil, errors.NewRemote(op, err)
	}
	if resp.IsError() {
		return nil, errors.NewRemote(op, errorFromResponse(resp, &apiErr))
	}
	c.log.WithFields(logrus.Fields{"op": op, "status": resp.StatusCode(), "took": resp.Time()}).Debug("api call")
	return resp, nil
}

// errorFromResponse fills in an api.Error for responses that did not carry a
// JSON error body.
func errorFromResponse(resp *resty.Response, apiErr *api.Error) *api.Error {
	if apiErr.Details.Code != 0 || apiErr.Details.Message != "" {
		return apiErr
	}
	body := resp.Body()
	// Google sends 404 messages as images so be prepared for that
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "image/") {
		body = []byte("Image not found or broken")
	}
	e := &api.Error{
		Details: api.ErrorDetails{
			Code:    resp.StatusCode(),
			Message: strings.TrimSpace(string(body)),
			Status:  http.StatusText(resp.StatusCode()),
		},
	}
	_ = json.Unmarshal(body, e)
	return e
}

// SearchMediaItems lists one page of media items.
//
// Without an album or filters the plain list endpoint is used, which returns
// the library newest-first.
func (c *Client) SearchMediaItems(ctx context.Context, filter api.SearchFilter) (*api.MediaItems, error) {
	var result api.MediaItems

	if filter.AlbumID == "" && filter.Filters == nil {
		_, err := c.do(ctx, "list media items", c.timeout, func(r *resty.Request) (*resty.Response, error) {
			r.SetQueryParam("pageSize", strconv.Itoa(filter.PageSize))
			if filter.PageToken != "" {
				r.SetQueryParam("pageToken", filter.PageToken)
			}
			return r.SetResult(&result).Get("/mediaItems")
		})
		if err != nil {
			return nil, err
		}
		return &result, nil
	}

	_, err := c.do(ctx, "search media items", c.timeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(&filter).SetResult(&result).Post("/mediaItems:search")
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAlbums reads every page of the album listing.
func (c *Client) ListAlbums(ctx context.Context) ([]api.Album, error) {
	var all []api.Album
	pageToken := ""
	lastID := ""
	for {
		var result api.ListAlbums
		_, err := c.do(ctx, "list albums", c.timeout, func(r *resty.Request) (*resty.Response, error) {
			r.SetQueryParam("pageSize", strconv.Itoa(albumChunks))
			if pageToken != "" {
				r.SetQueryParam("pageToken", pageToken)
			}
			return r.SetResult(&result).Get("/albums")
		})
		if err != nil {
			return nil, err
		}
		albums := result.Albums
		if len(albums) > 0 && albums[0].ID == lastID {
			// skip first if ID duplicated from last page
			albums = albums[1:]
		}
		if len(albums) > 0 {
			lastID = albums[len(albums)-1].ID
		}
		all = append(all, albums...)
		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}
	return all, nil
}

// GetMediaItem reads a single media item.
func (c *Client) GetMediaItem(ctx context.Context, id string) (*api.MediaItem, error) {
	var item api.MediaItem
	_, err := c.do(ctx, "get media item", c.timeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", id).SetResult(&item).Get("/mediaItems/{id}")
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Download fetches the bytes behind an absolute content URL.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, "download", c.downloadTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(url)
	})
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}
