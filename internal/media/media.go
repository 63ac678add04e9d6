// Package media holds the per-run domain types built from API records.
package media

import (
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/gphotosync/internal/photos/api"
	"github.com/hpungsan/gphotosync/internal/timestamp"
)

// Kind is the media kind of an item.
type Kind int

const (
	KindPhoto Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "photo"
}

// Item is one media item observed during a run.
type Item struct {
	ID       string
	Filename string

	// CreationTime is the raw UTC capture time reported by the service.
	CreationTime string

	// Captured is CreationTime parsed and moved to the destination zone.
	Captured time.Time

	// BaseURL expires after about an hour; refresh it before downloading.
	BaseURL  string
	MimeType string
	Kind     Kind
}

// IsVideo reports whether the item is a video.
func (i Item) IsVideo() bool {
	return i.Kind == KindVideo
}

// Album is a user album. ItemCount is the count declared by the service.
type Album struct {
	ID        string
	Title     string
	ItemCount int
}

// KindOf derives the media kind from the mime type, falling back to the
// metadata markers when the mime type is empty.
func KindOf(mimeType string, meta api.MediaMetadata) Kind {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case mimeType == "" && meta.Video != nil:
		return KindVideo
	default:
		return KindPhoto
	}
}

// FromAPI converts an API record, normalizing its capture time.
// A missing or malformed creation time fails with MALFORMED_TIMESTAMP.
func FromAPI(m api.MediaItem, n timestamp.Normalizer) (Item, error) {
	captured, err := n.Instant(m.MediaMetadata.CreationTime)
	if err != nil {
		return Item{}, err
	}
	return Item{
		ID:           m.ID,
		Filename:     m.Filename,
		CreationTime: m.MediaMetadata.CreationTime,
		Captured:     captured,
		BaseURL:      m.BaseURL,
		MimeType:     m.MimeType,
		Kind:         KindOf(m.MimeType, m.MediaMetadata),
	}, nil
}

// AlbumFromAPI converts an API album record.
func AlbumFromAPI(a api.Album) Album {
	n, _ := strconv.Atoi(a.MediaItemsCount)
	return Album{ID: a.ID, Title: a.Title, ItemCount: n}
}

// AlbumsFromAPI converts a slice of API albums, keeping their order.
func AlbumsFromAPI(in []api.Album) []Album {
	out := make([]Album, 0, len(in))
	for _, a := range in {
		out = append(out, AlbumFromAPI(a))
	}
	return out
}
