// Package materialize downloads classified items into their category folder
// with capture-time metadata and file names in the destination zone.
package materialize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/hpungsan/gphotosync/internal/attribution"
	"github.com/hpungsan/gphotosync/internal/config"
	"github.com/hpungsan/gphotosync/internal/errors"
	"github.com/hpungsan/gphotosync/internal/media"
	"github.com/hpungsan/gphotosync/internal/photos/api"
	"github.com/hpungsan/gphotosync/internal/report"
	"github.com/hpungsan/gphotosync/internal/timestamp"
)

// Content refreshes locators and downloads bytes.
type Content interface {
	GetMediaItem(ctx context.Context, id string) (*api.MediaItem, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Codec edits capture-time metadata in memory.
type Codec interface {
	Rewrite(data []byte, name, value string) ([]byte, error)
	Synthesize(data []byte, name, value string) ([]byte, error)
}

// Materializer writes items below Root.
type Materializer struct {
	Root string

	// Rules names the unsorted category, which is stored in
	// UnorganizedFolder instead of a folder of its own name.
	Rules             attribution.Rules
	UnorganizedFolder string

	// Naming is config.NamingReplace or config.NamingPrefix.
	Naming string

	Normalizer timestamp.Normalizer
	Codec      Codec
	Content    Content
	Report     *report.Report
	Logger     *logrus.Logger
}

// Outcome describes one materialized item.
type Outcome struct {
	Path            string
	Folder          string
	Bytes           int64
	AutoDated       bool
	MetadataSkipped bool
}

// Materialize downloads item into the folder of category, stamps its
// capture time and records it in the report. An existing file with the same
// final name is replaced.
func (m *Materializer) Materialize(ctx context.Context, item media.Item, category attribution.Category) (*Outcome, error) {
	log := m.logger().WithFields(logrus.Fields{"item": item.ID, "file": item.Filename, "category": string(category)})

	folder := m.folderFor(category)
	dir, err := folderPath(m.Root, folder)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder %s: %w", dir, err)
	}

	// base URLs expire, so re-read the item right before downloading
	fresh, err := m.Content.GetMediaItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	data, err := m.Content.Download(ctx, DownloadURL(fresh.BaseURL, item.Kind))
	if err != nil {
		return nil, err
	}

	out := &Outcome{Folder: folder}
	if !item.IsVideo() {
		data, err = m.stamp(data, item, out)
		if err != nil {
			return nil, err
		}
	}

	final := filepath.Join(dir, m.fileName(item))
	if err := writeReplace(final, data); err != nil {
		return nil, err
	}
	if err := os.Chtimes(final, item.Captured, item.Captured); err != nil {
		return nil, fmt.Errorf("failed to set times of %s: %w", final, err)
	}
	out.Path = final
	out.Bytes = int64(len(data))

	if m.Report != nil {
		m.Report.AddWritten(out.Bytes)
		if m.Rules.IsUnsorted(category) {
			m.Report.AddUnorganized(item.Filename)
		}
	}

	log.WithFields(logrus.Fields{
		"path": final,
		"size": humanize.Bytes(uint64(out.Bytes)),
	}).Info("materialized")
	return out, nil
}

// stamp writes the normalized capture time into a photo, synthesizing a
// metadata block only when the photo has none. A block that exists but
// cannot be edited is left untouched.
func (m *Materializer) stamp(data []byte, item media.Item, out *Outcome) ([]byte, error) {
	value := m.Normalizer.FormatTime(item.Captured, timestamp.ExifPattern)

	rewritten, err := m.Codec.Rewrite(data, item.Filename, value)
	switch {
	case err == nil:
		return rewritten, nil
	case errors.Is(err, errors.ErrMissingMetadata):
		synthesized, err := m.Codec.Synthesize(data, item.Filename, value)
		if err != nil {
			return nil, err
		}
		out.AutoDated = true
		if m.Report != nil {
			m.Report.AddAutoDated(item.Filename, value)
		}
		return synthesized, nil
	case errors.Is(err, errors.ErrUnsupportedFormat), errors.Is(err, errors.ErrUnreadableMetadata):
		out.MetadataSkipped = true
		detail := item.MimeType
		if errors.Is(err, errors.ErrUnreadableMetadata) {
			detail = "unreadable EXIF"
		}
		if m.Report != nil {
			m.Report.AddSkipped(item.Filename, detail)
		}
		m.logger().WithField("item", item.ID).Debug(err.Error())
		return data, nil
	default:
		return nil, err
	}
}

// folderFor maps a category to its sanitized folder name.
func (m *Materializer) folderFor(category attribution.Category) string {
	if m.Rules.IsUnsorted(category) && m.UnorganizedFolder != "" {
		return SanitizeForFilename(m.UnorganizedFolder)
	}
	return SanitizeForFilename(string(category))
}

// fileName builds the final name from the capture time.
func (m *Materializer) fileName(item media.Item) string {
	stamp := m.Normalizer.FormatTime(item.Captured, timestamp.FilenamePattern)
	if m.Naming == config.NamingPrefix {
		return stamp + " " + SanitizeForFilename(item.Filename)
	}
	return stamp + filepath.Ext(item.Filename)
}

func (m *Materializer) logger() *logrus.Logger {
	if m.Logger == nil {
		return logrus.StandardLogger()
	}
	return m.Logger
}

// DownloadURL returns the full-quality content URL: "=dv" for videos, "=d"
// for photos.
func DownloadURL(baseURL string, kind media.Kind) string {
	if kind == media.KindVideo {
		return baseURL + "=dv"
	}
	return baseURL + "=d"
}

// writeReplace writes data to a temp file next to path and renames it over
// path.
func writeReplace(path string, data []byte) error {
	tmpPath := filepath.Join(filepath.Dir(path), "."+ulid.Make().String()+".part")
	f, err := createExclusive(tmpPath, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
