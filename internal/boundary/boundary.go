// Package boundary finds the items that are new since the previous run.
package boundary

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/gphotosync/internal/media"
)

// Outcome classifies a boundary search.
type Outcome int

const (
	// OutcomeFound means the boundary was found after at least one new item.
	OutcomeFound Outcome = iota
	// OutcomeNothingNew means the newest listed item is the boundary.
	OutcomeNothingNew
	// OutcomeNotFound means the boundary is not in the listing; every listed
	// item is treated as new.
	OutcomeNotFound
	// OutcomeNoBoundary means no boundary was recorded yet.
	OutcomeNoBoundary
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNothingNew:
		return "nothing_new"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeNoBoundary:
		return "no_boundary"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// FindNew returns the newest-first items listed strictly before boundaryID.
func FindNew(listing []media.Item, boundaryID string) ([]media.Item, Outcome) {
	if boundaryID == "" {
		return listing, OutcomeNoBoundary
	}
	for k, item := range listing {
		if item.ID != boundaryID {
			continue
		}
		if k == 0 {
			return nil, OutcomeNothingNew
		}
		return listing[:k], OutcomeFound
	}
	return listing, OutcomeNotFound
}

// Store persists the boundary as a single line of text.
type Store struct {
	Path string
}

// Load returns the stored boundary, or "" when none was written yet.
func (s Store) Load() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read boundary: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save replaces the stored boundary atomically.
func (s Store) Save(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("refusing to save an empty boundary")
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create boundary directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".boundary-*")
	if err != nil {
		return fmt.Errorf("failed to save boundary: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(id + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to save boundary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to save boundary: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to save boundary: %w", err)
	}
	return nil
}
