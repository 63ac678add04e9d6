// Package timestamp converts capture times reported by the photo service
// into the destination timezone.
package timestamp

import (
	"fmt"
	"time"
	_ "time/tzdata" // destination zones must resolve on hosts without a tz database

	"github.com/ncruces/go-strftime"

	"github.com/hpungsan/gphotosync/internal/errors"
)

// SourceLayout is the only accepted input shape: second precision, literal Z.
const SourceLayout = "2006-01-02T15:04:05Z"

// DefaultZone is the destination zone used when none is configured.
const DefaultZone = "America/Los_Angeles"

// strftime patterns used by the materializer.
const (
	ExifPattern     = "%Y:%m:%d %H:%M:%S"
	FilenamePattern = "%Y-%m-%d %H.%M.%S"
)

// Normalizer converts source-zone instants into destination-zone instants.
type Normalizer struct {
	Source      *time.Location
	Destination *time.Location
}

// Default returns the UTC to US Pacific normalizer.
func Default() Normalizer {
	n, err := New(DefaultZone)
	if err != nil {
		panic(err) // tzdata is embedded
	}
	return n
}

// New returns a UTC normalizer for the named destination zone.
func New(zone string) (Normalizer, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Normalizer{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return Normalizer{Source: time.UTC, Destination: loc}, nil
}

// Instant parses utc and returns it in the destination zone.
func (n Normalizer) Instant(utc string) (time.Time, error) {
	// time.Parse accepts fractional seconds the layout does not mention
	if len(utc) != len(SourceLayout) {
		return time.Time{}, errors.NewMalformedTimestamp(utc, nil)
	}
	t, err := time.ParseInLocation(SourceLayout, utc, n.source())
	if err != nil {
		return time.Time{}, errors.NewMalformedTimestamp(utc, err)
	}
	return t.In(n.destination()), nil
}

// Format parses utc and formats it in the destination zone using a strftime
// pattern such as ExifPattern.
func (n Normalizer) Format(utc, pattern string) (string, error) {
	t, err := n.Instant(utc)
	if err != nil {
		return "", err
	}
	return strftime.Format(pattern, t), nil
}

// FormatTime formats an already normalized instant.
func (n Normalizer) FormatTime(t time.Time, pattern string) string {
	return strftime.Format(pattern, t.In(n.destination()))
}

func (n Normalizer) source() *time.Location {
	if n.Source == nil {
		return time.UTC
	}
	return n.Source
}

func (n Normalizer) destination() *time.Location {
	if n.Destination == nil {
		return time.UTC
	}
	return n.Destination
}
