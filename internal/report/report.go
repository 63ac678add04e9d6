// Package report collects what a run did to each item and renders the
// end-of-run summary.
package report

import (
	"slices"
	"sync"
)

// PNGAdvisory is printed after every run.
const PNGAdvisory = "NOTE: PNG images may use the tag of CreationTime instead of the supplied EXIF. This is accounted for."

// Entry is one reported item.
type Entry struct {
	Name   string `json:"name"`
	Date   string `json:"date,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Report accumulates per-item outcomes. It is safe for concurrent use.
type Report struct {
	mu          sync.Mutex
	autoDated   []Entry
	unorganized []Entry
	skipped     []Entry
	written     int
	bytes       int64
}

// New returns an empty Report.
func New() *Report {
	return &Report{}
}

// AddAutoDated records an item whose metadata block was synthesized.
func (r *Report) AddAutoDated(name, date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoDated = append(r.autoDated, Entry{Name: name, Date: date})
}

// AddUnorganized records an item that belongs to no album.
func (r *Report) AddUnorganized(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unorganized = append(r.unorganized, Entry{Name: name})
}

// AddSkipped records a photo whose container the codec cannot edit.
func (r *Report) AddSkipped(name, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, Entry{Name: name, Detail: detail})
}

// AddWritten counts a materialized file of n bytes.
func (r *Report) AddWritten(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written++
	r.bytes += n
}

// Summary is an immutable copy of a Report.
type Summary struct {
	AutoDated       []Entry `json:"auto_dated"`
	Unorganized     []Entry `json:"unorganized"`
	MetadataSkipped []Entry `json:"metadata_skipped"`
	Written         int     `json:"written"`
	Bytes           int64   `json:"bytes"`
}

// Summary returns a copy of the accumulated entries.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		AutoDated:       slices.Clone(r.autoDated),
		Unorganized:     slices.Clone(r.unorganized),
		MetadataSkipped: slices.Clone(r.skipped),
		Written:         r.written,
		Bytes:           r.bytes,
	}
}
