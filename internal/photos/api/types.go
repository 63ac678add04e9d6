// Package api provides types used by the Google Photos Library API.
package api

import (
	"fmt"
)

// ErrorDetails in the internals of the Error type
type ErrorDetails struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Error is returned on errors
type Error struct {
	Details ErrorDetails `json:"error"`
}

// Error satisfies error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Details.Message, e.Details.Code, e.Details.Status)
}

// Album of photos
type Album struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	ProductURL      string `json:"productUrl,omitempty"`
	MediaItemsCount string `json:"mediaItemsCount,omitempty"`
}

// ListAlbums is returned from albums.list
type ListAlbums struct {
	Albums        []Album `json:"albums"`
	NextPageToken string  `json:"nextPageToken"`
}

// MediaMetadata describes a media item. CreationTime is kept as the raw
// string so malformed values surface as errors instead of zero times.
type MediaMetadata struct {
	CreationTime string    `json:"creationTime"`
	Width        string    `json:"width,omitempty"`
	Height       string    `json:"height,omitempty"`
	Photo        *struct{} `json:"photo,omitempty"`
	Video        *struct{} `json:"video,omitempty"`
}

// MediaItem is a photo or video
type MediaItem struct {
	ID            string        `json:"id"`
	ProductURL    string        `json:"productUrl,omitempty"`
	BaseURL       string        `json:"baseUrl"`
	MimeType      string        `json:"mimeType"`
	MediaMetadata MediaMetadata `json:"mediaMetadata"`
	Filename      string        `json:"filename"`
}

// MediaItems is returned from mediaItems.list and mediaItems.search
type MediaItems struct {
	MediaItems    []MediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken"`
}

// Date is used as part of DateFilter. Zero fields are wildcards.
type Date struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// DateRange is an inclusive range of dates.
type DateRange struct {
	StartDate Date `json:"startDate"`
	EndDate   Date `json:"endDate"`
}

// DateFilter is used to add date ranges to media item queries
type DateFilter struct {
	Dates  []Date      `json:"dates,omitempty"`
	Ranges []DateRange `json:"ranges,omitempty"`
}

// Filters combines the filter types used by this tool
type Filters struct {
	DateFilter           *DateFilter `json:"dateFilter,omitempty"`
	IncludeArchivedMedia *bool       `json:"includeArchivedMedia,omitempty"`
}

// SearchFilter is used with mediaItems.search. AlbumID and Filters cannot be
// set together, the service rejects the request with 400 INVALID_ARGUMENT.
type SearchFilter struct {
	AlbumID   string   `json:"albumId,omitempty"`
	PageSize  int      `json:"pageSize"`
	PageToken string   `json:"pageToken,omitempty"`
	Filters   *Filters `json:"filters,omitempty"`
}
