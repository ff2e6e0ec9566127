package service

import (
	"fmt"

	"playlistfetch/internal/model"
)

// DefaultHeights is the allow-set used when a filter is built without heights
var DefaultHeights = []int{480, 720, 1080}

// FormatFilter keeps formats of one container whose height is allow-listed
type FormatFilter struct {
	container string
	heights   map[int]struct{}
}

// NewFormatFilter builds a filter. An empty container means "mp4" and an
// empty height list means DefaultHeights.
func NewFormatFilter(container string, heights []int) *FormatFilter {
	if container == "" {
		container = "mp4"
	}
	if len(heights) == 0 {
		heights = DefaultHeights
	}
	set := make(map[int]struct{}, len(heights))
	for _, h := range heights {
		set[h] = struct{}{}
	}
	return &FormatFilter{container: container, heights: set}
}

// Filter returns the matching formats in input order. It never returns nil.
func (f *FormatFilter) Filter(formats []model.FormatDescriptor) []model.FormatDescriptor {
	out := make([]model.FormatDescriptor, 0, len(formats))
	for _, format := range formats {
		if f.Allows(format) {
			out = append(out, format)
		}
	}
	return out
}

// Allows reports whether a single format passes the filter
func (f *FormatFilter) Allows(format model.FormatDescriptor) bool {
	if format.Container != f.container || format.Height == nil {
		return false
	}
	_, ok := f.heights[*format.Height]
	return ok
}

// FormatOption is a filtered format ready for display
type FormatOption struct {
	FormatID   string `json:"format_id"`
	Resolution string `json:"resolution"`
	Quality    string `json:"quality"`
	Size       string `json:"size"`
}

// Options filters formats and renders them as "137: 1920x1080, 145.20 MB" rows
func (f *FormatFilter) Options(formats []model.FormatDescriptor) []FormatOption {
	filtered := f.Filter(formats)
	options := make([]FormatOption, 0, len(filtered))
	for _, format := range filtered {
		size := "Unknown size"
		if format.ApproxSizeBytes != nil {
			size = fmt.Sprintf("%.2f MB", float64(*format.ApproxSizeBytes)/(1024*1024))
		}
		resolution := format.Resolution
		if resolution == "" {
			resolution = fmt.Sprintf("%dp", *format.Height)
		}
		options = append(options, FormatOption{
			FormatID:   format.FormatID,
			Resolution: resolution,
			Quality:    format.Quality,
			Size:       size,
		})
	}
	return options
}
