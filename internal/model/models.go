package model

import "time"

// VideoRef is one playlist entry. Index is 1-based and fixes the entry's
// position for the lifetime of a session.
type VideoRef struct {
	Index     int    `json:"index"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title,omitempty"`
}

// FormatDescriptor is one selectable format exposed by the extraction worker
type FormatDescriptor struct {
	FormatID        string `json:"format_id"`
	Container       string `json:"container"`
	Height          *int   `json:"height,omitempty"`
	ApproxSizeBytes *int64 `json:"approx_size_bytes,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	VideoCodec      string `json:"video_codec,omitempty"`
	AudioCodec      string `json:"audio_codec,omitempty"`
	Quality         string `json:"quality,omitempty"` // FHD, HD, SD, FD, Audio
}

// VideoMetadata is the resolved view of a single video
type VideoMetadata struct {
	Title        string             `json:"title"`
	CanonicalURL string             `json:"canonical_url"`
	Formats      []FormatDescriptor `json:"formats"`
}

// HasFormat reports whether formatID is among the available formats
func (m *VideoMetadata) HasFormat(formatID string) bool {
	if m == nil {
		return false
	}
	for _, f := range m.Formats {
		if f.FormatID == formatID {
			return true
		}
	}
	return false
}

// PlaylistEntry is a flat playlist item as returned by the worker
type PlaylistEntry struct {
	Title string
	URL   string
}

// Extraction is the worker's answer for any URL. Entries != nil means playlist.
type Extraction struct {
	Title        string
	CanonicalURL string
	Formats      []FormatDescriptor
	Entries      []PlaylistEntry
}

// IsPlaylist reports whether the extraction describes a multi-video collection
func (e *Extraction) IsPlaylist() bool {
	return len(e.Entries) > 0
}

// Listing is an enumerated URL: the refs to resolve, plus the metadata of a
// single video when no playlist resolution is needed.
type Listing struct {
	Title      string
	IsPlaylist bool
	Refs       []VideoRef
	Single     *VideoMetadata
}

// ResolutionStatus tags a ResolutionOutcome
type ResolutionStatus string

const (
	StatusResolved ResolutionStatus = "resolved"
	StatusFailed   ResolutionStatus = "failed"
)

// ResolutionOutcome is the result for one VideoRef, matched by index
type ResolutionOutcome struct {
	Ref      VideoRef         `json:"ref"`
	Status   ResolutionStatus `json:"status"`
	Metadata *VideoMetadata   `json:"metadata,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	Err      error            `json:"-"`
}

// Resolved builds a successful outcome
func Resolved(ref VideoRef, meta *VideoMetadata) ResolutionOutcome {
	return ResolutionOutcome{Ref: ref, Status: StatusResolved, Metadata: meta}
}

// Failed builds a failed outcome carrying the error's message as reason
func Failed(ref VideoRef, err error) ResolutionOutcome {
	return ResolutionOutcome{Ref: ref, Status: StatusFailed, Reason: err.Error(), Err: err}
}

// OK reports whether the outcome carries metadata
func (o ResolutionOutcome) OK() bool {
	return o.Status == StatusResolved && o.Metadata != nil
}

// ResolvedVideo is a ref together with its resolved metadata
type ResolvedVideo struct {
	Ref      VideoRef
	Metadata *VideoMetadata
}

// AttemptOutcome tags a DownloadAttempt
type AttemptOutcome string

const (
	AttemptSuccess           AttemptOutcome = "success"
	AttemptFormatUnavailable AttemptOutcome = "format_unavailable"
	AttemptOtherFailure      AttemptOutcome = "other_failure"
)

// DownloadAttempt records one download try of one video
type DownloadAttempt struct {
	Ref      VideoRef       `json:"ref"`
	FormatID string         `json:"format_id"`
	Outcome  AttemptOutcome `json:"outcome"`
	Reason   string         `json:"reason,omitempty"`
	Path     string         `json:"path,omitempty"`
	FileID   string         `json:"file_id,omitempty"`
	Bytes    int64          `json:"bytes,omitempty"`
}

// DownloadRun is the state of one orchestrated run over a selection
type DownloadRun struct {
	ID            string            `json:"id"`
	FormatID      string            `json:"format_id"`
	Attempts      []DownloadAttempt `json:"attempts"`
	Skipped       []ResolvedVideo   `json:"-"`
	RetryAttempts []DownloadAttempt `json:"retry_attempts,omitempty"`
	Retried       bool              `json:"retried"`
}

// SkippedIndices returns the indices of videos waiting for a replacement format
func (r *DownloadRun) SkippedIndices() []int {
	out := make([]int, 0, len(r.Skipped))
	for _, v := range r.Skipped {
		out = append(out, v.Ref.Index)
	}
	return out
}

// PlaylistSession holds one resolved URL and the runs started from it
type PlaylistSession struct {
	ID         string              `json:"id"`
	SourceURL  string              `json:"source_url"`
	Title      string              `json:"title"`
	IsPlaylist bool                `json:"is_playlist"`
	Outcomes   []ResolutionOutcome `json:"outcomes"`
	Runs       map[string]*DownloadRun
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// DownloadedFile tracks downloaded files for serving and cleanup
type DownloadedFile struct {
	ID        string
	Filename  string
	FilePath  string
	Size      int64
	CreatedAt time.Time
	ExpiresAt time.Time
	URL       string
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
