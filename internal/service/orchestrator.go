package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"playlistfetch/internal/model"
	"playlistfetch/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyFormat    = errors.New("format id is required")
	ErrDuplicateIndex = errors.New("duplicate video index in selection")
	ErrRetryExhausted = errors.New("retry round already used")
	ErrNothingToRetry = errors.New("no skipped videos to retry")
	ErrNotSkipped     = errors.New("replacement given for a video that was not skipped")
)

// FileStore hands out destinations and records finished files. Every path
// from Destination ends in exactly one TrackFile or Release.
type FileStore interface {
	Destination(dir string, ref model.VideoRef) string
	TrackFile(path, sourceURL string, size int64) *model.DownloadedFile
	Release(path string)
}

// OrchestratorOptions configures a download run
type OrchestratorOptions struct {
	// RetryRounds is 0 (no retry) or 1; larger values are treated as 1.
	RetryRounds int
	// Prober, when set, re-resolves each video right before its attempt
	// instead of trusting the metadata from the fan-out.
	Prober Resolver
}

// Orchestrator downloads a selection sequentially and offers one retry
// round for videos whose format was unavailable
type Orchestrator struct {
	fetcher     Fetcher
	files       FileStore
	retryRounds int
	prober      Resolver
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(fetcher Fetcher, files FileStore, opts OrchestratorOptions) *Orchestrator {
	return &Orchestrator{
		fetcher:     fetcher,
		files:       files,
		retryRounds: max(0, min(opts.RetryRounds, 1)),
		prober:      opts.Prober,
	}
}

// Run applies formatID to every video in index order. Videos whose format is
// unavailable end up in run.Skipped; other failures are terminal.
func (o *Orchestrator) Run(ctx context.Context, formatID string, videos []model.ResolvedVideo, destDir string) (*model.DownloadRun, error) {
	if formatID == "" {
		return nil, ErrEmptyFormat
	}

	ordered := make([]model.ResolvedVideo, len(videos))
	copy(ordered, videos)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ref.Index < ordered[j].Ref.Index })
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Ref.Index == ordered[i-1].Ref.Index {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateIndex, ordered[i].Ref.Index)
		}
	}

	run := &model.DownloadRun{
		ID:       uuid.NewString(),
		FormatID: formatID,
		Attempts: make([]model.DownloadAttempt, 0, len(ordered)),
	}

	logger.Logger.Info("Download run started",
		zap.String("run_id", run.ID),
		zap.String("format_id", formatID),
		zap.Int("videos", len(ordered)))

	for _, video := range ordered {
		attempt := o.attempt(ctx, video, formatID, destDir)
		run.Attempts = append(run.Attempts, attempt)
		if attempt.Outcome == model.AttemptFormatUnavailable {
			run.Skipped = append(run.Skipped, video)
		}
	}

	o.logSummary(run.ID, "Download run finished", run.Attempts)
	return run, nil
}

// Retry re-attempts skipped videos, each with its own replacement format
// keyed by index. It can be called once per run. Skipped videos without a
// replacement are left as they are.
func (o *Orchestrator) Retry(ctx context.Context, run *model.DownloadRun, replacements map[int]string, destDir string) ([]model.DownloadAttempt, error) {
	if run.Retried || o.retryRounds == 0 {
		return nil, ErrRetryExhausted
	}
	if len(run.Skipped) == 0 {
		return nil, ErrNothingToRetry
	}

	skipped := make(map[int]bool, len(run.Skipped))
	for _, v := range run.Skipped {
		skipped[v.Ref.Index] = true
	}
	for index, formatID := range replacements {
		if !skipped[index] {
			return nil, fmt.Errorf("%w: %d", ErrNotSkipped, index)
		}
		if formatID == "" {
			return nil, fmt.Errorf("%w: index %d", ErrEmptyFormat, index)
		}
	}

	run.Retried = true
	attempts := make([]model.DownloadAttempt, 0, len(replacements))
	remaining := make([]model.ResolvedVideo, 0, len(run.Skipped))
	for _, video := range run.Skipped {
		formatID, ok := replacements[video.Ref.Index]
		if !ok {
			remaining = append(remaining, video)
			continue
		}
		attempt := o.attempt(ctx, video, formatID, destDir)
		attempts = append(attempts, attempt)
		if attempt.Outcome == model.AttemptFormatUnavailable {
			remaining = append(remaining, video)
		}
	}

	run.RetryAttempts = attempts
	run.Skipped = remaining
	o.logSummary(run.ID, "Retry round finished", attempts)
	return attempts, nil
}

// attempt checks availability and, if present, transfers one video
func (o *Orchestrator) attempt(ctx context.Context, video model.ResolvedVideo, formatID, destDir string) model.DownloadAttempt {
	attempt := model.DownloadAttempt{Ref: video.Ref, FormatID: formatID}

	meta := video.Metadata
	if o.prober != nil {
		fresh, err := o.prober.Resolve(ctx, sourceURL(video))
		if err != nil {
			attempt.Outcome = model.AttemptOtherFailure
			attempt.Reason = fmt.Sprintf("availability probe: %v", err)
			return attempt
		}
		meta = fresh
	}

	if !meta.HasFormat(formatID) {
		attempt.Outcome = model.AttemptFormatUnavailable
		attempt.Reason = fmt.Sprintf("format %s is not available", formatID)
		logger.Logger.Info("Format unavailable, skipping",
			zap.Int("index", video.Ref.Index),
			zap.String("format_id", formatID))
		return attempt
	}

	dest := o.files.Destination(destDir, titledRef(video))
	written, err := o.fetcher.Fetch(ctx, sourceURL(video), formatID, dest)
	switch {
	case err == nil:
		file := o.files.TrackFile(dest, sourceURL(video), written)
		attempt.Outcome = model.AttemptSuccess
		attempt.Path = dest
		attempt.FileID = file.ID
		attempt.Bytes = written
	case IsFormatUnavailable(err):
		o.files.Release(dest)
		attempt.Outcome = model.AttemptFormatUnavailable
		attempt.Reason = err.Error()
	default:
		o.files.Release(dest)
		attempt.Outcome = model.AttemptOtherFailure
		attempt.Reason = err.Error()
		logger.Logger.Error("Download failed",
			zap.Int("index", video.Ref.Index),
			zap.String("format_id", formatID),
			zap.Error(err))
	}
	return attempt
}

func (o *Orchestrator) logSummary(runID, msg string, attempts []model.DownloadAttempt) {
	counts := map[model.AttemptOutcome]int{}
	for _, a := range attempts {
		counts[a.Outcome]++
	}
	logger.Logger.Info(msg,
		zap.String("run_id", runID),
		zap.Int("success", counts[model.AttemptSuccess]),
		zap.Int("format_unavailable", counts[model.AttemptFormatUnavailable]),
		zap.Int("other_failure", counts[model.AttemptOtherFailure]))
}

// sourceURL prefers the canonical URL found during resolution
func sourceURL(video model.ResolvedVideo) string {
	if video.Metadata != nil && video.Metadata.CanonicalURL != "" {
		return video.Metadata.CanonicalURL
	}
	return video.Ref.SourceURL
}

func titledRef(video model.ResolvedVideo) model.VideoRef {
	ref := video.Ref
	if ref.Title == "" && video.Metadata != nil {
		ref.Title = video.Metadata.Title
	}
	return ref
}
