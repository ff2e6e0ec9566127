package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"playlistfetch/internal/model"
	"playlistfetch/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProgressNotifier receives per-entry notifications during ResolveAll.
// Calls arrive from multiple goroutines.
type ProgressNotifier interface {
	Started(ref model.VideoRef)
	Ended(ref model.VideoRef, outcome model.ResolutionOutcome)
}

// Fanout resolves playlist entries concurrently
type Fanout struct {
	resolver    Resolver
	taskTimeout time.Duration
	notifier    ProgressNotifier
}

// NewFanout creates a fan-out over resolver. taskTimeout <= 0 disables the
// per-entry deadline; a nil notifier logs progress through zap.
func NewFanout(resolver Resolver, taskTimeout time.Duration, notifier ProgressNotifier) *Fanout {
	return &Fanout{resolver: resolver, taskTimeout: taskTimeout, notifier: notifier}
}

// ResolveAll resolves every ref with at most limit calls in flight (limit <= 0
// is unbounded) and returns once all of them finished. outcomes[i] belongs to
// refs[i]; one entry failing never stops the others.
func (f *Fanout) ResolveAll(ctx context.Context, refs []model.VideoRef, limit int) []model.ResolutionOutcome {
	outcomes := make([]model.ResolutionOutcome, len(refs))
	if len(refs) == 0 {
		return outcomes
	}
	notifier := f.notifier
	if notifier == nil {
		notifier = &logNotifier{total: len(refs)}
	}

	// The group is not derived from ctx: a failed entry must not cancel its siblings.
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	start := time.Now()
	for i := range refs {
		i := i
		g.Go(func() error {
			outcomes[i] = f.resolveOne(ctx, refs[i], notifier)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Status == model.StatusFailed {
			failed++
		}
	}
	logger.Logger.Info("Playlist resolution finished",
		zap.Int("entries", len(refs)),
		zap.Int("failed", failed),
		zap.Int("limit", limit),
		zap.Duration("elapsed", time.Since(start)))

	return outcomes
}

func (f *Fanout) resolveOne(ctx context.Context, ref model.VideoRef, notifier ProgressNotifier) (outcome model.ResolutionOutcome) {
	notifier.Started(ref)
	defer func() {
		if r := recover(); r != nil {
			outcome = model.Failed(ref, fmt.Errorf("resolver panic: %v", r))
		}
		notifier.Ended(ref, outcome)
	}()

	taskCtx := ctx
	if f.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, f.taskTimeout)
		defer cancel()
	}

	meta, err := f.resolver.Resolve(taskCtx, ref.SourceURL)
	if err != nil {
		return model.Failed(ref, normalizeResolveError(ref.SourceURL, err))
	}
	if meta == nil {
		return model.Failed(ref, model.NewResolveError(model.ErrUnsupported, ref.SourceURL, errors.New("empty metadata")))
	}
	if ref.Title == "" {
		ref.Title = meta.Title
	}
	return model.Resolved(ref, meta)
}

// normalizeResolveError makes sure every failure carries a resolution kind.
// Untyped errors, expired deadlines included, count as network failures.
func normalizeResolveError(url string, err error) error {
	var re *model.ResolveError
	if errors.As(err, &re) {
		return err
	}
	return model.NewResolveError(model.ErrNetworkFailure, url, err)
}

// logNotifier reports "started"/"ended" lines. done is shared by all tasks of
// one ResolveAll call.
type logNotifier struct {
	total int
	done  atomic.Int64
}

func (n *logNotifier) Started(ref model.VideoRef) {
	logger.Logger.Debug("Resolution started", zap.Int("index", ref.Index), zap.String("url", ref.SourceURL))
}

func (n *logNotifier) Ended(ref model.VideoRef, outcome model.ResolutionOutcome) {
	done := n.done.Add(1)
	fields := []zap.Field{
		zap.Int("index", ref.Index),
		zap.String("status", string(outcome.Status)),
		zap.Int64("done", done),
		zap.Int("total", n.total),
	}
	if outcome.Status == model.StatusFailed {
		logger.Logger.Warn("Resolution ended", append(fields, zap.String("reason", outcome.Reason))...)
		return
	}
	logger.Logger.Debug("Resolution ended", fields...)
}
