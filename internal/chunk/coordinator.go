package chunk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"splicer/internal/audio"
	"splicer/internal/cleanup"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
)

// durationEpsilon bounds the accepted drift between the source and the sum
// of its chunks.
const durationEpsilon = 1e-6

// Cleaner processes one chunk. cleanup.Clean is the default.
type Cleaner func(clip audio.Clip, words []media.Word, cuts []media.Span, opts cleanup.Options) (cleanup.Result, error)

// Options controls the fan-out.
type Options struct {
	Workers   int
	Attempts  int
	BaseDelay time.Duration
	// WorkDir holds the per-attempt chunk directory. It is removed after
	// reassembly.
	WorkDir string
	Cleanup cleanup.Options
}

// Coordinator fans chunk cleanup out to a bounded set of goroutines.
type Coordinator struct {
	opts   Options
	clean  Cleaner
	retry  services.RetryPolicy
	logger *slog.Logger
}

// NewCoordinator constructs a coordinator.
func NewCoordinator(opts Options, logger *slog.Logger) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	return &Coordinator{
		opts:  opts,
		clean: cleanup.Clean,
		retry: services.RetryPolicy{
			Attempts:    opts.Attempts,
			BaseDelay:   opts.BaseDelay,
			ShouldRetry: retryChunk,
		},
		logger: logging.NewComponentLogger(logger, "chunk"),
	}
}

// WithCleaner replaces the per-chunk processor (for testing).
func (c *Coordinator) WithCleaner(fn Cleaner) *Coordinator {
	if fn != nil {
		c.clean = fn
	}
	return c
}

// WithSleeper replaces the retry wait (for testing).
func (c *Coordinator) WithSleeper(fn func(time.Duration)) *Coordinator {
	c.retry.Sleeper = fn
	return c
}

// retryChunk retries any chunk failure except cancellation.
func retryChunk(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Process splits clip into n chunks, cleans them concurrently and returns
// the reassembled result on the original clip's timeline. A chunk that
// exhausts its attempts fails the whole call with ErrChunkFailed.
func (c *Coordinator) Process(ctx context.Context, clip audio.Clip, words []media.Word, cuts []media.Span, n int) (cleanup.Result, error) {
	chunks := Split(clip, words, n)
	if got := SourceDuration(clip.Rate, chunks); math.Abs(got-clip.Duration()) > durationEpsilon {
		return cleanup.Result{}, services.Wrap(services.ErrChunkFailed, "chunk", "split",
			fmt.Sprintf("chunks cover %.6fs of %.6fs", got, clip.Duration()), nil)
	}

	dir, err := os.MkdirTemp(c.opts.WorkDir, "chunks-")
	if err != nil {
		return cleanup.Result{}, services.Wrap(services.ErrTransient, "chunk", "workdir", "create chunk directory", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			c.logger.Debug("remove chunk directory failed", logging.String("dir", dir), logging.Error(err))
		}
	}()
	for i := range chunks {
		chunks[i].Path = filepath.Join(dir, fmt.Sprintf("chunk-%03d.wav", i))
		if err := audio.WriteWAV(chunks[i].Path, clip.Slice(chunks[i].From, chunks[i].To)); err != nil {
			return cleanup.Result{}, services.Wrap(services.ErrTransient, "chunk", "write", fmt.Sprintf("chunk %d", i), err)
		}
	}

	c.logger.Info("chunked processing started",
		logging.Int("chunk_count", len(chunks)),
		logging.Int("workers", c.opts.Workers),
		logging.Seconds("duration_s", clip.Duration()),
	)
	started := time.Now()

	results := make([]cleanup.Result, len(chunks))
	errs := make([]error, len(chunks))
	sem := make(chan struct{}, c.opts.Workers)
	var wg sync.WaitGroup
	for i := range chunks {
		wg.Go(func() {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				chunks[i].Status = StatusFailed
				return
			}
			defer func() { <-sem }()
			results[i], errs[i] = c.processChunk(ctx, &chunks[i], i == len(chunks)-1, clip.Rate, words, cuts)
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		logging.WarnWithContext(c.logger, "chunk failed", "chunk_failed",
			logging.Int(logging.FieldChunkIndex, i),
			logging.String(logging.FieldChunkID, chunks[i].ID),
			logging.Int(logging.FieldAttempt, chunks[i].Attempts),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retry the assembly"),
			logging.String(logging.FieldImpact, "the assembly attempt fails"),
		)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return cleanup.Result{}, err
		}
		return cleanup.Result{}, services.Wrap(services.ErrChunkFailed, "chunk", "process",
			fmt.Sprintf("chunk %d failed after %d attempts", i, chunks[i].Attempts), err)
	}

	out, err := Reassemble(clip.Rate, chunks, results)
	if err != nil {
		return cleanup.Result{}, err
	}
	c.logger.Info("chunked processing finished",
		logging.Int("chunk_count", len(chunks)),
		logging.Seconds("removed_s", out.Edits.RemovedSeconds()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

func (c *Coordinator) processChunk(ctx context.Context, ch *Chunk, last bool, rate int, words []media.Word, cuts []media.Span) (cleanup.Result, error) {
	ch.Status = StatusRunning
	localWords, localCuts := localize(rate, *ch, last, words, cuts)
	var res cleanup.Result
	err := c.retry.Do(ctx, fmt.Sprintf("chunk %d", ch.Index), func(attempt int) error {
		ch.Attempts = attempt
		if err := ctx.Err(); err != nil {
			return err
		}
		clip, err := audio.ReadWAV(ch.Path)
		if err != nil {
			return err
		}
		res, err = c.clean(clip, localWords, localCuts, c.opts.Cleanup)
		if err != nil {
			c.logger.Debug("chunk attempt failed",
				logging.Int(logging.FieldChunkIndex, ch.Index),
				logging.String(logging.FieldChunkID, ch.ID),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(err),
			)
		}
		return err
	})
	if err != nil {
		ch.Status = StatusFailed
		return cleanup.Result{}, err
	}
	ch.Status = StatusDone
	c.logger.Debug("chunk cleaned",
		logging.Int(logging.FieldChunkIndex, ch.Index),
		logging.String(logging.FieldChunkID, ch.ID),
		logging.Int(logging.FieldAttempt, ch.Attempts),
	)
	return res, nil
}
