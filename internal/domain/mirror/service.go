package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/infrastructure/config"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/sitepack/internal/providers/archive"
	"github.com/GriffinCanCode/sitepack/internal/providers/crawler"
	"github.com/GriffinCanCode/sitepack/internal/providers/postprocess"
	"github.com/GriffinCanCode/sitepack/internal/shared/id"
	"go.uber.org/zap"
)

// PostProcessor rewrites the mirrored HTML in place
type PostProcessor interface {
	Process(ctx context.Context, dir, userAgent string) (postprocess.Stats, error)
}

// Packager builds the ZIP archive of a directory
type Packager interface {
	Write(ctx context.Context, dir string, w io.Writer) (archive.Stats, error)
	WriteFile(ctx context.Context, dir, tmpDir, pattern string) (string, archive.Stats, error)
}

// Responder delivers the archive to the client. Once either method has
// written response headers, a returned error can no longer be reported as
// JSON; the caller must abort the connection instead.
type Responder interface {
	ServeFile(filename, path string) error
	Stream(filename string, write func(w io.Writer) error) error
}

// Request is a submitted download
type Request struct {
	URL       string
	UserAgent string
}

// Options configures the pipeline
type Options struct {
	WorkDir       string
	Delivery      string
	Cleanup       string
	CompanionFile string
	Timeout       time.Duration
}

// OptionsFromConfig maps configuration onto pipeline options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WorkDir:       cfg.Mirror.WorkDir,
		Delivery:      cfg.Archive.Delivery,
		Cleanup:       cfg.Mirror.Cleanup,
		CompanionFile: cfg.Mirror.CompanionFile,
		Timeout:       cfg.Mirror.Timeout,
	}
}

// Service runs the download pipeline
type Service struct {
	opts      Options
	crawler   crawler.Crawler
	processor PostProcessor
	packager  Packager
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	locks     *keyedLock
	events    *broadcaster
	jobs      sync.Map // id.JobID -> *Job
}

// NewService creates a pipeline service
func NewService(opts Options, c crawler.Crawler, p PostProcessor, pk Packager, logger *zap.Logger) (*Service, error) {
	if opts.WorkDir == "" {
		return nil, errors.New("work dir is required")
	}
	switch opts.Delivery {
	case "":
		opts.Delivery = config.DeliveryBuffered
	case config.DeliveryBuffered, config.DeliveryStreaming:
	default:
		return nil, fmt.Errorf("unknown delivery mode %q", opts.Delivery)
	}
	switch opts.Cleanup {
	case "":
		opts.Cleanup = config.CleanupRemove
	case config.CleanupRemove, config.CleanupRetain:
	default:
		return nil, fmt.Errorf("unknown cleanup policy %q", opts.Cleanup)
	}
	if c == nil || p == nil || pk == nil {
		return nil, errors.New("crawler, post-processor and packager are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		opts:      opts,
		crawler:   c,
		processor: p,
		packager:  pk,
		logger:    logger,
		locks:     newKeyedLock(),
		events:    newBroadcaster(),
	}, nil
}

// WithMetrics adds metrics tracking to the service
func (s *Service) WithMetrics(metrics *monitoring.Metrics) *Service {
	s.metrics = metrics
	return s
}

// WithTracer records a span per pipeline stage
func (s *Service) WithTracer(tracer *tracing.Tracer) *Service {
	s.tracer = tracer
	return s
}

// Active lists jobs currently in the pipeline, oldest first
func (s *Service) Active() []Snapshot {
	var out []Snapshot
	s.jobs.Range(func(_, v any) bool {
		out = append(out, v.(*Job).Snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Download mirrors req.URL, post-processes and archives it, and hands the
// archive to resp. The returned error is always an *Error. The job is nil
// when the request was rejected before the pipeline started.
func (s *Service) Download(ctx context.Context, req Request, resp Responder) (job *Job, err error) {
	name, err := DeriveName(req.URL)
	if err != nil {
		s.recordJob("invalid")
		return nil, fail(InvalidRequest, StateIdle, err)
	}
	target, err := crawler.NormalizeURL(req.URL)
	if err != nil {
		s.recordJob("invalid")
		return nil, fail(InvalidRequest, StateIdle, err)
	}

	now := time.Now()
	job = &Job{
		ID:        id.NewJobID(),
		URL:       target.String(),
		Name:      name,
		Dir:       filepath.Join(s.opts.WorkDir, name),
		UserAgent: req.UserAgent,
		CreatedAt: now,
		state:     StateIdle,
		updatedAt: now,
	}
	log := s.logger.With(zap.String("job_id", job.ID.String()), zap.String("name", name))

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	if s.metrics != nil {
		s.metrics.JobsInFlight.Inc()
		defer s.metrics.JobsInFlight.Dec()
	}
	s.jobs.Store(job.ID, job)
	defer s.jobs.Delete(job.ID)

	s.enter(log, job, StatePreparingDirectory)

	waitStart := time.Now()
	release, lockErr := s.locks.Lock(ctx, name)
	if s.metrics != nil {
		s.metrics.LockWait.Observe(time.Since(waitStart).Seconds())
	}
	if lockErr != nil {
		err = fail(FilesystemFailure, StatePreparingDirectory, fmt.Errorf("waiting for %s: %w", name, lockErr))
		s.finish(log, job, err, false)
		return job, err
	}

	var tempArchive string
	defer func() {
		if tempArchive != "" {
			if rmErr := os.Remove(tempArchive); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn("failed to remove temp archive", zap.String("path", tempArchive), zap.Error(rmErr))
			}
		}
		s.finish(log, job, err, true)
		release()
	}()

	err = s.run(ctx, log, job, StatePreparingDirectory, FilesystemFailure, func(ctx context.Context) error {
		return s.prepare(job)
	})
	if err != nil {
		return job, err
	}

	err = s.advance(ctx, log, job, StateCrawling, CrawlFailure, func(ctx context.Context) error {
		crawlErr := s.crawler.Crawl(ctx, crawler.Target{URL: job.URL, Dir: job.Dir, UserAgent: job.UserAgent})
		if crawlErr != nil {
			return crawlErr
		}
		if copyErr := s.copyCompanion(job.Dir); copyErr != nil {
			return fail(FilesystemFailure, StateCrawling, copyErr)
		}
		return nil
	})
	if err != nil {
		return job, err
	}

	err = s.advance(ctx, log, job, StatePostProcessing, FilesystemFailure, func(ctx context.Context) error {
		stats, ppErr := s.processor.Process(ctx, job.Dir, job.UserAgent)
		if ppErr != nil {
			return ppErr
		}
		if s.metrics != nil {
			s.metrics.PagesRewritten.Add(float64(stats.Rewritten))
		}
		log.Info("html post-processed",
			zap.Int("scanned", stats.Scanned),
			zap.Int("injected", stats.Injected),
			zap.Int("repaired", stats.Repaired),
			zap.Int("legacy", stats.Legacy),
		)
		return nil
	})
	if err != nil {
		return job, err
	}

	filename := name + ".zip"
	if s.opts.Delivery == config.DeliveryStreaming {
		err = s.advance(ctx, log, job, StateArchiving, ArchiveFailure, func(ctx context.Context) error {
			return resp.Stream(filename, func(w io.Writer) error {
				stats, writeErr := s.packager.Write(ctx, job.Dir, w)
				s.recordArchive(log, stats)
				return writeErr
			})
		})
		if err != nil {
			return job, err
		}
		err = s.advance(ctx, log, job, StateResponding, ArchiveFailure, func(context.Context) error { return nil })
		return job, err
	}

	err = s.advance(ctx, log, job, StateArchiving, ArchiveFailure, func(ctx context.Context) error {
		path, stats, archiveErr := s.packager.WriteFile(ctx, job.Dir, s.opts.WorkDir, name+"-*.zip")
		if archiveErr != nil {
			return archiveErr
		}
		tempArchive = path
		s.recordArchive(log, stats)
		return nil
	})
	if err != nil {
		return job, err
	}

	err = s.advance(ctx, log, job, StateResponding, ArchiveFailure, func(context.Context) error {
		return resp.ServeFile(filename, tempArchive)
	})
	return job, err
}

// advance moves job into state and runs fn there
func (s *Service) advance(ctx context.Context, log *zap.Logger, job *Job, state State, kind Kind, fn func(ctx context.Context) error) error {
	s.enter(log, job, state)
	return s.run(ctx, log, job, state, kind, fn)
}

// run executes fn as the body of the job's current state
func (s *Service) run(ctx context.Context, log *zap.Logger, job *Job, state State, kind Kind, fn func(ctx context.Context) error) error {
	timer := monitoring.NewTimer(s.metrics, string(state))

	err := ctx.Err()
	if err == nil {
		err = s.trace(ctx, job, "mirror."+string(state), fn)
	}
	if err != nil {
		timer.Stop("error")
		var perr *Error
		if errors.As(err, &perr) {
			return perr
		}
		return fail(kind, state, err)
	}

	elapsed := timer.Stop("ok")
	log.Debug("stage completed", zap.String("state", string(state)), zap.Duration("elapsed", elapsed))
	return nil
}

func (s *Service) trace(ctx context.Context, job *Job, name string, fn func(ctx context.Context) error) error {
	if s.tracer == nil {
		return fn(ctx)
	}
	span, ctx := s.tracer.StartSpan(ctx, name)
	span.SetTag("job.id", job.ID.String())
	span.SetTag("job.name", job.Name)

	err := fn(ctx)
	if err != nil {
		span.SetError(err)
	}
	span.Finish()
	s.tracer.Submit(span)
	return err
}

func (s *Service) enter(log *zap.Logger, job *Job, to State) {
	from, err := job.transition(to)
	if err != nil {
		log.Error("unexpected state change", zap.Error(err))
		return
	}
	log.Info("job state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	s.events.publish(job.Snapshot())
}

// finish runs Failed and Cleanup and returns the job to Idle. Directory
// removal only happens when the lock is held.
func (s *Service) finish(log *zap.Logger, job *Job, err error, locked bool) {
	failed := err != nil
	if failed {
		job.setErr(err)
		s.enter(log, job, StateFailed)
		log.Error("download failed", zap.Error(err))
	}

	s.enter(log, job, StateCleanup)
	if locked && (failed || s.opts.Cleanup == config.CleanupRemove) {
		if rmErr := os.RemoveAll(job.Dir); rmErr != nil {
			log.Warn("failed to remove working directory", zap.String("dir", job.Dir), zap.Error(rmErr))
		}
	}
	s.enter(log, job, StateIdle)

	if failed {
		s.recordJob(KindOf(err).String())
		return
	}
	s.recordJob("success")
	log.Info("download completed", zap.Duration("elapsed", time.Since(job.CreatedAt)))
}

func (s *Service) prepare(job *Job) error {
	if err := os.MkdirAll(s.opts.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if err := os.RemoveAll(job.Dir); err != nil {
		return fmt.Errorf("clear %s: %w", job.Dir, err)
	}
	if err := os.Mkdir(job.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", job.Dir, err)
	}
	return nil
}

// copyCompanion places the configured companion file at the mirror root
func (s *Service) copyCompanion(dir string) error {
	if s.opts.CompanionFile == "" {
		return nil
	}

	src, err := os.Open(s.opts.CompanionFile)
	if err != nil {
		return fmt.Errorf("open companion file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(dir, filepath.Base(s.opts.CompanionFile)))
	if err != nil {
		return fmt.Errorf("create companion file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy companion file: %w", err)
	}
	return dst.Close()
}

func (s *Service) recordArchive(log *zap.Logger, stats archive.Stats) {
	if s.metrics != nil {
		s.metrics.RecordArchive(stats.Compressed, stats.Files)
	}
	log.Info("archive built",
		zap.Int("files", stats.Files),
		zap.Int64("bytes", stats.Compressed),
		zap.Int64("uncompressed", stats.Uncompressed),
	)
}

func (s *Service) recordJob(status string) {
	if s.metrics != nil {
		s.metrics.RecordJob(status)
	}
}
