package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/domain/events"
	"github.com/yungbote/exampaper-backend/internal/extraction"
	"github.com/yungbote/exampaper-backend/internal/indexing"
	"github.com/yungbote/exampaper-backend/internal/jobs/queue"
	"github.com/yungbote/exampaper-backend/internal/modules/generation"
	"github.com/yungbote/exampaper-backend/internal/modules/ingestion"
	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
	"github.com/yungbote/exampaper-backend/internal/questiongen"
)

const (
	StageExtraction = "extraction"
	StageIndexing   = "indexing"
	StageGeneration = "generation"
)

type Config struct {
	Concurrency       int
	ExtractionTimeout time.Duration
	IndexingTimeout   time.Duration
	GenerationTimeout time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	// StaleAfter is how long a record may sit in processing before a sweep
	// reclaims it. It is raised above the longest stage timeout.
	StaleAfter    time.Duration
	SweepInterval time.Duration
	SweepBatch    int
	// AutoAdvance lets sweeps start extraction of pending documents and
	// indexing of extracted ones, and chains indexing after extraction.
	AutoAdvance bool
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = 5 * time.Minute
	}
	if c.IndexingTimeout <= 0 {
		c.IndexingTimeout = 10 * time.Minute
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 10 * time.Minute
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	longest := c.ExtractionTimeout
	for _, d := range []time.Duration{c.IndexingTimeout, c.GenerationTimeout} {
		if d > longest {
			longest = d
		}
	}
	if c.StaleAfter <= longest {
		c.StaleAfter = longest + time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 50
	}
	return c
}

// Notifier receives every persisted transition. Failures are logged only.
type Notifier interface {
	Publish(ctx context.Context, ev events.StatusEvent) error
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, events.StatusEvent) error { return nil }

type Deps struct {
	Log            *logger.Logger
	Ingestion      *ingestion.Coordinator
	Generation     *generation.Coordinator
	Documents      repos.DocumentRepo
	IndexJobs      repos.IndexJobRepo
	GenerationJobs repos.GenerationJobRepo
	Extractor      extraction.Extractor
	Indexer        indexing.Indexer
	Engine         questiongen.Engine
	Queue          *queue.Queue
	Notifier       Notifier
	Now            func() time.Time
}

// Supervisor is the only holder of the extraction, indexing and generation
// collaborators. It drains the task queue through a bounded pool and sweeps
// the store for work the queue never delivered.
type Supervisor struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
	sem  *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(deps Deps, cfg Config) (*Supervisor, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Ingestion == nil || deps.Generation == nil {
		return nil, fmt.Errorf("coordinators required")
	}
	if deps.Extractor == nil || deps.Indexer == nil || deps.Engine == nil {
		return nil, fmt.Errorf("extractor, indexer and engine are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	cfg = cfg.withDefaults()
	return &Supervisor{
		deps:     deps,
		cfg:      cfg,
		log:      deps.Log.With("component", "PipelineSupervisor"),
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		inflight: map[string]struct{}{},
	}, nil
}

func (s *Supervisor) Config() Config { return s.cfg }

// Run dispatches queued tasks and sweeps the store until ctx ends. The first
// sweep runs immediately and reconciles records a previous process left behind.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.deps.Queue == nil {
		return fmt.Errorf("task queue required")
	}
	s.log.Info("Starting pipeline supervisor",
		"concurrency", s.cfg.Concurrency,
		"max_attempts", s.cfg.MaxAttempts,
		"stale_after", s.cfg.StaleAfter.String(),
		"auto_advance", s.cfg.AutoAdvance,
	)
	g, gctx := errgroup.WithContext(ctx)
	var wg sync.WaitGroup
	g.Go(func() error {
		defer wg.Wait()
		return s.dispatch(gctx, &wg)
	})
	g.Go(func() error {
		s.sweepLoop(gctx)
		return nil
	})
	err := g.Wait()
	s.log.Info("Pipeline supervisor stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Supervisor) dispatch(ctx context.Context, wg *sync.WaitGroup) error {
	tasks := s.deps.Queue.Tasks()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-tasks:
			observability.Current().SetQueueDepth(s.deps.Queue.Len())
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.sem.Release(1)
				if err := s.Process(ctx, t); err != nil {
					s.log.Debug("Task skipped", "kind", t.Kind, "id", t.ID, "error", err)
				}
			}()
		}
	}
}

// Process runs one task to a persisted outcome. Stage failures are recorded
// on the job and reported as nil; the returned error is only for tasks that
// could not start, e.g. a lost CAS or an unknown id.
func (s *Supervisor) Process(ctx context.Context, t queue.Task) (err error) {
	key := string(t.Kind) + ":" + t.ID.String()
	if !s.claim(key) {
		return apierr.AlreadyInProgress("%s is already running in this process", key)
	}
	defer s.release(key)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Supervisor task panic", "kind", t.Kind, "id", t.ID, "panic", r)
			err = &panicError{Val: r}
		}
	}()

	switch t.Kind {
	case queue.KindExtract:
		return s.extract(ctx, t)
	case queue.KindIndex:
		return s.index(ctx, t)
	case queue.KindGenerate:
		return s.generate(ctx, t)
	default:
		return apierr.InvalidInput("unknown task kind %q", t.Kind)
	}
}

func (s *Supervisor) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[key]; ok {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Supervisor) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// publish runs after the transition is persisted and never fails the task.
func (s *Supervisor) publish(ctx context.Context, subject events.Subject, id uuid.UUID, t queue.Task, status, reason string) {
	ev := events.StatusEvent{
		Subject: subject,
		ID:      id,
		Status:  status,
		Error:   reason,
		TraceID: t.TraceID,
		At:      s.deps.Now(),
	}
	if err := s.deps.Notifier.Publish(ctx, ev); err != nil {
		s.log.Warn("Status publish failed", "subject", subject, "id", id, "error", err)
	}
}
