package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultImportTimeout bounds a single run.
const DefaultImportTimeout = 10 * time.Minute

// ResultRetention is how long finished background runs stay queryable.
var ResultRetention = 15 * time.Minute

// ImportProgress is a snapshot of a background run.
type ImportProgress struct {
	RunID     string     `json:"runId"`
	Kind      EntityKind `json:"kind"`
	FileName  string     `json:"fileName,omitempty"`
	State     RunState   `json:"state"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Error     string     `json:"error,omitempty"`
}

// Service is the entry point used by the HTTP and CLI front ends. It bounds
// concurrency, applies size and time limits, and tracks background runs.
type Service struct {
	importer *Importer
	limiter  *ImportLimiter
	timeout  time.Duration
	maxSize  int64
	log      *slog.Logger

	mu   sync.RWMutex
	runs map[string]*activeImport
}

type activeImport struct {
	progress ImportProgress
	result   *ImportResult
	err      error
	cancel   context.CancelFunc
	done     chan struct{}

	listenerMu sync.Mutex
	listeners  []chan ImportProgress
}

// ServiceOption configures NewService.
type ServiceOption func(*Service)

// WithImportTimeout bounds every run.
func WithImportTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxFileSize rejects sources larger than n bytes.
func WithMaxFileSize(n int64) ServiceOption {
	return func(s *Service) {
		s.maxSize = n
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

func NewService(importer *Importer, limiter *ImportLimiter, opts ...ServiceOption) *Service {
	if limiter == nil {
		limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}
	s := &Service{
		importer: importer,
		limiter:  limiter,
		timeout:  DefaultImportTimeout,
		log:      slog.Default(),
		runs:     make(map[string]*activeImport),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kinds lists every importable kind.
func (s *Service) Kinds() []KindDefinition {
	return All()
}

// Template returns the CSV template for kind.
func (s *Service) Template(kind EntityKind) ([]byte, error) {
	return Template(kind)
}

// Import runs an import synchronously, waiting for a free slot first.
func (s *Service) Import(ctx context.Context, kind EntityKind, src io.Reader, opts Options, onProgress ProgressFunc) (*ImportResult, error) {
	if _, err := Definition(kind); err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.importer.Import(ctx, kind, s.limit(src), opts, onProgress)
}

// StartImport queues a background run over data and returns its id at once.
// Use SubscribeProgress or Result to follow it.
func (s *Service) StartImport(ctx context.Context, kind EntityKind, fileName string, data []byte, opts Options) (string, error) {
	if _, err := Definition(kind); err != nil {
		return "", err
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), s.maxSize)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	runCtx, cancel := context.WithTimeout(context.Background(), s.timeout)

	run := &activeImport{
		progress: ImportProgress{RunID: opts.RunID, Kind: kind, FileName: fileName, State: StateIdle},
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[opts.RunID] = run
	s.mu.Unlock()

	go s.process(runCtx, run, kind, data, opts)

	return opts.RunID, nil
}

func (s *Service) process(ctx context.Context, run *activeImport, kind EntityKind, data []byte, opts Options) {
	defer s.limiter.Release()
	defer run.cancel()

	result, err := s.importer.Import(ctx, kind, s.limit(bytes.NewReader(data)), opts, func(processed, total int) {
		run.update(func(p *ImportProgress) {
			p.State = StateRunning
			p.Processed = processed
			p.Total = total
		})
	})

	run.result, run.err = result, err
	run.update(func(p *ImportProgress) {
		switch {
		case result != nil:
			p.State = result.State
			p.Total = result.Total
		default:
			p.State = StateFailed
		}
		if err != nil {
			p.Error = FormatUserError(err)
		}
	})
	if err != nil {
		s.log.Warn("background import ended with error", "run_id", opts.RunID, "error", err)
	}

	close(run.done)
	run.closeListeners()
	s.cleanup(opts.RunID, ResultRetention)
}

// SubscribeProgress returns a channel of progress snapshots for a run. The
// channel is closed when the run ends. Slow readers miss intermediate updates.
func (s *Service) SubscribeProgress(runID string) (<-chan ImportProgress, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 16)

	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()
	ch <- run.progress
	select {
	case <-run.done:
		close(ch)
	default:
		run.listeners = append(run.listeners, ch)
	}
	return ch, nil
}

// Progress returns the latest snapshot without blocking.
func (s *Service) Progress(runID string) (ImportProgress, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return ImportProgress{}, err
	}
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()
	return run.progress, nil
}

// Result blocks until the run ends or ctx is done.
func (s *Service) Result(ctx context.Context, runID string) (*ImportResult, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.done:
		return run.result, run.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops a background run before its next row.
func (s *Service) Cancel(runID string) error {
	run, err := s.lookup(runID)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// LimiterStatus reports how many runs are in flight.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until no run holds a slot; used on shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) lookup(runID string) (*activeImport, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}

func (run *activeImport) update(fn func(*ImportProgress)) {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	fn(&run.progress)
	for _, ch := range run.listeners {
		select {
		case ch <- run.progress:
		default:
		}
	}
}

func (run *activeImport) closeListeners() {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
}

// limit caps src at the configured maximum size.
func (s *Service) limit(src io.Reader) io.Reader {
	if s.maxSize <= 0 {
		return src
	}
	return &sizeLimitedReader{r: src, remaining: s.maxSize, limit: s.maxSize}
}

type sizeLimitedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (l *sizeLimitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, l.limit)
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
