package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/vision-pipeline/internal/annotator"
	"github.com/example/vision-pipeline/internal/logging"
	"github.com/example/vision-pipeline/internal/normalizer"
	"github.com/example/vision-pipeline/internal/storage"
)

const subscriberBuffer = 16

// Outcome labels a finished stage for observers.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeStale   Outcome = "stale"
)

// StageObserver receives timing and transition events. Implementations must not block.
type StageObserver interface {
	ObserveStage(stage Stage, outcome Outcome, elapsed time.Duration)
	ObserveTransition(phase Phase)
}

// NormalizeFunc converts a raw annotation payload into a display-ready result.
type NormalizeFunc func(*annotator.RawResponse) normalizer.Result

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers a stage observer.
func WithObserver(observer StageObserver) Option {
	return func(c *Controller) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithNormalizer replaces normalizer.Normalize.
func WithNormalizer(fn NormalizeFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.normalize = fn
		}
	}
}

// WithClock overrides time.Now for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller owns the state of one pipeline. Upload and analysis run in the background;
// each begins by bumping the generation, and a completion whose generation is no longer
// current is dropped without touching state.
type Controller struct {
	uploader  storage.Uploader
	client    annotator.Client
	normalize NormalizeFunc
	observer  StageObserver
	logger    *zap.Logger
	now       func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc

	mu          sync.Mutex
	idle        *sync.Cond
	inflight    int
	state       State
	generation  uint64
	cancelOp    context.CancelFunc
	subscribers map[int]chan State
	nextSubID   int
	closed      bool
}

// NewController returns an idle controller.
func NewController(uploader storage.Uploader, client annotator.Client, logger *zap.Logger, opts ...Option) *Controller {
	ctx, stop := context.WithCancel(context.Background())
	c := &Controller{
		uploader:    uploader,
		client:      client,
		normalize:   normalizer.Normalize,
		observer:    noopObserver{},
		logger:      logger.Named("pipeline"),
		now:         time.Now,
		baseCtx:     ctx,
		stop:        stop,
		subscribers: make(map[int]chan State),
	}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	c.state = State{Phase: PhaseIdle, UpdatedAt: c.now().UTC()}
	return c
}

// CurrentState returns the latest state snapshot.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BeginUpload abandons any previous run and uploads image. The state moves to Uploading
// before BeginUpload returns.
func (c *Controller) BeginUpload(image storage.ImageHandle) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gen, ctx := c.nextOperationLocked()
	runID := uuid.NewString()
	c.setLocked(State{Phase: PhaseUploading, RunID: runID, Generation: gen})
	c.inflight++
	c.mu.Unlock()

	go c.runUpload(ctx, gen, runID, image)
	return nil
}

// BeginAnalysis annotates the current upload. It is only allowed from Uploaded or
// Annotated; from any other phase it returns ErrOutOfOrder and leaves state untouched.
func (c *Controller) BeginAnalysis() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	current := c.state
	if !current.CanAnalyze() {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot analyze while %s", ErrOutOfOrder, current.Phase)
	}
	gen, ctx := c.nextOperationLocked()
	upload := *current.Upload
	c.setLocked(State{Phase: PhaseAnalyzing, RunID: current.RunID, Generation: gen, Upload: &upload})
	c.inflight++
	c.mu.Unlock()

	go c.runAnalysis(ctx, gen, current.RunID, upload)
	return nil
}

// Subscribe returns a channel that receives the current state and then every transition.
// A slow subscriber loses intermediate states but always sees the latest one. The cancel
// func closes the channel.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	ch <- c.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// Wait blocks until no operation is in flight, including superseded ones that have not
// returned yet. Operations begun while Wait blocks are waited for too.
func (c *Controller) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 {
		c.idle.Wait()
	}
}

// Close cancels in-flight work, waits for it, and closes all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	// completions still in flight become stale and leave state as it is
	c.generation++
	c.mu.Unlock()

	c.stop()
	c.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

func (c *Controller) runUpload(ctx context.Context, gen uint64, runID string, image storage.ImageHandle) {
	opLogger := logging.WithOperation(c.logger, "pipeline.upload", runID)

	start := c.now()
	result, err := c.uploader.Upload(ctx, image)
	elapsed := c.now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finishLocked()
	if gen != c.generation {
		c.observer.ObserveStage(StageUpload, OutcomeStale, elapsed)
		opLogger.Debug("dropping superseded upload completion", zap.Uint64("generation", gen))
		return
	}
	c.releaseOpLocked()

	if err != nil {
		wrapped := logging.NewOperationError("pipeline.upload", runID, err)
		c.observer.ObserveStage(StageUpload, OutcomeFailure, elapsed)
		opLogger.Warn("upload failed", zap.Error(wrapped), zap.Duration("elapsed", elapsed))
		c.setLocked(State{
			Phase:      PhaseFailed,
			RunID:      runID,
			Generation: gen,
			Failure:    &Failure{Stage: StageUpload, Reason: err.Error()},
		})
		return
	}

	c.observer.ObserveStage(StageUpload, OutcomeSuccess, elapsed)
	opLogger.Info("upload complete", zap.String("url", result.URL), zap.Duration("elapsed", elapsed))
	c.setLocked(State{Phase: PhaseUploaded, RunID: runID, Generation: gen, Upload: &result})
}

func (c *Controller) runAnalysis(ctx context.Context, gen uint64, runID string, upload storage.UploadResult) {
	opLogger := logging.WithOperation(c.logger, "pipeline.analysis", runID)

	start := c.now()
	result, err := c.analyze(ctx, upload)
	elapsed := c.now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.finishLocked()
	if gen != c.generation {
		c.observer.ObserveStage(StageAnalysis, OutcomeStale, elapsed)
		opLogger.Debug("dropping superseded analysis completion", zap.Uint64("generation", gen))
		return
	}
	c.releaseOpLocked()

	if err != nil {
		wrapped := logging.NewOperationError("pipeline.analysis", runID, err)
		c.observer.ObserveStage(StageAnalysis, OutcomeFailure, elapsed)
		opLogger.Warn("analysis failed", zap.Error(wrapped), zap.Duration("elapsed", elapsed))
		c.setLocked(State{
			Phase:      PhaseFailed,
			RunID:      runID,
			Generation: gen,
			Failure:    &Failure{Stage: StageAnalysis, Reason: err.Error()},
		})
		return
	}

	c.observer.ObserveStage(StageAnalysis, OutcomeSuccess, elapsed)
	opLogger.Info("analysis complete",
		zap.Int("labels", len(result.Labels)),
		zap.Int("landmarks", len(result.Landmarks)),
		zap.Duration("elapsed", elapsed),
	)
	c.setLocked(State{Phase: PhaseAnnotated, RunID: runID, Generation: gen, Upload: &upload, Result: &result})
}

func (c *Controller) analyze(ctx context.Context, upload storage.UploadResult) (result normalizer.Result, err error) {
	raw, err := c.client.Annotate(ctx, annotator.NewRequest(upload.URL))
	if err != nil {
		return normalizer.Result{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalize response: %v", r)
		}
	}()
	return c.normalize(raw), nil
}

// nextOperationLocked supersedes whatever is in flight and returns the new generation with
// a context for the operation about to start.
func (c *Controller) nextOperationLocked() (uint64, context.Context) {
	if c.cancelOp != nil {
		c.cancelOp()
	}
	c.generation++
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancelOp = cancel
	return c.generation, ctx
}

func (c *Controller) finishLocked() {
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
}

func (c *Controller) releaseOpLocked() {
	if c.cancelOp != nil {
		c.cancelOp()
		c.cancelOp = nil
	}
}

func (c *Controller) setLocked(next State) {
	next.UpdatedAt = c.now().UTC()
	c.state = next
	c.observer.ObserveTransition(next.Phase)
	for _, ch := range c.subscribers {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- next:
			default:
			}
		}
	}
}

type noopObserver struct{}

func (noopObserver) ObserveStage(Stage, Outcome, time.Duration) {}
func (noopObserver) ObserveTransition(Phase) {}
