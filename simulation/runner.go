package simulation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds the wait for all batches when none is configured.
const DefaultTimeout = 100 * time.Second

// State is a tournament lifecycle stage.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateAwaitingCompletion
	StateAggregating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// TournamentConfig holds the parameters of a single run.
type TournamentConfig struct {
	Participants int           // Players in the circle, ids 0..Participants-1
	Trials       int64         // Requested trials, truncated to a multiple of BatchSize
	BatchSize    int64         // Trials per scheduled batch
	Parallelism  int           // Worker goroutines (0 = runtime.NumCPU())
	Timeout      time.Duration // Bound on awaiting completion (0 = DefaultTimeout)
}

// Result is the validated outcome of a tournament.
type Result struct {
	RunID        string
	Participants int
	Requested    int64
	Trials       int64 // Trials actually executed
	BatchSize    int64
	Batches      int64
	Parallelism  int
	Shards       int
	Tally        Tally
	Elapsed      time.Duration
}

// Probability returns the empirical win probability for participant id.
func (r *Result) Probability(id int) float64 {
	return r.Tally.Probability(id, uint64(r.Trials))
}

// Dropped returns how many requested trials were not run because they did
// not fill a whole batch.
func (r *Result) Dropped() int64 {
	return r.Requested - r.Trials
}

// Tournament runs a fixed number of trial batches on a worker pool and
// aggregates the per-worker shards into a Tally.
type Tournament struct {
	participants int
	trials       int64
	batchSize    int64
	batchCount   int64
	parallelism  int
	timeout      time.Duration

	trial    TrialFunc
	registry *Registry
	logger   *zap.Logger

	state            atomic.Int32
	completedTrials  atomic.Uint64
	completedBatches atomic.Int64

	// OnBatchComplete, if set, is called from worker goroutines after every
	// finished batch. It must be safe for concurrent use.
	OnBatchComplete func(done, total int64)
}

// NewTournament validates cfg and creates a tournament in the created state.
func NewTournament(cfg TournamentConfig, trial TrialFunc, logger *zap.Logger) (*Tournament, error) {
	if trial == nil {
		return nil, errors.New("trial function is required")
	}
	if cfg.Participants < 1 {
		return nil, fmt.Errorf("participants must be at least 1, got %d", cfg.Participants)
	}
	if cfg.Trials < 0 {
		return nil, fmt.Errorf("trials must not be negative, got %d", cfg.Trials)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Parallelism < 0 {
		return nil, fmt.Errorf("parallelism must not be negative, got %d", cfg.Parallelism)
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tournament{
		participants: cfg.Participants,
		trials:       cfg.Trials,
		batchSize:    cfg.BatchSize,
		batchCount:   cfg.Trials / cfg.BatchSize,
		parallelism:  cfg.Parallelism,
		timeout:      cfg.Timeout,
		trial:        trial,
		registry:     &Registry{},
		logger:       logger,
	}, nil
}

// State returns the current lifecycle stage.
func (t *Tournament) State() State {
	return State(t.state.Load())
}

func (t *Tournament) setState(s State) {
	t.state.Store(int32(s))
	t.logger.Debug("tournament state", zap.Stringer("state", s))
}

// Run executes every batch, waits for the pool to drain, folds the shards and
// validates the tally. Any error is fatal for the run and no partial result
// is returned.
func (t *Tournament) Run(ctx context.Context) (*Result, error) {
	if !t.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return nil, ErrAlreadyRun
	}
	t.logger.Debug("tournament state", zap.Stringer("state", StateRunning))

	start := time.Now()
	planned := t.batchCount * t.batchSize
	if dropped := t.trials - planned; dropped > 0 {
		t.logger.Warn("trials not divisible by batch size, remainder dropped",
			zap.Int64("requested", t.trials),
			zap.Int64("batch_size", t.batchSize),
			zap.Int64("dropped", dropped))
	}
	t.logger.Info("starting tournament",
		zap.Int("participants", t.participants),
		zap.String("trials", humanize.Comma(planned)),
		zap.Int64("batches", t.batchCount),
		zap.Int("parallelism", t.parallelism),
		zap.Duration("timeout", t.timeout))

	// Workers get their own context so that an interrupted caller is
	// reported as such rather than as a short tally.
	poolCtx, stopPool := context.WithCancel(context.Background())
	defer stopPool()
	g := t.startPool(poolCtx)

	t.setState(StateAwaitingCompletion)
	if err := t.await(ctx, g, stopPool); err != nil {
		t.setState(StateFailed)
		return nil, err
	}

	t.setState(StateAggregating)
	shards := t.registry.Snapshot()
	tally := Fold(shards)

	executed := t.completedTrials.Load()
	if executed != uint64(planned) {
		t.setState(StateFailed)
		return nil, fmt.Errorf("%w: executed %d of %d planned trials", ErrAggregationMismatch, executed, planned)
	}
	if err := tally.Check(executed); err != nil {
		t.setState(StateFailed)
		return nil, err
	}

	result := &Result{
		RunID:        uuid.NewString(),
		Participants: t.participants,
		Requested:    t.trials,
		Trials:       planned,
		BatchSize:    t.batchSize,
		Batches:      t.batchCount,
		Parallelism:  t.parallelism,
		Shards:       len(shards),
		Tally:        tally,
		Elapsed:      time.Since(start),
	}
	t.setState(StateDone)

	t.logger.Info("tournament complete",
		zap.String("run_id", result.RunID),
		zap.Uint64("total_wins", tally.Total()),
		zap.Int("shards", result.Shards),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

// await blocks until the pool finishes, the timeout fires or ctx is done.
func (t *Tournament) await(ctx context.Context, g *errgroup.Group, stopPool context.CancelFunc) error {
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		stopPool()
		return fmt.Errorf("%w: %d of %d batches finished after %s",
			ErrSchedulingTimeout, t.completedBatches.Load(), t.batchCount, t.timeout)
	case <-ctx.Done():
		stopPool()
		return fmt.Errorf("%w: %w", ErrInterruptedWait, ctx.Err())
	}
}
