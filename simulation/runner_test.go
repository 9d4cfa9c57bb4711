package simulation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// coinFlip is a symmetric two player trial
func coinFlip(rng Source) int {
	if rng.Float64() < 0.5 {
		return 0
	}
	return 1
}

// uniformWinner picks any of n participants with equal odds
func uniformWinner(n int) TrialFunc {
	return func(rng Source) int {
		return int(rng.Float64() * float64(n))
	}
}

func newTestTournament(t *testing.T, cfg TournamentConfig, trial TrialFunc) *Tournament {
	t.Helper()
	tour, err := NewTournament(cfg, trial, zaptest.NewLogger(t))
	require.NoError(t, err)
	return tour
}

func TestTournament_TotalWinsEqualExecutedTrials(t *testing.T) {
	tests := []struct {
		name string
		cfg  TournamentConfig
		want int64
	}{
		{"single participant", TournamentConfig{Participants: 1, Trials: 5000, BatchSize: 100, Parallelism: 4}, 5000},
		{"two participants", TournamentConfig{Participants: 2, Trials: 20000, BatchSize: 1000, Parallelism: 3}, 20000},
		{"batch of one", TournamentConfig{Participants: 7, Trials: 500, BatchSize: 1, Parallelism: 8}, 500},
		{"one worker", TournamentConfig{Participants: 4, Trials: 4000, BatchSize: 250, Parallelism: 1}, 4000},
		{"more workers than batches", TournamentConfig{Participants: 3, Trials: 300, BatchSize: 100, Parallelism: 16}, 300},
		{"remainder dropped", TournamentConfig{Participants: 3, Trials: 10, BatchSize: 3, Parallelism: 2}, 9},
		{"fewer trials than a batch", TournamentConfig{Participants: 3, Trials: 99, BatchSize: 100, Parallelism: 2}, 0},
		{"no trials", TournamentConfig{Participants: 2, Trials: 0, BatchSize: 10, Parallelism: 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tour := newTestTournament(t, tt.cfg, uniformWinner(tt.cfg.Participants))

			result, err := tour.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.want, result.Trials)
			assert.Equal(t, uint64(tt.want), result.Tally.Total())
			assert.Equal(t, tt.cfg.Trials-tt.want, result.Dropped())
			assert.Equal(t, tt.cfg.Trials/tt.cfg.BatchSize, result.Batches)
			assert.LessOrEqual(t, result.Shards, tt.cfg.Parallelism)
			for _, id := range result.Tally.IDs() {
				assert.GreaterOrEqual(t, id, 0)
				assert.Less(t, id, tt.cfg.Participants)
			}
			assert.Equal(t, StateDone, tour.State())
		})
	}
}

func TestTournament_SingleParticipantAlwaysWins(t *testing.T) {
	trial := func(rng Source) int { return 0 }
	tour := newTestTournament(t, TournamentConfig{Participants: 1, Trials: 10000, BatchSize: 500, Parallelism: 4}, trial)

	result, err := tour.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(10000), result.Tally.Count(0))
	assert.Equal(t, 1.0, result.Probability(0))
}

func TestTournament_TruncatesToWholeBatches(t *testing.T) {
	tour := newTestTournament(t, TournamentConfig{Participants: 2, Trials: 10, BatchSize: 3, Parallelism: 2}, coinFlip)

	result, err := tour.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), result.Requested)
	assert.Equal(t, int64(9), result.Trials)
	assert.Equal(t, int64(1), result.Dropped())
	assert.Equal(t, uint64(9), result.Tally.Total())

	// probabilities are relative to executed trials
	assert.InDelta(t, 1.0, result.Probability(0)+result.Probability(1), 1e-12)
}

func TestTournament_SymmetricTrialConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping convergence test in short mode")
	}

	tour := newTestTournament(t, TournamentConfig{Participants: 2, Trials: 10_000_000, BatchSize: 100_000, Parallelism: 8}, coinFlip)

	result, err := tour.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.Probability(0), 0.01)
	assert.InDelta(t, 0.5, result.Probability(1), 0.01)
	t.Logf("P(0)=%.6f P(1)=%.6f shards=%d elapsed=%v",
		result.Probability(0), result.Probability(1), result.Shards, result.Elapsed)
}

func TestTournament_RepeatedRunsEachConsistent(t *testing.T) {
	cfg := TournamentConfig{Participants: 4, Trials: 50000, BatchSize: 500, Parallelism: 4}

	var runIDs []string
	for i := 0; i < 2; i++ {
		tour := newTestTournament(t, cfg, uniformWinner(4))
		result, err := tour.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(50000), result.Tally.Total())
		runIDs = append(runIDs, result.RunID)
	}

	assert.NotEqual(t, runIDs[0], runIDs[1])
}

func TestTournament_RunOnlyOnce(t *testing.T) {
	tour := newTestTournament(t, TournamentConfig{Participants: 2, Trials: 10, BatchSize: 5, Parallelism: 1}, coinFlip)

	_, err := tour.Run(context.Background())
	require.NoError(t, err)

	_, err = tour.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestTournament_SchedulingTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	blocked := func(rng Source) int {
		<-release
		return 0
	}

	tour := newTestTournament(t, TournamentConfig{
		Participants: 1,
		Trials:       8,
		BatchSize:    1,
		Parallelism:  2,
		Timeout:      50 * time.Millisecond,
	}, blocked)

	result, err := tour.Run(context.Background())
	require.ErrorIs(t, err, ErrSchedulingTimeout)
	assert.Nil(t, result)
	assert.Equal(t, StateFailed, tour.State())
}

func TestTournament_InterruptedWait(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	blocked := func(rng Source) int {
		<-release
		return 0
	}

	tour := newTestTournament(t, TournamentConfig{Participants: 1, Trials: 4, BatchSize: 1, Parallelism: 1}, blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := tour.Run(ctx)
	require.ErrorIs(t, err, ErrInterruptedWait)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Equal(t, StateFailed, tour.State())
}

func TestTournament_InvalidWinner(t *testing.T) {
	outOfRange := func(rng Source) int { return 3 }
	tour := newTestTournament(t, TournamentConfig{Participants: 3, Trials: 100, BatchSize: 10, Parallelism: 2}, outOfRange)

	_, err := tour.Run(context.Background())
	require.ErrorIs(t, err, ErrInvalidWinner)
	assert.Equal(t, StateFailed, tour.State())
}

func TestTournament_ReportsBatchProgress(t *testing.T) {
	tour := newTestTournament(t, TournamentConfig{Participants: 2, Trials: 1000, BatchSize: 10, Parallelism: 4}, coinFlip)

	var calls, maxDone atomic.Int64
	tour.OnBatchComplete = func(done, total int64) {
		calls.Add(1)
		assert.Equal(t, int64(100), total)
		for {
			cur := maxDone.Load()
			if done <= cur || maxDone.CompareAndSwap(cur, done) {
				break
			}
		}
	}

	_, err := tour.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), calls.Load())
	assert.Equal(t, int64(100), maxDone.Load())
}

func TestNewTournament_Validation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   TournamentConfig
		trial TrialFunc
	}{
		{"nil trial", TournamentConfig{Participants: 2, Trials: 10, BatchSize: 1, Parallelism: 1}, nil},
		{"no participants", TournamentConfig{Participants: 0, Trials: 10, BatchSize: 1, Parallelism: 1}, coinFlip},
		{"negative trials", TournamentConfig{Participants: 2, Trials: -1, BatchSize: 1, Parallelism: 1}, coinFlip},
		{"zero batch size", TournamentConfig{Participants: 2, Trials: 10, BatchSize: 0, Parallelism: 1}, coinFlip},
		{"negative parallelism", TournamentConfig{Participants: 2, Trials: 10, BatchSize: 1, Parallelism: -2}, coinFlip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTournament(tt.cfg, tt.trial, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewTournament_Defaults(t *testing.T) {
	tour, err := NewTournament(TournamentConfig{Participants: 2, Trials: 10, BatchSize: 1}, coinFlip, nil)
	require.NoError(t, err)

	assert.Positive(t, tour.parallelism)
	assert.Equal(t, DefaultTimeout, tour.timeout)
	assert.Equal(t, StateCreated, tour.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_completion", StateAwaitingCompletion.String())
	assert.Equal(t, "state(42)", State(42).String())
}
