// Package report renders tournament results for the console and as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/archery-sim/simulation"
)

// FormatVersion is the current result file format version.
const FormatVersion = "1.0"

// Print writes the consistency line, one probability per participant in
// ascending id order, the shard count and the elapsed time.
func Print(w io.Writer, r *simulation.Result) error {
	lines := []string{"Total wins is equal to number of matches"}
	if dropped := r.Dropped(); dropped > 0 {
		lines = append(lines, fmt.Sprintf("Dropped %d trials that did not fill a batch", dropped))
	}
	for id := 0; id < r.Participants; id++ {
		lines = append(lines, fmt.Sprintf("P(%d): %.10f", id, r.Probability(id)))
	}
	lines = append(lines,
		fmt.Sprintf("Used %d shards", r.Shards),
		fmt.Sprintf("Took: %s", FormatDuration(r.Elapsed)),
	)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// PlayerOutput is the per-participant part of the result file
type PlayerOutput struct {
	ID          int     `json:"id"`
	Wins        uint64  `json:"wins"`
	Probability float64 `json:"probability"`
}

// Output is the JSON structure for a saved result
type Output struct {
	RunID        string         `json:"run_id"`
	Variant      string         `json:"variant"`
	Participants int            `json:"participants"`
	Requested    int64          `json:"requested_trials"`
	Trials       int64          `json:"trials"`
	BatchSize    int64          `json:"batch_size"`
	Batches      int64          `json:"batches"`
	Parallelism  int            `json:"parallelism"`
	Shards       int            `json:"shards"`
	ElapsedMs    int64          `json:"elapsed_ms"`
	Players      []PlayerOutput `json:"players"`

	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// NewOutput builds the serializable form of r.
func NewOutput(r *simulation.Result, variant string) Output {
	players := make([]PlayerOutput, r.Participants)
	for id := range players {
		players[id] = PlayerOutput{
			ID:          id,
			Wins:        r.Tally.Count(id),
			Probability: r.Probability(id),
		}
	}

	return Output{
		RunID:        r.RunID,
		Variant:      variant,
		Participants: r.Participants,
		Requested:    r.Requested,
		Trials:       r.Trials,
		BatchSize:    r.BatchSize,
		Batches:      r.Batches,
		Parallelism:  r.Parallelism,
		Shards:       r.Shards,
		ElapsedMs:    r.Elapsed.Milliseconds(),
		Players:      players,
		Timestamp:    time.Now(),
		Version:      FormatVersion,
	}
}

// WriteJSON saves the result to path, replacing any existing file only once
// the new one is fully written.
func WriteJSON(path string, r *simulation.Result, variant string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(NewOutput(r, variant), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	// Write to temp file first, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize result: %w", err)
	}

	return nil
}

// ReadJSON loads a result file written by WriteJSON.
func ReadJSON(path string) (*Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}

	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &out, nil
}

// FormatDuration renders d with millisecond precision under a minute and
// in coarser units above.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
