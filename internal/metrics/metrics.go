package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/scheduler"
	"github.com/alvmarrod/proxy-harvest/internal/storage"
)

// Tracker holds and manages run metrics. It receives scheduler events.
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int
}

var _ scheduler.Observer = (*Tracker)(nil)

// NewTracker creates a new metrics tracker
func NewTracker(runID string, itemCount int) *Tracker {
	return &Tracker{
		data: storage.Metrics{
			RunID:     runID,
			StartTime: time.Now(),
			ItemCount: itemCount,
		},
	}
}

// AttemptFinished records one fetch attempt and its duration
func (t *Tracker) AttemptFinished(d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Attempts++
	if err != nil {
		t.data.FailedAttempts++
	}
	t.totalFetchTimeMs += d.Milliseconds()
	t.fetchCount++
}

// ItemFinished records an item's final outcome
func (t *Tracker) ItemFinished(succeeded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if succeeded {
		t.data.ItemsSucceeded++
	} else {
		t.data.ItemsExhausted++
	}
}

// Paused records a governor pause
func (t *Tracker) Paused(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch reason {
	case scheduler.ReasonCooldown:
		t.data.Cooldowns++
	case scheduler.ReasonEmptyPool:
		t.data.EmptyPoolPauses++
	}
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs

	// Calculate average fetch time
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Finalize metrics
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalFetchTimeMs = t.totalFetchTimeMs

	if t.fetchCount > 0 {
		t.data.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	done := t.data.ItemsSucceeded + t.data.ItemsExhausted
	return fmt.Sprintf("Items: %d/%d done (%d fetched, %d missing) | Attempts: %d (%d failed) | Pauses: %d cooldown, %d empty pool",
		done,
		t.data.ItemCount,
		t.data.ItemsSucceeded,
		t.data.ItemsExhausted,
		t.data.Attempts,
		t.data.FailedAttempts,
		t.data.Cooldowns,
		t.data.EmptyPoolPauses,
	)
}
