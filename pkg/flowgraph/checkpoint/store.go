// Package checkpoint provides durable storage for run snapshots, including
// runs suspended at a checkpoint node waiting for external input.
package checkpoint

import (
	"errors"
	"time"
)

// Store persists checkpoints.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a checkpoint for a run at a specific node.
	// Overwrites if checkpoint for (runID, nodeID) already exists, and the
	// overwritten entry becomes the latest in sequence.
	Save(runID, nodeID string, data []byte) error

	// SaveAfter is Save guarded by the run's latest sequence. It stores
	// the checkpoint only if the highest sequence of the run is still
	// after (0 for a run with no checkpoints) and returns the sequence
	// assigned. Otherwise it stores nothing and returns ErrConflict.
	SaveAfter(runID, nodeID string, after int, data []byte) (int, error)

	// Load retrieves a checkpoint.
	// Returns ErrNotFound if checkpoint doesn't exist.
	Load(runID, nodeID string) ([]byte, error)

	// List returns all checkpoints for a run, ordered by sequence.
	// Returns empty slice (not error) if run has no checkpoints.
	List(runID string) ([]Info, error)

	// Delete removes a specific checkpoint.
	// Returns nil if checkpoint doesn't exist.
	Delete(runID, nodeID string) error

	// DeleteRun removes all checkpoints for a run.
	// Returns nil if run has no checkpoints.
	DeleteRun(runID string) error

	// Runs lists every run that has at least one checkpoint, most
	// recently updated first.
	Runs() ([]RunInfo, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading full state.
type Info struct {
	RunID     string
	NodeID    string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// RunInfo summarizes one run in a store.
type RunInfo struct {
	RunID        string
	LastNodeID   string
	LastSequence int
	UpdatedAt    time.Time
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrConflict indicates another writer advanced the run first.
	ErrConflict = errors.New("checkpoint sequence conflict")
)
