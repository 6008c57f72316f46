package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the current checkpoint format version.
// Version 2 added the pending interrupt.
const Version = 2

// Checkpoint is the persisted snapshot of execution state.
// It contains all information needed to resume execution.
type Checkpoint struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	State    json.RawMessage `json:"state"`
	NextNode string          `json:"next_node"`

	PrevNodeID string `json:"prev_node_id,omitempty"`

	// Interrupt is set when the run is suspended at NodeID waiting for
	// external input. NextNode equals NodeID in that case.
	Interrupt *Interrupt `json:"interrupt,omitempty"`
}

// Interrupt is the stored form of a pending checkpoint descriptor.
type Interrupt struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	NodeID  string          `json:"node_id"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Suspended reports whether the checkpoint records a pending interrupt.
func (c *Checkpoint) Suspended() bool {
	return c.Interrupt != nil
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a new checkpoint with the given parameters.
// State must already be JSON-serialized.
func New(runID, nodeID string, sequence int, state []byte, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		NodeID:    nodeID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextNode:  nextNode,
	}
}

// WithPrevNode sets the previous node ID for debugging.
func (c *Checkpoint) WithPrevNode(prevNodeID string) *Checkpoint {
	c.PrevNodeID = prevNodeID
	return c
}

// WithInterrupt marks the checkpoint as suspended.
func (c *Checkpoint) WithInterrupt(in *Interrupt) *Checkpoint {
	c.Interrupt = in
	return c
}

// Latest loads and decodes the most recent checkpoint of a run, with
// Sequence set to the store's sequence for it.
// Returns ErrNotFound if the run has no checkpoints.
func Latest(store Store, runID string) (*Checkpoint, error) {
	infos, err := store.List(runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(infos) == 0 {
		return nil, ErrNotFound
	}

	data, err := store.Load(runID, infos[len(infos)-1].NodeID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	// The store's sequence is what SaveAfter checks against.
	cp.Sequence = infos[len(infos)-1].Sequence
	return cp, nil
}
