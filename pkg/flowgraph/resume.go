package flowgraph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
)

// Snapshot is the decoded latest checkpoint of a run.
type Snapshot[S any] struct {
	RunID    string
	NodeID   string
	NextNode string
	Sequence int
	State    S
	// Interrupt is set while the run is suspended. Its Payload is the
	// stored json.RawMessage.
	Interrupt *Interrupt
}

// Suspended reports whether the run is waiting at a checkpoint.
func (s *Snapshot[S]) Suspended() bool {
	return s.Interrupt != nil
}

// Done reports whether the run reached END.
func (s *Snapshot[S]) Done() bool {
	return s.Interrupt == nil && s.NextNode == END
}

// LoadSnapshot reads and decodes the latest checkpoint of a run.
// Returns an error wrapping ErrNoCheckpoints when the run is unknown.
func LoadSnapshot[S any](store checkpoint.Store, runID string) (*Snapshot[S], error) {
	cp, err := checkpoint.Latest(store, runID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	if err != nil {
		return nil, err
	}

	if cp.Version != checkpoint.Version {
		return nil, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	snap := &Snapshot[S]{
		RunID:    runID,
		NodeID:   cp.NodeID,
		NextNode: cp.NextNode,
		Sequence: cp.Sequence,
		State:    state,
	}
	if cp.Interrupt != nil {
		snap.Interrupt = &Interrupt{
			Type:    cp.Interrupt.Type,
			Payload: cp.Interrupt.Payload,
			NodeID:  cp.Interrupt.NodeID,
		}
	}
	return snap, nil
}

// Resume continues a run from its latest checkpoint.
//
// If the run is suspended, the checkpoint node that suspended is executed
// again and sees resolution through Context.Resolution. A nil resolution
// fails with ErrResolutionRequired. With WithInterruptType, a pending
// interrupt of any other type fails with *InterruptMismatchError.
//
// If the run is not suspended (for example the process died mid-run),
// execution continues from the checkpoint's next node and resolution must
// be nil.
//
// Example:
//
//	out, err := compiled.Resume(ctx, store, "run-123",
//	    ArcSelection{SelectedArcIDs: []string{"arc-1"}},
//	    flowgraph.WithInterruptType("arc-selection"))
func (cg *CompiledGraph[S, P]) Resume(ctx Context, store checkpoint.Store, runID string, resolution any, opts ...RunOption) (Outcome[S], error) {
	var zero Outcome[S]

	if ctx == nil {
		return zero, ErrNilContext
	}
	if runID == "" {
		return zero, ErrRunIDRequired
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.checkpointStore = store
	cfg.runID = runID

	snap, err := LoadSnapshot[S](store, runID)
	if err != nil {
		return zero, err
	}
	cfg.sequence = snap.Sequence

	var (
		start = snap.NextNode
		input *resumeInput
	)

	if snap.Suspended() {
		if cfg.expectInterrupt != "" && cfg.expectInterrupt != snap.Interrupt.Type {
			return Outcome[S]{State: snap.State, Interrupt: snap.Interrupt},
				&InterruptMismatchError{Expected: cfg.expectInterrupt, Pending: snap.Interrupt.Type}
		}
		if resolution == nil {
			return Outcome[S]{State: snap.State, Interrupt: snap.Interrupt}, ErrResolutionRequired
		}
		start = snap.Interrupt.NodeID
		input = &resumeInput{nodeID: start, value: resolution}
	} else {
		if cfg.expectInterrupt != "" {
			return Outcome[S]{State: snap.State}, &InterruptMismatchError{Expected: cfg.expectInterrupt}
		}
		if resolution != nil {
			return Outcome[S]{State: snap.State}, ErrNoPendingInterrupt
		}
	}

	if start == END {
		return Outcome[S]{State: snap.State}, nil
	}
	if !cg.HasNode(start) {
		return Outcome[S]{State: snap.State}, fmt.Errorf("%w: %s", ErrInvalidResumeNode, start)
	}

	return cg.execute(ctx, snap.State, start, input, &cfg)
}
