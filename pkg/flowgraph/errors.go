// Package flowgraph provides a graph-based workflow engine with durable
// checkpoint interrupts.
package flowgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPathToEnd indicates no path exists from the entry point to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")

	// ErrNoOutgoingEdge indicates a node has neither a simple nor a conditional edge.
	ErrNoOutgoingEdge = errors.New("node has no outgoing edge")

	// ErrAmbiguousEdges indicates a node has more than one simple edge.
	// Execution is sequential, so a node must have exactly one successor.
	ErrAmbiguousEdges = errors.New("node has multiple simple edges")
)

// Sentinel errors for execution.
var (
	// ErrRecursionLimit indicates the execution loop exceeded the configured limit.
	ErrRecursionLimit = errors.New("recursion limit reached")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRouterResult indicates a router function returned an empty string.
	ErrInvalidRouterResult = errors.New("router returned empty string")

	// ErrRouterTargetNotFound indicates a router function returned an unknown node ID.
	ErrRouterTargetNotFound = errors.New("router returned unknown node")

	// ErrUnexpectedInterrupt indicates a node that was not added with
	// AddCheckpoint tried to suspend.
	ErrUnexpectedInterrupt = errors.New("node is not a checkpoint node")

	// ErrInterruptWithoutStore indicates a checkpoint node suspended while
	// the graph was running without a checkpoint store.
	ErrInterruptWithoutStore = errors.New("interrupt requires a checkpoint store")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrRunIDRequired indicates checkpointing was enabled without a run ID.
	ErrRunIDRequired = errors.New("run ID required for checkpointing")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrNoCheckpoints indicates no checkpoints exist for the run.
	ErrNoCheckpoints = errors.New("no checkpoints found for run")

	// ErrInvalidResumeNode indicates the resume node doesn't exist in the graph.
	ErrInvalidResumeNode = errors.New("invalid resume node")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")

	// ErrRunSuspended indicates Run was called for a run that is waiting
	// at a checkpoint. Use Resume instead.
	ErrRunSuspended = errors.New("run is suspended at a checkpoint")

	// ErrNoPendingInterrupt indicates a resolution was supplied but the run
	// is not suspended.
	ErrNoPendingInterrupt = errors.New("run has no pending checkpoint")

	// ErrResolutionRequired indicates Resume was called for a suspended run
	// without a resolution value.
	ErrResolutionRequired = errors.New("resolution required to resume checkpoint")
)

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// NodeID is the node where checkpointing failed.
	NodeID string
	// Op is the operation that failed ("save", "load", "serialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError captures the state when execution was cancelled.
type CancellationError struct {
	// NodeID is the node that was about to execute.
	NodeID string
	// State is the state at cancellation (can type-assert to the actual type).
	State any
	// Cause is the underlying cancellation cause.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouterError wraps errors from conditional edge routing.
type RouterError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Returned is the value the router returned.
	Returned string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// RecursionLimitError reports that a run executed more nodes than allowed.
// It includes the state at termination for inspection.
type RecursionLimitError struct {
	// Limit is the configured recursion limit.
	Limit int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
	// State is the state at termination (can type-assert to the actual type).
	State any
}

// Error implements the error interface.
func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("recursion limit (%d) reached at node %s", e.Limit, e.LastNodeID)
}

// Unwrap returns ErrRecursionLimit for errors.Is support.
func (e *RecursionLimitError) Unwrap() error {
	return ErrRecursionLimit
}

// InterruptMismatchError reports a resume attempt for a checkpoint type
// other than the one the run is waiting on.
type InterruptMismatchError struct {
	// Expected is the type the caller tried to resolve.
	Expected string
	// Pending is the type of the pending interrupt, empty if none.
	Pending string
}

// Error implements the error interface.
func (e *InterruptMismatchError) Error() string {
	if e.Pending == "" {
		return fmt.Sprintf("cannot resolve %q: no checkpoint pending", e.Expected)
	}
	return fmt.Sprintf("cannot resolve %q: run is waiting on %q", e.Expected, e.Pending)
}

// Unwrap returns ErrNoPendingInterrupt when nothing is pending.
func (e *InterruptMismatchError) Unwrap() error {
	if e.Pending == "" {
		return ErrNoPendingInterrupt
	}
	return nil
}
