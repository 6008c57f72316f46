package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/casefile/pkg/curator"
	"github.com/randalmurphal/casefile/pkg/evaluator"
	"github.com/randalmurphal/casefile/pkg/flowgraph"
	"github.com/randalmurphal/casefile/pkg/flowgraph/checkpoint"
)

// Service errors.
var (
	ErrUnknownRun  = errors.New("unknown run")
	ErrNotComplete = errors.New("run is not complete")
)

// ValidationError reports a request the service refuses before running
// anything.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// RunFailedError is returned when a run fails for a reason the caller
// cannot fix. Its message carries only the run id; the cause is logged.
type RunFailedError struct {
	RunID string
	Err   error
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("workflow failed; check logs (run %s)", e.RunID)
}

func (e *RunFailedError) Unwrap() error {
	return e.Err
}

// IsRequestError reports whether err was caused by the request and
// leaves the run unchanged.
func IsRequestError(err error) bool {
	var (
		ve *ValidationError
		re *ResolutionError
		me *flowgraph.InterruptMismatchError
	)
	return errors.As(err, &ve) ||
		errors.As(err, &re) ||
		errors.As(err, &me) ||
		errors.Is(err, flowgraph.ErrResolutionRequired) ||
		errors.Is(err, flowgraph.ErrNoPendingInterrupt) ||
		errors.Is(err, flowgraph.ErrRunSuspended) ||
		errors.Is(err, checkpoint.ErrConflict)
}

// StartRequest starts a run. Bundle, Arcs, Outline and Article may be
// supplied to skip their generation steps.
type StartRequest struct {
	RunID     string         `json:"runId,omitempty"`
	Theme     string         `json:"theme"`
	Roster    []string       `json:"roster"`
	Focus     string         `json:"focus,omitempty"`
	Evidence  []curator.Item `json:"evidence"`
	Approvals Approvals      `json:"approvals"`

	Bundle         *curator.Bundle `json:"bundle,omitempty"`
	Arcs           []Arc           `json:"arcs,omitempty"`
	SelectedArcIDs []string        `json:"selectedArcIds,omitempty"`
	Outline        *Outline        `json:"outline,omitempty"`
	Article        *Article        `json:"article,omitempty"`
}

// ResumeRequest resolves the pending checkpoint of a run.
type ResumeRequest struct {
	CheckpointType string          `json:"checkpointType"`
	Resolution     json.RawMessage `json:"resolution"`
}

// CheckpointView describes a pending checkpoint to a caller.
type CheckpointView struct {
	Type    string          `json:"type"`
	Node    string          `json:"node"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is returned by Start, Resume and Continue.
type Response struct {
	RunID      string          `json:"runId"`
	Phase      Phase           `json:"phase,omitempty"`
	Checkpoint *CheckpointView `json:"checkpoint,omitempty"`
	Errors     []ErrorRecord   `json:"errors,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Status is a run as read from its latest checkpoint.
type Status struct {
	RunID       string                  `json:"runId"`
	Theme       string                  `json:"theme"`
	Phase       Phase                   `json:"phase"`
	Checkpoint  *CheckpointView         `json:"checkpoint,omitempty"`
	Revisions   map[evaluator.Phase]int `json:"revisions"`
	Errors      []ErrorRecord           `json:"errors,omitempty"`
	Evaluations int                     `json:"evaluations"`
	LastNode    string                  `json:"lastNode"`
	NextNode    string                  `json:"nextNode,omitempty"`
	Done        bool                    `json:"done"`
	UpdatedAt   time.Time               `json:"updatedAt,omitzero"`
}

// ServiceOptions configure run execution.
type ServiceOptions struct {
	RecursionLimit int
	Metrics        bool
	Tracing        bool
	Logger         *slog.Logger
}

// Service starts, resumes and reports on runs.
type Service struct {
	graph  *flowgraph.CompiledGraph[State, Patch]
	store  checkpoint.Store
	themes *Catalog
	opts   ServiceOptions
	logger *slog.Logger

	// locks holds one single-slot channel per run id. Start, Resume and
	// Continue of the same run take turns on it.
	locks sync.Map
}

// NewService compiles the workflow graph and binds it to store.
func NewService(deps Deps, store checkpoint.Store, opts ServiceOptions) (*Service, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = opts.Logger
	}
	g, err := NewGraph(deps)
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}
	return &Service{graph: g, store: store, themes: deps.Themes, opts: opts, logger: opts.Logger}, nil
}

// Themes returns the service's theme catalog.
func (s *Service) Themes() *Catalog {
	return s.themes
}

// NewState validates req and builds the initial run state.
func (s *Service) NewState(req StartRequest) (State, error) {
	if req.Theme == "" {
		return State{}, invalidf("theme is required")
	}
	if _, err := s.themes.Get(req.Theme); err != nil {
		return State{}, invalidf("%v", err)
	}
	seen := make(map[string]bool, len(req.Evidence))
	for i, it := range req.Evidence {
		if it.ID == "" {
			return State{}, invalidf("evidence[%d] has no id", i)
		}
		if seen[it.ID] {
			return State{}, invalidf("duplicate evidence id %q", it.ID)
		}
		if it.Disposition == curator.DispositionDisclosed && strings.TrimSpace(it.Content) == "" {
			return State{}, invalidf("evidence %q is disclosed but has no content", it.ID)
		}
		seen[it.ID] = true
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return State{
		RunID:          runID,
		Theme:          req.Theme,
		Phase:          PhaseInit,
		Roster:         slices.Clone(req.Roster),
		Focus:          req.Focus,
		Evidence:       slices.Clone(req.Evidence),
		Bundle:         req.Bundle,
		Arcs:           slices.Clone(req.Arcs),
		SelectedArcIDs: slices.Clone(req.SelectedArcIDs),
		Outline:        req.Outline,
		Article:        req.Article,
		Revisions:      make(map[evaluator.Phase]int),
		Approvals:      req.Approvals,
	}, nil
}

// lock waits for exclusive use of runID within this process and returns
// the release func. Processes sharing a store are kept apart by the
// store's sequence check instead.
func (s *Service) lock(ctx context.Context, runID string) (func(), error) {
	v, _ := s.locks.LoadOrStore(runID, make(chan struct{}, 1))
	slot := v.(chan struct{})
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) context(ctx context.Context, runID string) flowgraph.Context {
	return flowgraph.NewContext(ctx,
		flowgraph.WithLogger(s.logger),
		flowgraph.WithCheckpointer(s.store),
		flowgraph.WithContextRunID(runID),
	)
}

func (s *Service) runOptions(runID string, extra ...flowgraph.RunOption) []flowgraph.RunOption {
	opts := []flowgraph.RunOption{
		flowgraph.WithCheckpointing(s.store),
		flowgraph.WithRunID(runID),
		flowgraph.WithObservabilityLogger(s.logger),
		flowgraph.WithMetrics(s.opts.Metrics),
		flowgraph.WithTracing(s.opts.Tracing),
	}
	if s.opts.RecursionLimit > 0 {
		opts = append(opts, flowgraph.WithRecursionLimit(s.opts.RecursionLimit))
	}
	return append(opts, extra...)
}

// Start begins a run and executes it until it completes, fails or
// suspends at a checkpoint.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Response, error) {
	state, err := s.NewState(req)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, state.RunID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	out, err := s.graph.Run(s.context(ctx, state.RunID), state, s.runOptions(state.RunID)...)
	return s.respond(state.RunID, out, err)
}

// Resume resolves the run's pending checkpoint and continues it. The
// checkpoint type must match the pending one. Concurrent resumes of one
// run are serialized, so a checkpoint is consumed once: later callers
// see the run's new checkpoint and fail with an
// *flowgraph.InterruptMismatchError.
func (s *Service) Resume(ctx context.Context, runID string, req ResumeRequest) (*Response, error) {
	if runID == "" {
		return nil, invalidf("run id is required")
	}
	if !slices.Contains(CheckpointTypes, req.CheckpointType) {
		return nil, invalidf("unknown checkpoint type %q", req.CheckpointType)
	}
	if len(req.Resolution) == 0 || string(req.Resolution) == "null" {
		return nil, invalidf("resolution is required")
	}
	unlock, err := s.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	out, err := s.graph.Resume(s.context(ctx, runID), s.store, runID, req.Resolution,
		s.runOptions(runID, flowgraph.WithInterruptType(req.CheckpointType))...)
	if errors.Is(err, flowgraph.ErrNoCheckpoints) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return s.respond(runID, out, err)
}

// Continue restarts a run that stopped without suspending, such as after
// a crash, from the node after its latest checkpoint.
func (s *Service) Continue(ctx context.Context, runID string) (*Response, error) {
	if runID == "" {
		return nil, invalidf("run id is required")
	}
	unlock, err := s.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	out, err := s.graph.Resume(s.context(ctx, runID), s.store, runID, nil, s.runOptions(runID)...)
	if errors.Is(err, flowgraph.ErrNoCheckpoints) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return s.respond(runID, out, err)
}

// RunUnattended executes a run without checkpointing. Every checkpoint
// must be pre-resolved through req.Approvals.
func (s *Service) RunUnattended(ctx context.Context, req StartRequest) (State, error) {
	state, err := s.NewState(req)
	if err != nil {
		return State{}, err
	}
	opts := []flowgraph.RunOption{
		flowgraph.WithObservabilityLogger(s.logger),
		flowgraph.WithRunID(state.RunID),
	}
	if s.opts.RecursionLimit > 0 {
		opts = append(opts, flowgraph.WithRecursionLimit(s.opts.RecursionLimit))
	}
	fctx := flowgraph.NewContext(ctx, flowgraph.WithLogger(s.logger), flowgraph.WithContextRunID(state.RunID))
	out, err := s.graph.Run(fctx, state, opts...)
	if err != nil {
		return out.State, err
	}
	return out.State, nil
}

func (s *Service) respond(runID string, out flowgraph.Outcome[State], err error) (*Response, error) {
	if err != nil {
		if IsRequestError(err) {
			return nil, err
		}
		s.logger.Error("workflow failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		failed := &RunFailedError{RunID: runID, Err: err}
		return &Response{RunID: runID, Error: failed.Error()}, failed
	}
	resp := &Response{RunID: runID, Phase: out.State.Phase, Errors: out.State.Errors}
	if out.Interrupt != nil {
		resp.Checkpoint = view(out.Interrupt)
	}
	return resp, nil
}

func view(in *flowgraph.Interrupt) *CheckpointView {
	v := &CheckpointView{Type: in.Type, Node: in.NodeID}
	switch p := in.Payload.(type) {
	case nil:
	case json.RawMessage:
		v.Payload = p
	default:
		if raw, err := json.Marshal(p); err == nil {
			v.Payload = raw
		}
	}
	return v
}

// Status reads a run's latest checkpoint. It works for runs started by
// another process sharing the store.
func (s *Service) Status(runID string) (*Status, error) {
	snap, err := flowgraph.LoadSnapshot[State](s.store, runID)
	if errors.Is(err, flowgraph.ErrNoCheckpoints) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return nil, err
	}
	st := &Status{
		RunID:       runID,
		Theme:       snap.State.Theme,
		Phase:       snap.State.Phase,
		Revisions:   snap.State.Revisions,
		Errors:      snap.State.Errors,
		Evaluations: len(snap.State.EvaluationHistory),
		LastNode:    snap.NodeID,
		Done:        snap.Done(),
	}
	if snap.Interrupt != nil {
		st.Checkpoint = view(snap.Interrupt)
	} else if !st.Done {
		st.NextNode = snap.NextNode
	}
	if infos, err := s.store.List(runID); err == nil && len(infos) > 0 {
		st.UpdatedAt = infos[len(infos)-1].Timestamp
	}
	return st, nil
}

// List returns the status of every run in the store, most recently
// updated first.
func (s *Service) List() ([]Status, error) {
	runs, err := s.store.Runs()
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(runs))
	for _, r := range runs {
		st, err := s.Status(r.RunID)
		if err != nil {
			s.logger.Warn("skipping unreadable run", slog.String("run_id", r.RunID), slog.String("error", err.Error()))
			continue
		}
		out = append(out, *st)
	}
	return out, nil
}

// State returns a run's full state from its latest checkpoint.
func (s *Service) State(runID string) (State, error) {
	snap, err := flowgraph.LoadSnapshot[State](s.store, runID)
	if errors.Is(err, flowgraph.ErrNoCheckpoints) {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return State{}, err
	}
	return snap.State, nil
}

// Report returns the validated article of a completed run.
func (s *Service) Report(runID string) (*Article, error) {
	state, err := s.State(runID)
	if err != nil {
		return nil, err
	}
	if state.Phase != PhaseComplete || state.Article == nil {
		return nil, fmt.Errorf("%w: %s is in phase %s", ErrNotComplete, runID, state.Phase)
	}
	return state.Article, nil
}
