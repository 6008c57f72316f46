package flowgraph

// Interrupt describes a durable suspension requested by a checkpoint node.
// The run stays suspended until Resume is called with a resolution value.
type Interrupt struct {
	// Type names the kind of input the run is waiting for.
	Type string `json:"type"`
	// Payload is whatever the external reviewer needs to make a decision.
	// After a round trip through a checkpoint store it is a json.RawMessage.
	Payload any `json:"payload,omitempty"`
	// NodeID is the checkpoint node that suspended.
	NodeID string `json:"node_id"`
}

// Command is the tagged result of a node: either continue with a patch,
// or suspend with a patch and an Interrupt descriptor.
type Command[P any] struct {
	// Patch is merged into state by the graph's Reducer in both cases.
	Patch P
	// Interrupt is non-nil when the node asks the run to suspend.
	Interrupt *Interrupt
}

// Update returns a Command that merges patch and continues.
func Update[P any](patch P) Command[P] {
	return Command[P]{Patch: patch}
}

// Suspend returns a Command that merges patch, then suspends the run with
// an interrupt of the given type. Only nodes added with AddCheckpoint may
// suspend.
func Suspend[P any](patch P, interruptType string, payload any) Command[P] {
	return Command[P]{
		Patch:     patch,
		Interrupt: &Interrupt{Type: interruptType, Payload: payload},
	}
}

// Suspended reports whether the command requests suspension.
func (c Command[P]) Suspended() bool {
	return c.Interrupt != nil
}

// Outcome is the result of Run or Resume.
type Outcome[S any] struct {
	// State is the state after the last executed node.
	State S
	// Interrupt is set when the run suspended at a checkpoint node.
	Interrupt *Interrupt
	// Steps is the number of nodes executed in this invocation.
	Steps int
}

// Suspended reports whether the run stopped at a checkpoint.
func (o Outcome[S]) Suspended() bool {
	return o.Interrupt != nil
}
