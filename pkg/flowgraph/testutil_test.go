package flowgraph

import (
	"context"
	"errors"
)

// Doc is the state used across engine tests.
type Doc struct {
	Count    int      `json:"count"`
	Trail    []string `json:"trail"`
	Approved bool     `json:"approved"`
	Note     string   `json:"note"`
}

// DocPatch is the partial update nodes return.
type DocPatch struct {
	Count    *int
	Trail    []string
	Approved *bool
	Note     *string
}

func applyDoc(d Doc, p DocPatch) Doc {
	if p.Count != nil {
		d.Count = *p.Count
	}
	if len(p.Trail) > 0 {
		d.Trail = append(append([]string(nil), d.Trail...), p.Trail...)
	}
	if p.Approved != nil {
		d.Approved = *p.Approved
	}
	if p.Note != nil {
		d.Note = *p.Note
	}
	return d
}

func ptr[T any](v T) *T { return &v }

// visit records the node name in the trail.
func visit(name string) NodeFunc[Doc, DocPatch] {
	return func(ctx Context, d Doc) (Command[DocPatch], error) {
		return Update(DocPatch{Trail: []string{name}}), nil
	}
}

// incr bumps Count and records the node name.
func incr(name string) NodeFunc[Doc, DocPatch] {
	return func(ctx Context, d Doc) (Command[DocPatch], error) {
		return Update(DocPatch{Count: ptr(d.Count + 1), Trail: []string{name}}), nil
	}
}

func failing(err error) NodeFunc[Doc, DocPatch] {
	return func(ctx Context, d Doc) (Command[DocPatch], error) {
		return Command[DocPatch]{}, err
	}
}

func panicking(v any) NodeFunc[Doc, DocPatch] {
	return func(ctx Context, d Doc) (Command[DocPatch], error) {
		panic(v)
	}
}

// approvalGate suspends until resumed with a bool resolution.
func approvalGate(name string) NodeFunc[Doc, DocPatch] {
	return func(ctx Context, d Doc) (Command[DocPatch], error) {
		if v, ok := ctx.Resolution(); ok {
			approved, ok := v.(bool)
			if !ok {
				return Command[DocPatch]{}, errors.New("approval must be a bool")
			}
			return Update(DocPatch{Approved: ptr(approved), Trail: []string{name + ":resolved"}}), nil
		}
		return Suspend(DocPatch{Trail: []string{name + ":waiting"}}, "approval", map[string]int{"count": d.Count}), nil
	}
}

func newDocGraph() *Graph[Doc, DocPatch] {
	return NewGraph[Doc, DocPatch](applyDoc)
}

func testCtx() Context {
	return NewContext(context.Background())
}
