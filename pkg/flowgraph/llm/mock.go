package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockHandler produces a response for one request.
type MockHandler func(ctx context.Context, req Request) (*Response, error)

// MockInvoker is a scripted Invoker for tests and dry runs.
//
// Responses are matched by Request.Op. Queued responses are consumed in
// order and the last one repeats; a handler registered with On takes
// precedence over queued responses.
type MockInvoker struct {
	mu       sync.Mutex
	handlers map[string]MockHandler
	queued   map[string][][]byte
	err      error

	// Calls records every request received, in order.
	Calls []Request
}

// NewMockInvoker creates an empty mock. Requests for unscripted ops fail.
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{
		handlers: make(map[string]MockHandler),
		queued:   make(map[string][][]byte),
	}
}

// On registers a handler for op. Use "*" to match any op.
func (m *MockInvoker) On(op string, fn MockHandler) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[op] = fn
	return m
}

// Respond queues structured documents for op. Each value is marshaled to JSON.
func (m *MockInvoker) Respond(op string, docs ...any) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		data, err := json.Marshal(d)
		if err != nil {
			panic(fmt.Sprintf("mock response for %s: %v", op, err))
		}
		m.queued[op] = append(m.queued[op], data)
	}
	return m
}

// RespondRaw queues raw worker output for op. It goes through Extract.
func (m *MockInvoker) RespondRaw(op string, outputs ...string) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, out := range outputs {
		m.queued[op] = append(m.queued[op], []byte(out))
	}
	return m
}

// WithError makes every call fail with err.
func (m *MockInvoker) WithError(err error) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Invoke implements Invoker.
func (m *MockInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	handler, ok := m.handlers[req.Op]
	if !ok {
		handler, ok = m.handlers["*"]
	}
	if ok {
		m.mu.Unlock()
		return handler(ctx, req)
	}

	queue := m.queued[req.Op]
	if len(queue) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock invoker: no response scripted for op %q", req.Op)
	}
	out := queue[0]
	if len(queue) > 1 {
		m.queued[req.Op] = queue[1:]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, doc, source := Extract(out)
	return &Response{Text: text, Structured: doc, Source: source, Attempts: 1}, nil
}

// CallCount returns the number of calls received.
func (m *MockInvoker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// CallsFor returns the requests received for op.
func (m *MockInvoker) CallsFor(op string) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// LastCall returns the most recent request, or nil.
func (m *MockInvoker) LastCall() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	c := m.Calls[len(m.Calls)-1]
	return &c
}

// Reset clears recorded calls.
func (m *MockInvoker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}
