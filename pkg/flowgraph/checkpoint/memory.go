package checkpoint

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store for tests and
// no-persistence runs. Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*memoryRun
	closed bool
}

type memoryRun struct {
	lastSeq     int
	checkpoints map[string]storedCheckpoint // nodeID -> checkpoint
}

type storedCheckpoint struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*memoryRun)}
}

// Save implements Store.
func (m *MemoryStore) Save(runID, nodeID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.put(runID, nodeID, data)
	return nil
}

// SaveAfter implements Store.
func (m *MemoryStore) SaveAfter(runID, nodeID string, after int, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	latest := 0
	if run := m.runs[runID]; run != nil {
		latest = run.latest()
	}
	if latest != after {
		return 0, fmt.Errorf("%w: run %s is at %d, not %d", ErrConflict, runID, latest, after)
	}
	return m.put(runID, nodeID, data), nil
}

// latest is the highest sequence still stored, matching what List reports.
func (r *memoryRun) latest() int {
	n := 0
	for _, cp := range r.checkpoints {
		n = max(n, cp.sequence)
	}
	return n
}

// put stores data under the next sequence. Callers hold m.mu.
func (m *MemoryStore) put(runID, nodeID string, data []byte) int {
	run := m.runs[runID]
	if run == nil {
		run = &memoryRun{checkpoints: make(map[string]storedCheckpoint)}
		m.runs[runID] = run
	}
	run.lastSeq++

	// Copy so the caller can reuse its buffer.
	stored := make([]byte, len(data))
	copy(stored, data)

	run.checkpoints[nodeID] = storedCheckpoint{
		data:      stored,
		sequence:  run.lastSeq,
		timestamp: time.Now().UTC(),
	}
	return run.lastSeq
}

// Load implements Store.
func (m *MemoryStore) Load(runID, nodeID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp, ok := run.checkpoints[nodeID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(cp.data))
	copy(out, cp.data)
	return out, nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}

	infos := make([]Info, 0, len(run.checkpoints))
	for nodeID, cp := range run.checkpoints {
		infos = append(infos, Info{
			RunID:     runID,
			NodeID:    nodeID,
			Sequence:  cp.sequence,
			Timestamp: cp.timestamp,
			Size:      int64(len(cp.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(runID, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if run, ok := m.runs[runID]; ok {
		delete(run.checkpoints, nodeID)
		if len(run.checkpoints) == 0 {
			delete(m.runs, runID)
		}
	}
	return nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// Runs implements Store.
func (m *MemoryStore) Runs() ([]RunInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	out := make([]RunInfo, 0, len(m.runs))
	for runID, run := range m.runs {
		info := RunInfo{RunID: runID}
		for nodeID, cp := range run.checkpoints {
			if cp.sequence > info.LastSequence {
				info.LastSequence = cp.sequence
				info.LastNodeID = nodeID
				info.UpdatedAt = cp.timestamp
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

// Len returns the total number of checkpoints across all runs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, run := range m.runs {
		count += len(run.checkpoints)
	}
	return count
}
