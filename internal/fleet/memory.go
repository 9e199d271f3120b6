package fleet

import (
	"context"
	"fmt"
	"sync"
)

// MemoryController records fleet operations without starting anything.
type MemoryController struct {
	mu          sync.Mutex
	active      map[string][]string
	launched    map[string]int
	terminated  map[string]int
	seq         int
	activeErr   error
	terminateFn func(role string) error
}

// NewMemoryController creates an empty in-memory fleet.
func NewMemoryController() *MemoryController {
	return &MemoryController{
		active:     make(map[string][]string),
		launched:   make(map[string]int),
		terminated: make(map[string]int),
	}
}

func (m *MemoryController) Active(_ context.Context, role string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeErr != nil {
		return 0, m.activeErr
	}
	return len(m.active[role]), nil
}

func (m *MemoryController) Launch(_ context.Context, role string, count int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		m.seq++
		ids = append(ids, fmt.Sprintf("%s-%d", role, m.seq))
	}
	m.active[role] = append(m.active[role], ids...)
	m.launched[role] += count
	return ids, nil
}

func (m *MemoryController) TerminateAll(_ context.Context, role string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminateFn != nil {
		if err := m.terminateFn(role); err != nil {
			return 0, err
		}
	}
	n := len(m.active[role])
	m.active[role] = nil
	m.terminated[role]++
	return n, nil
}

// SetActiveError makes Active fail with err until cleared with nil.
func (m *MemoryController) SetActiveError(err error) {
	m.mu.Lock()
	m.activeErr = err
	m.mu.Unlock()
}

// OnTerminate installs a hook run before each TerminateAll.
func (m *MemoryController) OnTerminate(fn func(role string) error) {
	m.mu.Lock()
	m.terminateFn = fn
	m.mu.Unlock()
}

// Launched returns how many instances of role were ever launched.
func (m *MemoryController) Launched(role string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launched[role]
}

// TerminateCalls returns how many times TerminateAll succeeded for role.
func (m *MemoryController) TerminateCalls(role string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated[role]
}
