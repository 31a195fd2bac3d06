package chain

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process. Values are cloned on the way in
// and out so callers cannot mutate stored segments.
type MemoryStore struct {
	mu       sync.RWMutex
	chains   map[string]Chain
	segments map[string][]Segment
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: map[string]Chain{}, segments: map[string][]Segment{}}
}

func (m *MemoryStore) CreateChain(_ context.Context, c Chain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chains[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrChainExists, c.ID)
	}
	m.chains[c.ID] = c
	return nil
}

func (m *MemoryStore) Chain(_ context.Context, id string) (Chain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chains[id]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %s", ErrChainNotFound, id)
	}
	return c, nil
}

func (m *MemoryStore) Chains(_ context.Context) ([]Chain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chain, 0, len(m.chains))
	for _, c := range m.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateChain(_ context.Context, c Chain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chains[c.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrChainNotFound, c.ID)
	}
	m.chains[c.ID] = c
	return nil
}

func (m *MemoryStore) PutSegment(_ context.Context, s Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chains[s.ChainID]; !ok {
		return fmt.Errorf("%w: %s", ErrChainNotFound, s.ChainID)
	}
	list := m.segments[s.ChainID]
	var last Segment
	if len(list) > 0 {
		last = list[len(list)-1]
	}
	if err := checkAppend(last, len(list) > 0, s); err != nil {
		return err
	}
	m.segments[s.ChainID] = append(list, s.Clone())
	return nil
}

func (m *MemoryStore) UpdateSegment(_ context.Context, s Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.segments[s.ChainID]
	if s.ID < 0 || s.ID >= len(list) {
		return fmt.Errorf("%w: %s/%d", ErrSegmentNotFound, s.ChainID, s.ID)
	}
	if err := checkUpdate(list[s.ID], s); err != nil {
		return err
	}
	list[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Segment(_ context.Context, chainID string, id int) (Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.segments[chainID]
	if id < 0 || id >= len(list) {
		return Segment{}, fmt.Errorf("%w: %s/%d", ErrSegmentNotFound, chainID, id)
	}
	return list[id].Clone(), nil
}

func (m *MemoryStore) Segments(_ context.Context, chainID string, states ...SegmentState) ([]Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Segment
	for _, s := range m.segments[chainID] {
		if len(states) > 0 && !hasState(states, s.State) {
			continue
		}
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *MemoryStore) LastSegment(_ context.Context, chainID string) (Segment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.segments[chainID]
	if len(list) == 0 {
		return Segment{}, false, nil
	}
	return list[len(list)-1].Clone(), true, nil
}

func (m *MemoryStore) Close() error { return nil }

func hasState(states []SegmentState, s SegmentState) bool {
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}
