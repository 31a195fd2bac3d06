package chain

import (
	"errors"
	"fmt"
)

var (
	ErrChainNotFound     = errors.New("chain: chain not found")
	ErrChainExists       = errors.New("chain: chain already exists")
	ErrSegmentNotFound   = errors.New("chain: segment not found")
	ErrNotContiguous     = errors.New("chain: segment is not contiguous with its predecessor")
	ErrInvalidTransition = errors.New("chain: invalid state transition")
	ErrImmutable         = errors.New("chain: crafted segment content is immutable")
	ErrNotTerminal       = errors.New("chain: only crafted or failed segments can be stored")
)

var segmentTransitions = map[SegmentState][]SegmentState{
	SegmentPlanned:  {SegmentCrafting, SegmentFailed},
	SegmentCrafting: {SegmentCrafted, SegmentFailed},
	SegmentCrafted:  {SegmentDubbing},
	SegmentDubbing:  {SegmentDubbed, SegmentFailed},
}

var chainTransitions = map[State][]State{
	StateDraft:     {StateReady, StateFailed},
	StateReady:     {StateFabricate, StateFailed},
	StateFabricate: {StateComplete, StateFailed},
}

// CanTransition reports whether a segment may move from one state to another.
func CanTransition(from, to SegmentState) bool {
	for _, s := range segmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves s to the next state or explains why it cannot.
func (s *Segment) Transition(to SegmentState) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: segment %d %s -> %s", ErrInvalidTransition, s.ID, s.State, to)
	}
	s.State = to
	return nil
}

// Transition moves c to the next state or explains why it cannot.
func (c *Chain) Transition(to State) error {
	for _, s := range chainTransitions[c.State] {
		if s == to {
			c.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: chain %s %s -> %s", ErrInvalidTransition, c.ID, c.State, to)
}
