package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Store persists chains and their segments. Implementations serialize writes
// per chain; callers still hold a per-chain lock so a chain has one writer.
type Store interface {
	CreateChain(ctx context.Context, c Chain) error
	Chain(ctx context.Context, id string) (Chain, error)
	Chains(ctx context.Context) ([]Chain, error)
	UpdateChain(ctx context.Context, c Chain) error

	// PutSegment appends a Crafted or Failed segment to the end of its chain.
	PutSegment(ctx context.Context, s Segment) error
	// UpdateSegment records a later state of a stored segment. Content of a
	// Crafted segment cannot change.
	UpdateSegment(ctx context.Context, s Segment) error
	Segment(ctx context.Context, chainID string, id int) (Segment, error)
	// Segments lists a chain's segments in order, optionally filtered by state.
	Segments(ctx context.Context, chainID string, states ...SegmentState) ([]Segment, error)
	// LastSegment returns the newest segment; ok is false for an empty chain.
	LastSegment(ctx context.Context, chainID string) (Segment, bool, error)

	Close() error
}

func checkAppend(last Segment, hasLast bool, next Segment) error {
	if next.State != SegmentCrafted && next.State != SegmentFailed {
		return fmt.Errorf("%w: segment %d is %s", ErrNotTerminal, next.ID, next.State)
	}
	if !hasLast {
		if next.ID != 0 || next.BeginAtChainMicros != 0 {
			return fmt.Errorf("%w: first segment must be offset 0 at 0us, got %d at %dus", ErrNotContiguous, next.ID, next.BeginAtChainMicros)
		}
		return nil
	}
	if next.ID != last.ID+1 {
		return fmt.Errorf("%w: expected offset %d, got %d", ErrNotContiguous, last.ID+1, next.ID)
	}
	if next.BeginAtChainMicros != last.EndAtChainMicros() {
		return fmt.Errorf("%w: expected begin %dus, got %dus", ErrNotContiguous, last.EndAtChainMicros(), next.BeginAtChainMicros)
	}
	return nil
}

func checkUpdate(prev, next Segment) error {
	if prev.State != next.State && !CanTransition(prev.State, next.State) {
		return fmt.Errorf("%w: segment %d %s -> %s", ErrInvalidTransition, prev.ID, prev.State, next.State)
	}
	if prev.Readable() && !sameContent(prev, next) {
		return fmt.Errorf("%w: segment %d", ErrImmutable, prev.ID)
	}
	return nil
}

func sameContent(a, b Segment) bool {
	return bytes.Equal(contentKey(a), contentKey(b))
}

func contentKey(s Segment) []byte {
	s.State = ""
	s.Output = nil
	s.Error = ""
	s.UpdatedAt = s.CreatedAt
	data, _ := json.Marshal(s)
	return data
}
