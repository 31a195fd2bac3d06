package work

import (
	"fmt"
	"sort"

	"github.com/kingrea/chainforge/internal/chain"
)

// RunnableRequest captures the chains known to the service plus the
// constraints a cycle must respect.
type RunnableRequest struct {
	Chains []chain.Chain
	// BatchSize limits how many chains are returned. Values <= 0 mean no
	// limit (subject to MaxParallel).
	BatchSize int
	// MaxParallel caps how many chains may cycle at once, including those in
	// Running. Values <= 0 disable the limit.
	MaxParallel int
	// Running lists chains whose previous cycle is still in flight.
	Running []string
	// Paused maps chain ids held by an operator to the reason given.
	Paused map[string]string
}

// RunnableBatch is the scheduler's decision.
type RunnableBatch struct {
	Chains  []chain.Chain
	Skipped map[string]SkipReason
}

// SkipReason explains why a chain was left out of the batch.
type SkipReason struct {
	Reason SkipReasonCode
	Detail string
}

// SkipReasonCode enumerates scheduler skip reasons.
type SkipReasonCode string

const (
	SkipReasonNotFabricating SkipReasonCode = "not-fabricating"
	SkipReasonPaused         SkipReasonCode = "paused"
	SkipReasonConcurrency    SkipReasonCode = "concurrency"
	SkipReasonActive         SkipReasonCode = "already-running"
)

// Scheduler picks the chains a cycle works on. Chains go oldest first so a
// busy service does not starve early chains.
type Scheduler struct{}

// Runnable returns the chains to cycle now.
func (Scheduler) Runnable(req RunnableRequest) RunnableBatch {
	queue := append([]chain.Chain(nil), req.Chains...)
	sort.SliceStable(queue, func(i, j int) bool {
		if !queue[i].StartedAt.Equal(queue[j].StartedAt) {
			return queue[i].StartedAt.Before(queue[j].StartedAt)
		}
		return queue[i].ID < queue[j].ID
	})
	running := req.runningSet()
	limit := req.batchLimit(len(queue), len(running))
	result := RunnableBatch{}
	for _, c := range queue {
		if c.State != chain.StateFabricate {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonNotFabricating, Detail: string(c.State)})
			continue
		}
		if _, active := running[c.ID]; active {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonActive, Detail: "cycle in flight"})
			continue
		}
		if note, held := req.Paused[c.ID]; held {
			if note == "" {
				note = "paused by operator"
			}
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonPaused, Detail: note})
			continue
		}
		if len(result.Chains) >= limit {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonConcurrency, Detail: fmt.Sprintf("max parallel %d reached", req.MaxParallel)})
			continue
		}
		result.Chains = append(result.Chains, c)
	}
	return result
}

func (req RunnableRequest) runningSet() map[string]struct{} {
	set := make(map[string]struct{}, len(req.Running))
	for _, id := range req.Running {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

func (req RunnableRequest) batchLimit(queueLen, runningCount int) int {
	limit := req.BatchSize
	if limit <= 0 || limit > queueLen {
		limit = queueLen
	}
	if req.MaxParallel > 0 {
		remaining := req.MaxParallel - runningCount
		if remaining <= 0 {
			return 0
		}
		if limit > remaining {
			limit = remaining
		}
	}
	return limit
}

func (b *RunnableBatch) addSkip(id string, reason SkipReason) {
	if id == "" {
		return
	}
	if b.Skipped == nil {
		b.Skipped = make(map[string]SkipReason)
	}
	b.Skipped[id] = reason
}
