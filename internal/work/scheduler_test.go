package work

import (
	"testing"
	"time"

	"github.com/kingrea/chainforge/internal/chain"
)

func chainAt(id string, state chain.State, started int) chain.Chain {
	return chain.Chain{ID: id, State: state, StartedAt: time.Unix(int64(started), 0)}
}

func TestSchedulerOrdersOldestFirst(t *testing.T) {
	batch := Scheduler{}.Runnable(RunnableRequest{Chains: []chain.Chain{
		chainAt("late", chain.StateFabricate, 20),
		chainAt("early", chain.StateFabricate, 10),
	}})
	if len(batch.Chains) != 2 || batch.Chains[0].ID != "early" {
		t.Fatalf("unexpected order: %+v", batch.Chains)
	}
}

func TestSchedulerSkipReasons(t *testing.T) {
	batch := Scheduler{}.Runnable(RunnableRequest{
		Chains: []chain.Chain{
			chainAt("draft", chain.StateDraft, 1),
			chainAt("busy", chain.StateFabricate, 2),
			chainAt("held", chain.StateFabricate, 3),
			chainAt("a", chain.StateFabricate, 4),
			chainAt("b", chain.StateFabricate, 5),
		},
		MaxParallel: 2,
		Running:     []string{"busy"},
		Paused:      map[string]string{"held": ""},
	})
	if len(batch.Chains) != 1 || batch.Chains[0].ID != "a" {
		t.Fatalf("runnable = %+v", batch.Chains)
	}
	want := map[string]SkipReasonCode{
		"draft": SkipReasonNotFabricating,
		"busy":  SkipReasonActive,
		"held":  SkipReasonPaused,
		"b":     SkipReasonConcurrency,
	}
	for id, code := range want {
		if got := batch.Skipped[id].Reason; got != code {
			t.Fatalf("%s skipped as %q, want %q", id, got, code)
		}
	}
	if batch.Skipped["held"].Detail != "paused by operator" {
		t.Fatalf("held detail = %q", batch.Skipped["held"].Detail)
	}
}

func TestSchedulerAtCapacity(t *testing.T) {
	batch := Scheduler{}.Runnable(RunnableRequest{
		Chains:      []chain.Chain{chainAt("a", chain.StateFabricate, 1), chainAt("b", chain.StateFabricate, 2)},
		MaxParallel: 1,
		Running:     []string{"b"},
	})
	if len(batch.Chains) != 0 {
		t.Fatalf("expected nothing runnable, got %+v", batch.Chains)
	}
	if batch.Skipped["a"].Reason != SkipReasonConcurrency {
		t.Fatalf("a skipped as %+v", batch.Skipped["a"])
	}
}
