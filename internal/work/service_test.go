package work

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/content/contenttest"
	"github.com/kingrea/chainforge/internal/logbook"
	"github.com/kingrea/chainforge/internal/logging"
	"github.com/kingrea/chainforge/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newJournal(t *testing.T) *logbook.Logbook {
	t.Helper()
	lb, err := logbook.New(filepath.Join(t.TempDir(), "journey.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	return lb
}

func newTestService(t *testing.T) (*Service, *fakeClock, *telemetry.Metrics) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	metrics := telemetry.New(false)
	svc, err := NewService(Options{
		Production: config.ProductionConfig{CycleInterval: time.Second, MaxParallel: 2, MaxConsecutiveFailures: 3, MaxSegmentsPerCycle: 16},
		Store:      chain.NewMemoryStore(),
		Provider:   content.StaticProvider{"demo": contenttest.Demo().Source()},
		Templates:  func(string) config.TemplateConfig { return testTemplate() },
		Metrics:    metrics,
		Logger:     logging.Discard(),
		Handlers:   []EventHandler{JournalHandler(newJournal(t))},
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, clock, metrics
}

func TestServiceLifecycle(t *testing.T) {
	svc, clock, metrics := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateChain(ctx, "", "demo", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.State != chain.StateDraft || c.Name != "demo" || c.Type != chain.TypeProduction {
		t.Fatalf("chain = %+v", c)
	}
	if err := svc.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	status, _ := svc.Status(ctx)
	if len(status) != 1 || len(status[0].Segments) != 0 {
		t.Fatalf("draft chain was crafted: %+v", status)
	}

	started, err := svc.Start(ctx, c.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.State != chain.StateFabricate || started.Seed == 0 || !started.StartedAt.Equal(clock.Now()) {
		t.Fatalf("started = %+v", started)
	}
	if err := svc.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	status, err = svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status[0].Segments[chain.SegmentCrafted] != 3 || status[0].FabricatedToMicros != 12_000_000 {
		t.Fatalf("status = %+v", status[0])
	}
	if got := testutil.ToFloat64(metrics.ChainsActive); got != 1 {
		t.Fatalf("active chains = %v", got)
	}

	clock.Advance(5 * time.Second)
	if err := svc.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	status, _ = svc.Status(ctx)
	if status[0].CursorMicros != 5_000_000 || status[0].FabricatedToMicros != 16_000_000 {
		t.Fatalf("after advance: %+v", status[0])
	}
	if status[0].Segments[chain.SegmentDubbed] != 2 {
		t.Fatalf("dubbed = %d, want the two segments begun before the cursor", status[0].Segments[chain.SegmentDubbed])
	}

	if err := svc.Stop(ctx, c.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	status, _ = svc.Status(ctx)
	if status[0].Chain.State != chain.StateComplete {
		t.Fatalf("state after stop = %s", status[0].Chain.State)
	}
	if err := svc.Override(ctx, c.ID, OverrideRequest{MacroProgramID: "macro"}); err != ErrChainNotFabricating {
		t.Fatalf("override after stop: %v", err)
	}
}

func TestServicePauseSkipsChain(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChain(ctx, "paused", "demo", chain.TypePreview)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Start(ctx, c.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Pause(c.ID, "maintenance")
	if err := svc.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	status, _ := svc.Status(ctx)
	if !status[0].Paused || len(status[0].Segments) != 0 {
		t.Fatalf("paused chain status = %+v", status[0])
	}
	svc.Resume(c.ID)
	if err := svc.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	status, _ = svc.Status(ctx)
	if status[0].Segments[chain.SegmentCrafted] == 0 {
		t.Fatalf("resumed chain was not crafted: %+v", status[0])
	}
}

func TestServiceRejectsUnknownTemplate(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.CreateChain(context.Background(), "x", "nope", ""); err == nil {
		t.Fatalf("expected unknown template error")
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}

// faultyStore fails every segment write of one chain. Writes of other chains
// wait for that fault and then linger, so a cancellation spreading from the
// faulted chain would reach them.
type faultyStore struct {
	chain.Store
	bad     string
	faulted chan struct{}
	once    sync.Once
}

func (s *faultyStore) PutSegment(ctx context.Context, seg chain.Segment) error {
	if seg.ChainID == s.bad {
		s.once.Do(func() { close(s.faulted) })
		return errors.New("disk full")
	}
	<-s.faulted
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return s.Store.PutSegment(ctx, seg)
}

func TestServiceChainFaultDoesNotCancelPeers(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := &faultyStore{Store: chain.NewMemoryStore(), faulted: make(chan struct{})}
	svc, err := NewService(Options{
		Production: config.ProductionConfig{CycleInterval: time.Second, MaxParallel: 2, MaxConsecutiveFailures: 3, MaxSegmentsPerCycle: 16},
		Store:      store,
		Provider:   content.StaticProvider{"demo": contenttest.Demo().Source()},
		Templates:  func(string) config.TemplateConfig { return testTemplate() },
		Metrics:    telemetry.New(false),
		Logger:     logging.Discard(),
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	var ids []string
	for _, name := range []string{"good", "bad"} {
		c, err := svc.CreateChain(ctx, name, "demo", "")
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := svc.Start(ctx, c.ID); err != nil {
			t.Fatalf("start %s: %v", name, err)
		}
		ids = append(ids, c.ID)
	}
	store.bad = ids[1]

	err = svc.Tick(ctx)
	if err == nil || !strings.Contains(err.Error(), ids[1]) || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected the faulted chain's error, got %v", err)
	}
	if strings.Contains(err.Error(), ids[0]) {
		t.Fatalf("healthy chain reported an error: %v", err)
	}
	segs, err := store.Segments(ctx, ids[0], chain.SegmentCrafted)
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("healthy chain crafted %d segments, want 3", len(segs))
	}
}
