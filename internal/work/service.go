package work

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/craft"
	"github.com/kingrea/chainforge/internal/dub"
	"github.com/kingrea/chainforge/internal/telemetry"
)

// Options configure a Service.
type Options struct {
	Production config.ProductionConfig
	Store      chain.Store
	Provider   content.Provider
	// Templates resolves template tunables by key; nil uses the defaults.
	Templates func(key string) config.TemplateConfig
	Dubber    dub.Dubber
	Scorer    craft.Scorer
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
	Handlers  []EventHandler
	Clock     func() time.Time
}

// Service drives every fabricating chain from one ticker.
type Service struct {
	opts   Options
	sched  Scheduler
	log    *slog.Logger
	events handlers

	mu      sync.Mutex
	workers map[string]*Worker
	paused  map[string]string
	cancels map[string]context.CancelFunc
}

// ChainStatus is the service's view of one chain.
type ChainStatus struct {
	Chain              chain.Chain                `json:"chain"`
	Segments           map[chain.SegmentState]int `json:"segments"`
	FabricatedToMicros int64                      `json:"fabricatedToMicros"`
	CursorMicros       int64                      `json:"cursorMicros"`
	Paused             bool                       `json:"paused,omitempty"`
}

// NewService validates opts and returns an idle service.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Provider == nil {
		return nil, fmt.Errorf("work: service needs a store and a content provider")
	}
	if opts.Templates == nil {
		opts.Templates = func(string) config.TemplateConfig { return config.DefaultTemplateConfig() }
	}
	if opts.Dubber == nil {
		opts.Dubber = dub.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Production.CycleInterval <= 0 {
		opts.Production.CycleInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:    opts,
		log:     logger,
		events:  handlers(opts.Handlers),
		workers: map[string]*Worker{},
		paused:  map[string]string{},
		cancels: map[string]context.CancelFunc{},
	}, nil
}

// CreateChain stores a new Draft chain for a template.
func (s *Service) CreateChain(ctx context.Context, name, templateKey string, typ chain.Type) (chain.Chain, error) {
	if templateKey == "" {
		templateKey = config.DefaultTemplate
	}
	if typ == "" {
		typ = chain.TypeProduction
	}
	if _, err := s.opts.Provider.SourceMaterial(ctx, templateKey); err != nil {
		return chain.Chain{}, fmt.Errorf("work: template %q: %w", templateKey, err)
	}
	now := s.opts.Clock().UTC()
	c := chain.Chain{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Type:        typ,
		State:       chain.StateDraft,
		TemplateKey: templateKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Name == "" {
		c.Name = templateKey
	}
	if err := s.opts.Store.CreateChain(ctx, c); err != nil {
		return chain.Chain{}, fmt.Errorf("work: create chain: %w", err)
	}
	return c, nil
}

// Start moves a Draft chain through Ready to Fabricate, fixing its seed and
// chain-time origin.
func (s *Service) Start(ctx context.Context, chainID string) (chain.Chain, error) {
	c, err := s.opts.Store.Chain(ctx, chainID)
	if err != nil {
		return chain.Chain{}, fmt.Errorf("work: load chain: %w", err)
	}
	now := s.opts.Clock().UTC()
	for _, to := range []chain.State{chain.StateReady, chain.StateFabricate} {
		from := c.State
		if err := c.Transition(to); err != nil {
			return chain.Chain{}, fmt.Errorf("work: start chain: %w", err)
		}
		s.events.emit(Event{Kind: EventChainState, ChainID: c.ID, From: string(from), To: string(to), At: now})
	}
	if c.Seed == 0 {
		c.Seed = s.opts.Templates(c.TemplateKey).Seed
	}
	if c.Seed == 0 {
		c.Seed = now.UnixNano()
	}
	c.StartedAt = now
	c.UpdatedAt = now
	if err := s.opts.Store.UpdateChain(ctx, c); err != nil {
		return chain.Chain{}, fmt.Errorf("work: store chain: %w", err)
	}
	s.log.Info("chain started", "chain", c.ID, "template", c.TemplateKey, "seed", c.Seed)
	return c, nil
}

// Stop cancels the chain's in-flight cycle, waits for it and marks the chain
// Complete.
func (s *Service) Stop(ctx context.Context, chainID string) error {
	s.mu.Lock()
	if cancel, ok := s.cancels[chainID]; ok {
		cancel()
	}
	s.mu.Unlock()

	w, err := s.worker(ctx, chainID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	c, err := s.opts.Store.Chain(ctx, chainID)
	if err != nil {
		return fmt.Errorf("work: load chain: %w", err)
	}
	from := c.State
	if err := c.Transition(chain.StateComplete); err != nil {
		return fmt.Errorf("work: stop chain: %w", err)
	}
	c.UpdatedAt = s.opts.Clock().UTC()
	if err := s.opts.Store.UpdateChain(ctx, c); err != nil {
		return fmt.Errorf("work: store chain: %w", err)
	}
	s.events.emit(Event{Kind: EventChainState, ChainID: c.ID, From: string(from), To: string(c.State), At: c.UpdatedAt})
	return nil
}

// Pause holds a chain out of scheduling until Resume.
func (s *Service) Pause(chainID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[chainID] = reason
}

// Resume returns a paused chain to scheduling.
func (s *Service) Resume(chainID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, chainID)
}

// Override steers the next segment of a fabricating chain.
func (s *Service) Override(ctx context.Context, chainID string, req OverrideRequest) error {
	c, err := s.opts.Store.Chain(ctx, chainID)
	if err != nil {
		return fmt.Errorf("work: load chain: %w", err)
	}
	if c.State != chain.StateFabricate {
		return ErrChainNotFabricating
	}
	w, err := s.worker(ctx, chainID)
	if err != nil {
		return err
	}
	return w.Override(req)
}

// Run cycles chains every CycleInterval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Production.CycleInterval)
	defer ticker.Stop()
	s.log.Info("production started", "interval", s.opts.Production.CycleInterval)
	for {
		if err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("production cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			s.log.Info("production stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one craft and dub cycle over the runnable chains.
func (s *Service) Tick(ctx context.Context) error {
	chains, err := s.opts.Store.Chains(ctx)
	if err != nil {
		return fmt.Errorf("work: list chains: %w", err)
	}
	batch := s.sched.Runnable(s.request(chains))
	active := 0
	for _, c := range chains {
		if c.State == chain.StateFabricate {
			active++
		}
	}
	s.opts.Metrics.Active(active)
	for id, skip := range batch.Skipped {
		if skip.Reason != SkipReasonNotFabricating {
			s.log.Debug("chain skipped", "chain", id, "reason", skip.Reason, "detail", skip.Detail)
		}
	}

	// Chains are independent: a fault in one must not cancel its peers.
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if s.opts.Production.MaxParallel > 0 {
		g.SetLimit(s.opts.Production.MaxParallel)
	}
	for _, c := range batch.Chains {
		c := c
		g.Go(func() error {
			if err := s.cycle(ctx, c); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Service) request(chains []chain.Chain) RunnableRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := RunnableRequest{Chains: chains, MaxParallel: s.opts.Production.MaxParallel, Paused: map[string]string{}}
	for id, w := range s.workers {
		if w.Busy() {
			req.Running = append(req.Running, id)
		}
	}
	for id, reason := range s.paused {
		req.Paused[id] = reason
	}
	return req
}

func (s *Service) cycle(ctx context.Context, c chain.Chain) error {
	w, err := s.worker(ctx, c.ID)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[c.ID] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, c.ID)
		s.mu.Unlock()
	}()

	cursor := s.cursor(c)
	if _, err := w.CraftCycle(cctx, cursor); err != nil {
		if errors.Is(err, ErrChainNotFabricating) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("chain %s: %w", c.ID, err)
	}
	if _, err := w.DubCycle(cctx, cursor); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("chain %s: %w", c.ID, err)
	}
	return nil
}

// cursor is the chain-time now, measured from the chain's start.
func (s *Service) cursor(c chain.Chain) int64 {
	if c.StartedAt.IsZero() {
		return 0
	}
	d := s.opts.Clock().Sub(c.StartedAt)
	if d < 0 {
		return 0
	}
	return d.Microseconds()
}

// worker returns the chain's worker, building it on first use.
func (s *Service) worker(ctx context.Context, chainID string) (*Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[chainID]; ok {
		return w, nil
	}
	c, err := s.opts.Store.Chain(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("work: load chain: %w", err)
	}
	src, err := s.opts.Provider.SourceMaterial(ctx, c.TemplateKey)
	if err != nil {
		return nil, fmt.Errorf("work: source material for %s: %w", c.TemplateKey, err)
	}
	w, err := NewWorker(chainID, WorkerOptions{
		Store:                  s.opts.Store,
		Source:                 src,
		Template:               s.opts.Templates(c.TemplateKey),
		Dubber:                 s.opts.Dubber,
		Scorer:                 s.opts.Scorer,
		Metrics:                s.opts.Metrics,
		Logger:                 s.log,
		Handlers:               s.opts.Handlers,
		Clock:                  s.opts.Clock,
		MaxConsecutiveFailures: s.opts.Production.MaxConsecutiveFailures,
		MaxSegmentsPerCycle:    s.opts.Production.MaxSegmentsPerCycle,
	})
	if err != nil {
		return nil, err
	}
	s.workers[chainID] = w
	return w, nil
}

// Status reports every chain with its segment counts.
func (s *Service) Status(ctx context.Context) ([]ChainStatus, error) {
	chains, err := s.opts.Store.Chains(ctx)
	if err != nil {
		return nil, fmt.Errorf("work: list chains: %w", err)
	}
	sort.SliceStable(chains, func(i, j int) bool { return chains[i].CreatedAt.Before(chains[j].CreatedAt) })
	s.mu.Lock()
	paused := make(map[string]bool, len(s.paused))
	for id := range s.paused {
		paused[id] = true
	}
	s.mu.Unlock()

	out := make([]ChainStatus, 0, len(chains))
	for _, c := range chains {
		st, err := StatusOf(ctx, s.opts.Store, c)
		if err != nil {
			return nil, err
		}
		st.Paused = paused[c.ID]
		if c.State == chain.StateFabricate {
			st.CursorMicros = s.cursor(c)
		}
		out = append(out, st)
	}
	return out, nil
}

// StatusOf summarizes one chain from the store alone.
func StatusOf(ctx context.Context, store chain.Store, c chain.Chain) (ChainStatus, error) {
	segs, err := store.Segments(ctx, c.ID)
	if err != nil {
		return ChainStatus{}, fmt.Errorf("work: segments of %s: %w", c.ID, err)
	}
	st := ChainStatus{Chain: c, Segments: map[chain.SegmentState]int{}}
	for _, seg := range segs {
		st.Segments[seg.State]++
		if end := seg.EndAtChainMicros(); end > st.FabricatedToMicros {
			st.FabricatedToMicros = end
		}
	}
	return st, nil
}

// Segments lists a chain's Crafted-or-later segments; Failed ones are kept
// out of reader views.
func (s *Service) Segments(ctx context.Context, chainID string) ([]chain.Segment, error) {
	if _, err := s.opts.Store.Chain(ctx, chainID); err != nil {
		return nil, fmt.Errorf("work: load chain: %w", err)
	}
	segs, err := s.opts.Store.Segments(ctx, chainID, chain.SegmentCrafted, chain.SegmentDubbing, chain.SegmentDubbed)
	if err != nil {
		return nil, fmt.Errorf("work: segments of %s: %w", chainID, err)
	}
	return segs, nil
}
