// Package work runs chain production: per-chain workers that craft segments
// ahead of the playback cursor and hand them to dub, and a service that
// cycles many chains concurrently.
package work

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/craft"
	"github.com/kingrea/chainforge/internal/dub"
	"github.com/kingrea/chainforge/internal/fabricator"
	"github.com/kingrea/chainforge/internal/telemetry"
)

// craftAttempts is how often one segment is tried before it is persisted
// as Failed.
const craftAttempts = 2

// ErrChainNotFabricating is returned for operations that need a running chain.
var ErrChainNotFabricating = errors.New("work: chain is not fabricating")

// OverrideRequest steers the next crafted segment.
type OverrideRequest struct {
	MacroProgramID string   `json:"macroProgramId,omitempty"`
	Memes          []string `json:"memes,omitempty"`
}

// WorkerOptions wires a worker to its collaborators.
type WorkerOptions struct {
	Store    chain.Store
	Source   *content.SourceMaterial
	Template config.TemplateConfig
	Dubber   dub.Dubber
	Scorer   craft.Scorer
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
	Handlers []EventHandler
	Clock    func() time.Time

	MaxConsecutiveFailures int
	MaxSegmentsPerCycle    int
}

// Worker is the single writer of one chain.
type Worker struct {
	chainID string
	opts    WorkerOptions
	log     *slog.Logger
	events  handlers

	mu       sync.Mutex
	busy     atomic.Bool
	override *fabricator.Overrides
	failures int
}

// CycleReport summarizes one craft cycle.
type CycleReport struct {
	Crafted        int
	Failed         int
	FabricatedTo   int64
	ChainFailed    bool
	HitSegmentsCap bool
}

// NewWorker validates opts and returns the worker of chainID.
func NewWorker(chainID string, opts WorkerOptions) (*Worker, error) {
	if chainID == "" {
		return nil, fmt.Errorf("work: chain id is required")
	}
	if opts.Store == nil || opts.Source == nil {
		return nil, fmt.Errorf("work: worker for %s needs a store and source material", chainID)
	}
	if opts.Dubber == nil {
		opts.Dubber = dub.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 3
	}
	if opts.MaxSegmentsPerCycle <= 0 {
		opts.MaxSegmentsPerCycle = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		chainID: chainID,
		opts:    opts,
		log:     logger.With("chain", chainID),
		events:  handlers(opts.Handlers),
	}, nil
}

// ChainID returns the chain this worker writes.
func (w *Worker) ChainID() string { return w.chainID }

// Busy reports whether a cycle is in flight.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Override applies req to the next crafted segment, replacing any pending one.
func (w *Worker) Override(req OverrideRequest) error {
	req.MacroProgramID = strings.TrimSpace(req.MacroProgramID)
	var memes []string
	for _, m := range req.Memes {
		if m = strings.TrimSpace(m); m != "" {
			memes = append(memes, m)
		}
	}
	o := fabricator.Overrides{MacroProgramID: req.MacroProgramID, Memes: memes}
	if o.Empty() {
		return fmt.Errorf("work: override needs a macro program or memes")
	}
	if o.MacroProgramID != "" {
		p, ok := w.opts.Source.Program(o.MacroProgramID)
		if !ok || p.Type != content.ProgramMacro {
			return fmt.Errorf("work: %q is not a macro program", o.MacroProgramID)
		}
	}
	w.mu.Lock()
	w.override = &o
	w.mu.Unlock()
	w.events.emit(Event{
		Kind: EventOverride, ChainID: w.chainID, At: w.opts.Clock().UTC(),
		Message: fmt.Sprintf("macro=%q memes=%v", o.MacroProgramID, o.Memes),
	})
	return nil
}

// CraftCycle crafts segments until the chain reaches craft-ahead past the
// cursor. Cancellation is observed between segments only.
func (w *Worker) CraftCycle(ctx context.Context, cursorMicros int64) (CycleReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy.Store(true)
	defer w.busy.Store(false)

	var report CycleReport
	store := w.opts.Store
	c, err := store.Chain(ctx, w.chainID)
	if err != nil {
		return report, fmt.Errorf("work: load chain: %w", err)
	}
	if c.State != chain.StateFabricate {
		return report, ErrChainNotFabricating
	}
	last, hasLast, err := store.LastSegment(ctx, w.chainID)
	if err != nil {
		return report, fmt.Errorf("work: last segment: %w", err)
	}
	if hasLast {
		report.FabricatedTo = last.EndAtChainMicros()
	}
	target := cursorMicros + w.opts.Template.CraftAhead().Microseconds()

	for report.FabricatedTo < target {
		if report.Crafted+report.Failed >= w.opts.MaxSegmentsPerCycle {
			report.HitSegmentsCap = true
			w.log.Warn("segments per cycle cap reached", "cap", w.opts.MaxSegmentsPerCycle)
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		next := chain.Segment{
			ChainID:            w.chainID,
			Type:               chain.SegmentPending,
			State:              chain.SegmentPlanned,
			BeginAtChainMicros: report.FabricatedTo,
		}
		var prior *chain.Segment
		if hasLast {
			next.ID = last.ID + 1
			if last.Readable() {
				p := last
				prior = &p
			}
		}
		seg := w.craftSegment(c, prior, next)
		if err := store.PutSegment(ctx, seg); err != nil {
			return report, fmt.Errorf("work: store segment %d: %w", seg.ID, err)
		}
		last, hasLast = seg, true
		report.FabricatedTo = seg.EndAtChainMicros()

		if seg.State == chain.SegmentFailed {
			report.Failed++
			w.failures++
			w.opts.Metrics.Failed(w.chainID)
			w.events.emit(Event{Kind: EventSegmentFailed, ChainID: w.chainID, SegmentID: seg.ID, To: string(seg.State), Message: seg.Error, At: seg.UpdatedAt})
			if w.failures >= w.opts.MaxConsecutiveFailures {
				if err := w.failChain(ctx, &c); err != nil {
					return report, err
				}
				report.ChainFailed = true
				return report, nil
			}
			continue
		}
		w.failures = 0
		report.Crafted++
		w.events.emit(Event{Kind: EventSegmentCrafted, ChainID: w.chainID, SegmentID: seg.ID, From: string(chain.SegmentPlanned), To: string(seg.Type), At: seg.UpdatedAt})
		if len(seg.Missing) > 0 {
			w.events.emit(Event{Kind: EventMissingContent, ChainID: w.chainID, SegmentID: seg.ID, Missing: seg.Missing, At: seg.UpdatedAt})
		}
	}
	w.opts.Metrics.Ahead(w.chainID, time.Duration(report.FabricatedTo-cursorMicros)*time.Microsecond)
	return report, nil
}

// craftSegment runs craft with one retry and always returns a terminal
// segment: Crafted, or Failed with zero duration.
func (w *Worker) craftSegment(c chain.Chain, prior *chain.Segment, next chain.Segment) chain.Segment {
	var overrides fabricator.Overrides
	if w.override != nil {
		overrides = *w.override
	}
	var lastErr error
	for attempt := 0; attempt < craftAttempts; attempt++ {
		next.Attempt = attempt
		started := w.opts.Clock()
		out, err := craft.Craft(craft.Input{
			Source:    w.opts.Source,
			Chain:     c,
			Template:  w.opts.Template,
			Prior:     prior,
			Segment:   next,
			Seed:      craft.SegmentSeed(c.Seed, next.ID, attempt),
			Overrides: overrides,
			Scorer:    w.opts.Scorer,
			Logger:    w.log,
		})
		took := w.opts.Clock().Sub(started)
		if err == nil {
			now := w.opts.Clock().UTC()
			seg := out.Segment
			seg.CreatedAt, seg.UpdatedAt = now, now
			w.override = nil
			w.opts.Metrics.Crafted(w.chainID, string(seg.Type), took)
			for _, m := range out.Missing {
				w.opts.Metrics.Missing(string(m.Entity))
			}
			w.log.Debug("segment crafted", "segment", seg.ID, "type", seg.Type, "attempt", attempt, "took", took)
			return seg
		}
		lastErr = err
		w.opts.Metrics.CraftFailed(took)
		w.log.Error("craft failed", "segment", next.ID, "attempt", attempt, "err", err)
	}
	now := w.opts.Clock().UTC()
	failed := next
	failed.DurationMicros = 0
	failed.Error = lastErr.Error()
	failed.CreatedAt, failed.UpdatedAt = now, now
	_ = failed.Transition(chain.SegmentFailed)
	return failed
}

func (w *Worker) failChain(ctx context.Context, c *chain.Chain) error {
	from := c.State
	if err := c.Transition(chain.StateFailed); err != nil {
		return fmt.Errorf("work: fail chain: %w", err)
	}
	c.UpdatedAt = w.opts.Clock().UTC()
	if err := w.opts.Store.UpdateChain(ctx, *c); err != nil {
		return fmt.Errorf("work: store chain: %w", err)
	}
	w.log.Error("chain failed", "consecutive_failures", w.failures)
	w.events.emit(Event{
		Kind: EventChainState, ChainID: c.ID, From: string(from), To: string(c.State), At: c.UpdatedAt,
		Message: fmt.Sprintf("%d consecutive failed segments", w.failures),
	})
	return nil
}

// DubCycle hands Crafted segments beginning before cursor + dub-ahead to the
// dubber in chain order. It returns how many segments were dubbed.
func (w *Worker) DubCycle(ctx context.Context, cursorMicros int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy.Store(true)
	defer w.busy.Store(false)

	store := w.opts.Store
	c, err := store.Chain(ctx, w.chainID)
	if err != nil {
		return 0, fmt.Errorf("work: load chain: %w", err)
	}
	segs, err := store.Segments(ctx, w.chainID, chain.SegmentCrafted)
	if err != nil {
		return 0, fmt.Errorf("work: crafted segments: %w", err)
	}
	limit := cursorMicros + w.opts.Template.DubAhead().Microseconds()
	dubbed := 0
	for _, seg := range segs {
		if seg.BeginAtChainMicros >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return dubbed, err
		}
		if err := w.transition(ctx, &seg, chain.SegmentDubbing); err != nil {
			return dubbed, err
		}
		out, derr := w.opts.Dubber.Dub(ctx, c, seg)
		if derr != nil {
			seg.Error = derr.Error()
			if err := w.transition(ctx, &seg, chain.SegmentFailed); err != nil {
				return dubbed, err
			}
			w.log.Error("dub failed", "segment", seg.ID, "err", derr)
			w.events.emit(Event{Kind: EventSegmentFailed, ChainID: w.chainID, SegmentID: seg.ID, From: string(chain.SegmentDubbing), To: string(seg.State), Message: seg.Error, At: seg.UpdatedAt})
			continue
		}
		seg.Output = &out
		if err := w.transition(ctx, &seg, chain.SegmentDubbed); err != nil {
			return dubbed, err
		}
		dubbed++
		w.opts.Metrics.Dubbed(w.chainID)
		w.events.emit(Event{Kind: EventSegmentDubbed, ChainID: w.chainID, SegmentID: seg.ID, From: string(chain.SegmentDubbing), To: string(seg.State), At: seg.UpdatedAt})
	}
	return dubbed, nil
}

func (w *Worker) transition(ctx context.Context, seg *chain.Segment, to chain.SegmentState) error {
	if err := seg.Transition(to); err != nil {
		return fmt.Errorf("work: %w", err)
	}
	seg.UpdatedAt = w.opts.Clock().UTC()
	if err := w.opts.Store.UpdateSegment(ctx, *seg); err != nil {
		return fmt.Errorf("work: store segment %d: %w", seg.ID, err)
	}
	return nil
}
