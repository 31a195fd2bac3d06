package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/craft"
	"github.com/kingrea/chainforge/internal/dub"
	"github.com/kingrea/chainforge/internal/fabricator"
	"github.com/kingrea/chainforge/internal/logging"
	"github.com/kingrea/chainforge/internal/work"
)

// runCraft fabricates --seconds of a fresh in-memory chain in one go. It is
// the quickest way to audition a library without running the service.
func runCraft(cmd *cobra.Command, _ []string) error {
	if craftSeconds <= 0 {
		return fmt.Errorf("--seconds must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	key := templateKey(craftTemplate)
	tpl := cfg.Template(key)
	src, err := content.NewFileProvider(cfg.LibraryPath()).SourceMaterial(ctx, key)
	if err != nil {
		return err
	}

	seed := craftSeed
	if seed == 0 {
		seed = tpl.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	now := time.Now().UTC()
	store := chain.NewMemoryStore()
	c := chain.Chain{
		ID:          uuid.NewString(),
		Name:        key,
		Type:        chain.TypePreview,
		State:       chain.StateFabricate,
		TemplateKey: key,
		Seed:        seed,
		CreatedAt:   now,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateChain(ctx, c); err != nil {
		return err
	}

	out := craftOut
	if strings.TrimSpace(out) == "" {
		out = cfg.DubDir()
	}
	writer := dub.NewJSONWriter(out)
	writer.Channels = tpl.OutputChannels
	writer.FrameRate = tpl.OutputFrameRate

	logOpts := logging.FromConfig(cfg.Project.Logging)
	logger := slog.New(logging.NewHandler(os.Stderr, logOpts))
	missing := 0
	worker, err := work.NewWorker(c.ID, work.WorkerOptions{
		Store:    store,
		Source:   src,
		Template: tpl,
		Dubber:   writer,
		Scorer:   craft.MemeScorer{},
		Logger:   logger,
		Handlers: []work.EventHandler{work.EventHandlerFunc(func(e work.Event) {
			if e.Kind == work.EventMissingContent {
				missing += len(e.Missing)
			}
		})},
		MaxConsecutiveFailures: cfg.Project.Production.MaxConsecutiveFailures,
		MaxSegmentsPerCycle:    cfg.Project.Production.MaxSegmentsPerCycle,
	})
	if err != nil {
		return err
	}

	target := int64(craftSeconds * fabricator.MicrosPerSecond)
	cursor := target - tpl.CraftAhead().Microseconds()
	for {
		report, err := worker.CraftCycle(ctx, cursor)
		if err != nil {
			return fmt.Errorf("crafting: %w", err)
		}
		if report.ChainFailed {
			return fmt.Errorf("chain failed at %s after repeated faults", fabricator.FormatChainSeconds(report.FabricatedTo))
		}
		if !report.HitSegmentsCap {
			break
		}
	}
	dubbed, err := worker.DubCycle(ctx, target)
	if err != nil {
		return fmt.Errorf("dubbing: %w", err)
	}

	segs, err := store.Segments(context.WithoutCancel(ctx), c.ID)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, segmentTable(segs))
	fmt.Fprintf(w, "chain %s · seed %d · %d segments · %d dubbed to %s · %d missing content reports\n",
		c.ID, seed, len(segs), dubbed, out, missing)
	return nil
}

func segmentTable(segs []chain.Segment) string {
	rows := make([][]string, 0, len(segs))
	for _, s := range segs {
		programs := make([]string, 0, 2)
		for _, t := range []content.ProgramType{content.ProgramMacro, content.ProgramMain} {
			if choice, ok := s.ChoiceOf(t); ok {
				programs = append(programs, choice.ProgramID)
			}
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", s.ID),
			string(s.Type),
			string(s.State),
			fabricator.FormatChainSeconds(s.BeginAtChainMicros),
			fmt.Sprintf("%.0f", s.Tempo),
			s.Key,
			fmt.Sprintf("%.2f", s.Intensity),
			fmt.Sprintf("%d", s.Delta),
			strings.Join(programs, " / "),
			fmt.Sprintf("%d", len(s.Picks)),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers("#", "TYPE", "STATE", "BEGIN", "TEMPO", "KEY", "INT.", "DELTA", "MACRO / MAIN", "PICKS").
		Rows(rows...).
		String()
}
