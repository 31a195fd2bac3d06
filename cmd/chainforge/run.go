package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/craft"
	"github.com/kingrea/chainforge/internal/dub"
	"github.com/kingrea/chainforge/internal/logbook"
	"github.com/kingrea/chainforge/internal/logging"
	"github.com/kingrea/chainforge/internal/statusbridge"
	"github.com/kingrea/chainforge/internal/telemetry"
	"github.com/kingrea/chainforge/internal/tui"
	"github.com/kingrea/chainforge/internal/work"
)

const shutdownTimeout = 5 * time.Second

func runService(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.InitDir(cfg.ProjectDir); err != nil {
		return fmt.Errorf("initializing %s: %w", config.Dir, err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logOpts := logging.FromConfig(cfg.Project.Logging)
	if !runTUI {
		logOpts.Mirror = os.Stderr
	}
	logger, err := logging.New(cfg.ProjectDir, logOpts)
	if err != nil {
		return err
	}
	defer logger.Close()
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	defaults := cfg.Template(config.DefaultTemplate)
	writer := dub.NewJSONWriter(cfg.DubDir())
	writer.Channels = defaults.OutputChannels
	writer.FrameRate = defaults.OutputFrameRate

	metrics := telemetry.New(true)
	svc, err := work.NewService(work.Options{
		Production: cfg.Project.Production,
		Store:      store,
		Provider:   content.NewFileProvider(cfg.LibraryPath()),
		Templates:  cfg.Template,
		Dubber:     writer,
		Scorer:     craft.MemeScorer{},
		Metrics:    metrics,
		Logger:     logger.Slog(),
		Handlers:   []work.EventHandler{work.JournalHandler(journal)},
	})
	if err != nil {
		return err
	}
	if err := startChains(ctx, svc, store); err != nil {
		return err
	}

	bridge := statusbridge.NewServer(statusbridge.SettingsFromConfig(cfg), svc,
		statusbridge.WithMetrics(metrics.Handler()),
		statusbridge.WithLogger(logger),
	)
	if err := bridge.Start(ctx); err != nil && !errors.Is(err, statusbridge.ErrServerDisabled) {
		return err
	} else if err == nil {
		logger.Printf("status bridge listening on %s", bridge.BaseURL())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = bridge.Shutdown(shutdownCtx)
		}()
	}

	if !runTUI {
		return svc.Run(ctx)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()
	p := tea.NewProgram(tui.NewApp(svc, tui.WithLogbook(journal)), tea.WithAltScreen(), tea.WithContext(runCtx))
	_, uiErr := p.Run()
	cancel()
	runErr := <-done
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("running monitor: %w", uiErr)
	}
	return runErr
}

// startChains starts one chain per --template. With no templates and no
// chain left fabricating from an earlier run, the default template starts.
func startChains(ctx context.Context, svc *work.Service, store chain.Store) error {
	keys := runTemplates
	if len(keys) == 0 {
		chains, err := store.Chains(ctx)
		if err != nil {
			return err
		}
		for _, c := range chains {
			if c.State == chain.StateFabricate {
				return nil
			}
		}
		keys = []string{config.DefaultTemplate}
	}
	typ := chain.TypeProduction
	if runPreview {
		typ = chain.TypePreview
	}
	for _, key := range keys {
		c, err := svc.CreateChain(ctx, "", templateKey(key), typ)
		if err != nil {
			return err
		}
		if _, err := svc.Start(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

func runMonitor(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Project.Store.Driver == "memory" {
		return fmt.Errorf("monitor reads another process's store; configure the sqlite driver")
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		return err
	}
	p := tea.NewProgram(tui.NewApp(tui.StoreSource{Store: store}, tui.WithLogbook(journal)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running monitor: %w", err)
	}
	return nil
}
