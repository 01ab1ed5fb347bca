package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/container-registry/containerd-operator/internal/hostfacts"
	"github.com/container-registry/containerd-operator/internal/kv"
	"github.com/container-registry/containerd-operator/internal/logger"
	"github.com/container-registry/containerd-operator/internal/operator"
	"github.com/container-registry/containerd-operator/internal/reconciler"
	"github.com/container-registry/containerd-operator/internal/watcher"
	"github.com/container-registry/containerd-operator/pkg/config"
)

const statusInterval = 5 * time.Minute

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent: watch config and relations, reconcile, restart containerd",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), opts)
		},
	}
}

func runAgent(ctx context.Context, opts *rootOptions) error {
	// Optional; the environment usually comes from the service unit.
	_ = godotenv.Load()

	log := logger.NewLogger(opts.logLevel, opts.jsonLog)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(opts.dataDir, 0o755); err != nil {
		return err
	}

	cm, warnings, err := config.NewManager(opts.configPath, filepath.Join(opts.dataDir, "previous-config.json"))
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn().Msg(string(w))
	}

	store, err := kv.OpenBolt(filepath.Join(opts.dataDir, "unitdata.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	runner := hostfacts.ExecRunner{}
	rec := reconciler.New(reconciler.Options{
		FS:         afero.NewOsFs(),
		Store:      store,
		Manager:    cm,
		Runner:     runner,
		Log:        log,
		ConfigDir:  opts.configDir,
		CertsDir:   opts.certsDir,
		ServiceDir: opts.serviceDir,
	})
	op := operator.New(operator.Options{
		Reconciler: rec,
		Store:      store,
		Manager:    cm,
		Runner:     runner,
		Log:        log,
	})

	g, ctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: opts.metricsAddr, Handler: mux}
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := op.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return watcher.Watch(ctx, log, op, opts.configPath, opts.relationsDir)
	})

	g.Go(func() error {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := op.Dispatch(ctx, operator.Event{Kind: operator.EventUpdateStatus}); err != nil {
					return nil
				}
			}
		}
	})

	log.Info().Str("config", opts.configPath).Msg("Agent started")
	return g.Wait()
}
