package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/container-registry/containerd-operator/internal/hostfacts"
	"github.com/container-registry/containerd-operator/internal/kv"
	"github.com/container-registry/containerd-operator/internal/logger"
	"github.com/container-registry/containerd-operator/internal/reconciler"
	"github.com/container-registry/containerd-operator/pkg/config"
)

func newRenderCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Run a single reconciliation against the configured directories and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderOnce(cmd.Context(), opts)
		},
	}
}

// renderOnce reconciles with an in-memory store and a throwaway snapshot: it
// renders what the current configuration says, nothing more. Useful to
// inspect the output a config change would produce before applying it.
func renderOnce(ctx context.Context, opts *rootOptions) error {
	log := logger.NewLogger(opts.logLevel, opts.jsonLog)

	scratch, err := os.MkdirTemp("", "containerd-operator-render-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	cm, warnings, err := config.NewManager(opts.configPath, filepath.Join(scratch, "previous-config.json"))
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn().Msg(string(w))
	}

	rec := reconciler.New(reconciler.Options{
		FS:         afero.NewOsFs(),
		Store:      kv.NewMemoryStore(),
		Manager:    cm,
		Runner:     hostfacts.ExecRunner{},
		Log:        log,
		ConfigDir:  opts.configDir,
		CertsDir:   opts.certsDir,
		ServiceDir: opts.serviceDir,
	})

	if err := rec.Reconcile(ctx); err != nil {
		return err
	}
	if state, msg := rec.Status(); state == reconciler.StateBlocked {
		return fmt.Errorf("configuration is blocked: %s", msg)
	}
	log.Info().Str("dir", opts.configDir).Msg("Rendered containerd configuration")
	return nil
}
