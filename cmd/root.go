// Package cmd wires the operator's command line: `run` is the long-lived
// agent, `render` a one-shot reconciliation for CI and debugging.
package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath   string
	dataDir      string
	relationsDir string
	configDir    string
	certsDir     string
	serviceDir   string
	logLevel     string
	jsonLog      bool
	metricsAddr  string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "containerd-operator",
		Short:         "Renders and reconciles the containerd registry and runtime configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.certsDir == "" {
				opts.certsDir = filepath.Join(opts.configDir, "certs.d")
			}
			if opts.relationsDir == "" {
				opts.relationsDir = filepath.Join(opts.dataDir, "relations")
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "/etc/containerd-operator/config.toml", "path to the operator configuration file")
	flags.StringVar(&opts.dataDir, "data-dir", "/var/lib/containerd-operator", "directory for the unit store and config snapshots")
	flags.StringVar(&opts.relationsDir, "relations-dir", "", "directory holding relation record files (default {data-dir}/relations)")
	flags.StringVar(&opts.configDir, "containerd-config-dir", "/etc/containerd", "containerd configuration directory")
	flags.StringVar(&opts.certsDir, "certs-dir", "", "registry hosts directory (default {containerd-config-dir}/certs.d)")
	flags.StringVar(&opts.serviceDir, "service-dir", "/etc/systemd/system/containerd.service.d", "systemd drop-in directory for the containerd service")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")
	flags.BoolVar(&opts.jsonLog, "json-logging", false, "emit JSON logs instead of console output")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "listen address for the metrics endpoint")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newRenderCommand(opts))
	return rootCmd
}

func Execute() error {
	return NewRootCommand().Execute()
}
