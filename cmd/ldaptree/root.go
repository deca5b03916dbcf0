package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
	"github.com/spf13/cobra"

	"github.com/isometry/ldaptree/internal/config"
	"github.com/isometry/ldaptree/internal/directory"
	"github.com/isometry/ldaptree/internal/ldap"
	"github.com/isometry/ldaptree/internal/metrics"
	"github.com/isometry/ldaptree/internal/metrics/prometheus"
)

// app carries what every command shares once the root command has run.
type app struct {
	configPath  string
	base        string
	logLevel    string
	metricsFile string

	cfg     *config.Config
	client  ldap.Client
	dir     directory.Directory
	metrics metrics.DirectoryMetrics

	// connect is replaced in tests.
	connect func(ctx context.Context, cfg *ldap.ConnectionConfig) (ldap.Client, error)
	stdout  io.Writer
}

func newApp() *app {
	return &app{
		connect: ldap.NewClient,
		stdout:  os.Stdout,
	}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ldaptree",
		Short:         "Browse and edit a directory as a tree of entries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/ldaptree/config.yaml)")
	flags.StringVar(&a.base, "base", "", "base DN that relative names are resolved against")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error or off")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	cmd.AddCommand(
		newShowCommand(a),
		newLsCommand(a),
		newTreeCommand(a),
		newSetCommand(a),
		newWhoAmICommand(a),
	)

	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("base") {
		cfg.Connection.BaseDN = a.base
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.TextfilePath = a.metricsFile
	}
	a.cfg = cfg

	ctx := a.logging(cmd.Context(), cfg.LogLevel())
	cmd.SetContext(ctx)

	a.metrics = metrics.NewNoopDirectoryMetrics()
	if cfg.Metrics.TextfilePath != "" {
		metrics.InitRegistry()
		a.metrics = prometheus.NewDirectoryMetrics()
	}

	client, err := a.connect(ctx, cfg.ConnectionConfig())
	if err != nil {
		return err
	}
	a.client = client
	a.dir = directory.Instrument(client, a.metrics)

	return nil
}

// logging installs the root logger and the module's log subsystems.
func (a *app) logging(ctx context.Context, level hclog.Level) context.Context {
	ctx = tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName("ldaptree"),
		tfsdklog.WithLevel(level),
		tfsdklog.WithoutLocation(),
	)
	return ldap.WithSubsystems(ctx, level)
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.cfg != nil && a.cfg.Metrics.TextfilePath != "" {
		errs = append(errs, metrics.WriteTextfile(a.cfg.Metrics.TextfilePath))
	}
	return errors.Join(errs...)
}

// entryOptions returns the projection options from the configuration.
func (a *app) entryOptions(extra ...directory.Option) []directory.Option {
	opts := []directory.Option{
		directory.WithMetrics(a.metrics),
		directory.WithErrorHandler(func(ctx context.Context, dn string, err error) {
			tflog.Warn(ctx, "Unsaved changes were lost", map[string]any{"dn": dn, "error": err.Error()})
		}),
	}
	if len(a.cfg.Projection.Attributes) > 0 {
		opts = append(opts, directory.WithAttributes(a.cfg.Projection.Attributes...))
	}
	if !a.cfg.Projection.LiveUpdate {
		opts = append(opts, directory.Deferred())
	}
	return append(opts, extra...)
}

// split resolves a command line name against the base DN. A name that
// already ends in the base DN is split back into its relative part.
func (a *app) split(name string) (base, rdn string, err error) {
	base = a.cfg.Connection.BaseDN
	if base == "" {
		return "", name, nil
	}
	if name == "" || name == "." {
		return base, "", nil
	}

	if rel, err := ldap.SplitDN(name, base); err == nil {
		return base, rel, nil
	} else if !errors.Is(err, ldap.ErrPathMismatch) {
		return "", "", fmt.Errorf("invalid name %q: %w", name, err)
	}
	return base, name, nil
}
