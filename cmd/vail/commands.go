package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vail-editor/vail/internal/config"
	"github.com/vail-editor/vail/internal/editor"
	"github.com/vail-editor/vail/internal/plugin"
	"github.com/vail-editor/vail/internal/plugin/broker"
	plua "github.com/vail-editor/vail/internal/plugin/lua"
	"github.com/vail-editor/vail/internal/plugin/schema"
)

// host bundles everything a subcommand needs after a load session.
type host struct {
	cfg config.Config
	log zerolog.Logger
	mgr *plugin.Manager
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "vail",
		Short:         "Vail plugin host",
		Long:          "Run and inspect the Vail editor's sandboxed Lua plugins.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	root.AddCommand(
		newPluginsCmd(&configPath),
		newCommandsCmd(&configPath),
		newExecCmd(&configPath),
		newRunCmd(&configPath),
	)
	return root
}

// startHost loads configuration, builds the plugin stack, and runs one
// load session.
func startHost(ctx context.Context, configPath string) (*host, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", cfg.LogLevel, err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	ed := editor.New()
	mgr := plugin.NewManager(
		plugin.NewLoader(cfg.PluginPaths, log),
		broker.New(ed, log),
		log,
		plugin.WithStateOptions(plua.WithExecutionBudget(cfg.ExecBudget)),
	)
	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}
	return &host{cfg: cfg, log: log, mgr: mgr}, nil
}

func newPluginsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List plugins and their lifecycle states",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := startHost(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer h.mgr.Shutdown(cmd.Context())

			for _, info := range h.mgr.Plugins() {
				line := fmt.Sprintf("%-20s %-13s %s", info.Name, info.State, info.Path)
				if info.Err != nil {
					line += fmt.Sprintf("  (%v)", info.Err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newCommandsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List registered commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := startHost(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer h.mgr.Shutdown(cmd.Context())

			for _, b := range h.mgr.Commands() {
				flags := ""
				if b.Command.Flags.Has(schema.FlagRange) {
					flags = "range"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s arity=%-6s %-6s plugin=%s\n",
					b.Command.Name, b.Command.Arity, flags, b.Owner)
			}
			return nil
		},
	}
}

func newExecCmd(configPath *string) *cobra.Command {
	var rangeSpec string

	cmd := &cobra.Command{
		Use:   "exec NAME [ARGS...]",
		Short: "Dispatch one command invocation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := parseRange(rangeSpec)
			if err != nil {
				return err
			}

			h, err := startHost(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer h.mgr.Shutdown(cmd.Context())

			return h.mgr.Dispatch(cmd.Context(), args[0], args[1:], rng)
		},
	}
	cmd.Flags().StringVar(&rangeSpec, "range", "", "line range A,B for range commands")
	return cmd
}

func newRunCmd(configPath *string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the plugin host running, optionally hot-reloading on changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			h, err := startHost(ctx, *configPath)
			if err != nil {
				return err
			}
			defer h.mgr.Shutdown(context.Background())

			if watch || h.cfg.Watch {
				w, err := plugin.NewWatcher(h.mgr, h.cfg.PluginPaths, h.log)
				if err != nil {
					return err
				}
				w.Start(ctx)
				defer w.Stop()
			}

			h.log.Info().Msg("plugin host running")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "reload plugins when sources change")
	return cmd
}

// parseRange parses "A,B" into an inclusive line range.
func parseRange(spec string) (*schema.Range, error) {
	if spec == "" {
		return nil, nil
	}
	parts := strings.SplitN(spec, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("bad range %q, want A,B", spec)
	}
	start, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad range start %q: %w", parts[0], err)
	}
	end, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad range end %q: %w", parts[1], err)
	}
	if start > end {
		return nil, fmt.Errorf("bad range %q: start exceeds end", spec)
	}
	return &schema.Range{Start: uint32(start), End: uint32(end)}, nil
}
