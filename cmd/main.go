package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appconfig "github.com/longregen/alicia-sub010/internal/config"
	"github.com/longregen/alicia-sub010/internal/tools"
	"github.com/longregen/alicia-sub010/pkg/protocol"
	"github.com/longregen/alicia-sub010/pkg/runtime"
)

const shutdownTimeout = 5 * time.Second

type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	runCmd := newRunCmd(flags)

	root := &cobra.Command{
		Use:           "assistant-client",
		Short:         "Device client for the assistant backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCmd.RunE,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file path")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(runCmd)
	root.AddCommand(newToolsCmd(flags))
	return root
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the backend and serve device tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := runtime.New(flags.configPath, flags.verbose)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			runErr := app.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil && runErr == nil {
				return err
			}
			return runErr
		},
	}
}

func newToolsCmd(flags *globalFlags) *cobra.Command {
	var manifest string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool descriptors sent to the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if manifest == "" {
				cfg, err := appconfig.Load(flags.configPath)
				if err != nil {
					return err
				}
				manifest = cfg.Tools.Manifest
			}
			registry, err := tools.LoadRegistry(manifest)
			if err != nil {
				return err
			}
			return printDescriptors(cmd.OutOrStdout(), registry.Descriptors())
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "tool manifest path (overrides config)")
	return cmd
}

func printDescriptors(w io.Writer, descs []protocol.ToolDescriptor) error {
	out := make([]map[string]any, 0, len(descs))
	for _, d := range descs {
		out = append(out, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"inputSchema": protocol.ToAny(d.InputSchema),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
