package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rexliu/ordo/pkg/config"
	"github.com/rexliu/ordo/pkg/core"
	"github.com/rexliu/ordo/pkg/vcs/git"
)

// version is overridden at link time with -ldflags "-X main.version=...".
var version = "dev"

func newInitCommand(opts *rootOptions) *cobra.Command {
	var name, backend string
	var force, history bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a local profile (writes config.toml)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(opts.Profile, 0o700); err != nil {
				return err
			}
			path := filepath.Join(opts.Profile, config.FileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}
			cfg := config.DefaultProfile(name)
			cfg.Storage.Backend = backend
			cfg.VCS.Enabled = history
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized profile %s at %s\n", cfg.ProfileName, opts.Profile)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "dev", "profile name")
	cmd.Flags().StringVar(&backend, "backend", "sqlite", "storage backend (sqlite|memory)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	cmd.Flags().BoolVar(&history, "history", false, "commit snapshot.json to a git repository after each change")
	return cmd
}

func newPingCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			var res struct {
				Now      int64 `json:"now" yaml:"now"`
				UptimeMs int64 `json:"uptimeMs" yaml:"uptimeMs"`
			}
			if err := client.Call(cmd.Context(), "ping", nil, &res); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "daemon responded: now=%d uptime=%dms\n", res.Now, res.UptimeMs)
				return err
			})
		},
	}
}

func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the current snapshot from the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			var snap core.Snapshot
			if err := client.Call(cmd.Context(), "get_snapshot", nil, &snap); err != nil {
				return err
			}
			view := struct {
				Version string     `json:"version" yaml:"version"`
				Count   int        `json:"count" yaml:"count"`
				Items   []itemView `json:"items" yaml:"items"`
			}{snap.Version, snap.Count, toViews(snap.Items)}
			return render(cmd.OutOrStdout(), opts.Format, view, func(w io.Writer) error {
				fmt.Fprintf(w, "snapshot %s (%d items)\n", view.Version, view.Count)
				return printItemTable(w, view.Items)
			})
		},
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream items_changed events from the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			if opts.Format == "text" {
				fmt.Fprintln(out, "subscribed to items_changed events (Ctrl+C to exit)")
			}
			return client.Stream(ctx, "subscribe_events", func(frame []byte) error {
				var ev struct {
					Type string `json:"type" yaml:"type"`
					Op   string `json:"op" yaml:"op"`
					ID   string `json:"id" yaml:"id"`
					At   int64  `json:"at" yaml:"at"`
				}
				if err := json.Unmarshal(frame, &ev); err != nil {
					return fmt.Errorf("decode event: %w", err)
				}
				return render(out, opts.Format, ev, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s %s %s\n", formatMillis(ev.At), ev.Op, ev.ID)
					return err
				})
			})
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show snapshot commits recorded by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			var res struct {
				Enabled bool        `json:"enabled" yaml:"enabled"`
				Commits []git.Entry `json:"commits" yaml:"commits"`
			}
			if err := client.Call(cmd.Context(), "get_history", map[string]int{"limit": limit}, &res); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) error {
				if !res.Enabled {
					_, err := fmt.Fprintln(w, "history disabled (set vcs.enabled in config.toml)")
					return err
				}
				for _, c := range res.Commits {
					fmt.Fprintf(w, "%.10s  %s  %s\n", c.Hash, formatMillis(c.At), c.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum commits to show (0 for all)")
	return cmd
}

func newDiagCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diag",
		Short: "Print resolved profile paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadProfile(opts.Profile)
			if err != nil {
				return err
			}
			diag := struct {
				Profile string `json:"profile" yaml:"profile"`
				Config  string `json:"config" yaml:"config"`
				Backend string `json:"backend" yaml:"backend"`
				DBPath  string `json:"dbPath,omitempty" yaml:"dbPath,omitempty"`
				Socket  string `json:"socket" yaml:"socket"`
				LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
				History string `json:"history" yaml:"history"`
			}{
				Profile: cfg.ProfileName,
				Config:  filepath.Join(opts.Profile, config.FileName),
				Backend: cfg.Storage.Backend,
				Socket:  config.ResolvePath(opts.Profile, cfg.IPC.SocketPath),
				History: "disabled",
			}
			if cfg.VCS.Enabled {
				diag.History = "branch " + cfg.VCS.Branch
			}
			if cfg.Storage.Backend == "sqlite" {
				diag.DBPath = config.ResolvePath(opts.Profile, cfg.Storage.DBPath)
			}
			if cfg.Logging.FilePath != "" {
				diag.LogFile = config.ResolvePath(opts.Profile, cfg.Logging.FilePath)
			}
			return render(cmd.OutOrStdout(), opts.Format, diag, func(w io.Writer) error {
				fmt.Fprintf(w, "Profile: %s\n", diag.Profile)
				fmt.Fprintf(w, "Config: %s\n", diag.Config)
				fmt.Fprintf(w, "Backend: %s\n", diag.Backend)
				if diag.DBPath != "" {
					fmt.Fprintf(w, "DB Path: %s\n", diag.DBPath)
				}
				fmt.Fprintf(w, "Socket: %s\n", diag.Socket)
				if diag.LogFile != "" {
					fmt.Fprintf(w, "Log File: %s\n", diag.LogFile)
				}
				fmt.Fprintf(w, "History: %s\n", diag.History)
				return nil
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ordo %s\n", version)
		},
	}
}
