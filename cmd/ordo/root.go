package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/rexliu/ordo/pkg/config"
	"github.com/rexliu/ordo/pkg/core"
	"github.com/rexliu/ordo/pkg/ipc"
)

const defaultProfile = "./_dev_profile"

var validFormats = []string{"text", "json", "yaml"}

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	Profile string
	Socket  string
	Format  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ordo",
		Short:         "ordo - ordered collection client",
		Long:          "Talks to the ordod daemon to create, reorder and inspect items of an ordered collection.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", defaultProfile, "profile directory")
	cmd.PersistentFlags().StringVar(&opts.Socket, "socket", "", "override IPC socket path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newPingCommand(opts))
	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newUpdateCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newMoveCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newDiagCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func (o *rootOptions) socketPath() (string, error) {
	if o.Socket != "" {
		return o.Socket, nil
	}
	cfg, err := config.LoadProfile(o.Profile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config not found in %s (run 'ordo init --profile %s')", o.Profile, o.Profile)
		}
		return "", fmt.Errorf("load config: %w", err)
	}
	return config.ResolvePath(o.Profile, cfg.IPC.SocketPath), nil
}

func (o *rootOptions) client() (*ipc.Client, error) {
	path, err := o.socketPath()
	if err != nil {
		return nil, err
	}
	return ipc.NewClient(path), nil
}

// Exit codes distinguish daemon-reported request errors from everything else.
const (
	exitFailure  = 1
	exitRejected = 2
	exitConflict = 3
)

func exitCode(err error) int {
	if errors.Is(err, core.ErrBadRequest) {
		return exitRejected
	}
	var rpcErr *ipc.Error
	if !errors.As(err, &rpcErr) {
		return exitFailure
	}
	switch rpcErr.Code {
	case ipc.CodeConflict:
		return exitConflict
	case ipc.CodeBadRequest, ipc.CodeNotFound, ipc.CodeInvalidRequest:
		return exitRejected
	default:
		return exitFailure
	}
}
