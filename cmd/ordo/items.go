package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rexliu/ordo/pkg/core"
)

type itemResult struct {
	Item core.Item `json:"item"`
}

type itemsResult struct {
	Items []core.Item `json:"items"`
}

// checkIDs rejects malformed ids locally; empty ids are skipped.
func checkIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := core.CheckItemID(id); err != nil {
			return err
		}
	}
	return nil
}

// callItem runs an item-returning method and prints the result.
func callItem(cmd *cobra.Command, opts *rootOptions, method string, params any) error {
	client, err := opts.client()
	if err != nil {
		return err
	}
	var res itemResult
	if err := client.Call(cmd.Context(), method, params, &res); err != nil {
		return err
	}
	view := toView(res.Item)
	return render(cmd.OutOrStdout(), opts.Format, view, func(w io.Writer) error {
		return printItemText(w, view)
	})
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <detail>",
		Short: "Append a new item to the end of the collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callItem(cmd, opts, "create_item", map[string]string{"detail": args[0]})
		},
	}
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a single item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkIDs(args[0]); err != nil {
				return err
			}
			return callItem(cmd, opts, "get_item", map[string]string{"id": args[0]})
		},
	}
}

func newUpdateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <detail>",
		Short: "Replace an item's detail text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkIDs(args[0]); err != nil {
				return err
			}
			return callItem(cmd, opts, "update_item", map[string]string{"id": args[0], "detail": args[1]})
		},
	}
}

func newMoveCommand(opts *rootOptions) *cobra.Command {
	var prev, next string
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Place an item between two neighbors",
		Long: `Place an item between two neighbors.

Omit --prev to move to the start of the list, omit --next to move to the end.
At least one neighbor is required.

Example:
  ordo move 01J9Z... --prev 01J9X... --next 01J9Y...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if prev == "" && next == "" {
				return fmt.Errorf("at least one of --prev or --next is required")
			}
			if err := checkIDs(args[0], prev, next); err != nil {
				return err
			}
			return callItem(cmd, opts, "move_item", core.MoveRequest{ItemID: args[0], PrevID: prev, NextID: next})
		},
	}
	cmd.Flags().StringVar(&prev, "prev", "", "id of the item that should precede")
	cmd.Flags().StringVar(&next, "next", "", "id of the item that should follow")
	return cmd
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkIDs(args[0]); err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			var res struct {
				Message string `json:"message"`
			}
			if err := client.Call(cmd.Context(), "delete_item", map[string]string{"id": args[0]}, &res); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, res.Message)
				return err
			})
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items in collection order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var method string
			switch by {
			case "order":
				method = "list_items"
			case "rank":
				method = "list_by_rank"
			default:
				return fmt.Errorf("invalid --by %q: must be order or rank", by)
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			var res itemsResult
			if err := client.Call(cmd.Context(), method, nil, &res); err != nil {
				return err
			}
			views := toViews(res.Items)
			return render(cmd.OutOrStdout(), opts.Format, views, func(w io.Writer) error {
				return printItemTable(w, views)
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "order", "ordering key (order|rank)")
	return cmd
}

func newVerifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that both ordering keys agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			var res struct {
				OK    bool   `json:"ok" yaml:"ok"`
				Count int    `json:"count" yaml:"count"`
				Error string `json:"error,omitempty" yaml:"error,omitempty"`
			}
			if err := client.Call(cmd.Context(), "verify", nil, &res); err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) error {
				if res.OK {
					_, err := fmt.Fprintf(w, "ok: %d items agree\n", res.Count)
					return err
				}
				_, err := fmt.Fprintf(w, "mismatch: %s\n", res.Error)
				return err
			}); err != nil {
				return err
			}
			if !res.OK {
				return fmt.Errorf("order keys disagree")
			}
			return nil
		},
	}
}
