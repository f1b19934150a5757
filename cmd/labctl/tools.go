package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/promptlab/internal/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func (c *cli) toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List, call and serve the built-in tools",
	}
	cmd.AddCommand(c.toolsListCmd(), c.toolsCallCmd(), c.toolsServeCmd())
	return cmd
}

func (c *cli) toolClient() (*tools.Client, error) {
	if c.app.Tools == nil {
		return nil, errors.New("tools are disabled (TOOLS_ENABLED=false)")
	}
	return c.app.Tools, nil
}

func (c *cli) toolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := c.toolClient()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			infos, err := tc.ListTools(ctx)
			if err != nil {
				return err
			}
			for _, t := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", t.Name, t.Description)
			}
			return nil
		},
	}
}

func (c *cli) toolsCallCmd() *cobra.Command {
	var rawJSON string
	cmd := &cobra.Command{
		Use:   "call <tool> [key=value ...]",
		Short: "Call a tool and print its JSON result",
		Example: `  labctl tools call calculate expression="2 + 3 * 4"
  labctl tools call format_text text="hello world" format_type=upper`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := c.toolClient()
			if err != nil {
				return err
			}
			toolArgs, err := parseToolArgs(rawJSON, args[1:])
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			res, err := tc.CallTool(ctx, args[0], toolArgs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&rawJSON, "json", "", "Arguments as a JSON object")
	return cmd
}

// parseToolArgs merges a JSON object with key=value pairs; pairs win.
func parseToolArgs(rawJSON string, pairs []string) (map[string]any, error) {
	out := map[string]any{}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &out); err != nil {
			return nil, fmt.Errorf("--json: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q must be key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func (c *cli) toolsServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over stdio for external clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdio := server.NewStdioServer(tools.NewServer())
			return stdio.Listen(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
