package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/ashureev/promptlab/internal/textproc"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (c *cli) calcCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Add numbers to a running total, one per line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.chatLoop(cmd, c.app.Calculator, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue (default: new session)")
	return cmd
}

func (c *cli) transformCmd() *cobra.Command {
	var sessionID string
	var reset bool
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Enter text, then describe edits to apply to it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if reset {
				if sessionID == "" {
					return fmt.Errorf("--reset requires --session")
				}
				ctx, cancel := c.requestContext(cmd)
				defer cancel()
				ok, err := c.app.Transformer.Reset(ctx, sessionID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("session %s not found", sessionID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset\n", sessionID)
				return nil
			}
			return c.chatLoop(cmd, c.app.Transformer, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue (default: new session)")
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete the session instead of chatting")
	return cmd
}

// chatLoop feeds stdin lines to p until EOF or "exit".
func (c *cli) chatLoop(cmd *cobra.Command, p textproc.Processor, sessionID string) error {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s (type exit to quit)\n", sessionID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "exit" {
			return nil
		}

		ctx, cancel := c.requestContext(cmd)
		res, err := p.Process(ctx, line, sessionID)
		cancel()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Response)
	}
}
