package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/promptlab/internal/chain"
	"github.com/ashureev/promptlab/internal/domain"
	"github.com/spf13/cobra"
)

func (c *cli) chainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Create and inspect decision chains",
	}
	cmd.AddCommand(c.chainRunCmd(), c.chainListCmd(), c.chainShowCmd(), c.chainDeleteCmd())
	return cmd
}

func (c *cli) chainRunCmd() *cobra.Command {
	var iterations int
	var persist bool
	cmd := &cobra.Command{
		Use:   "run <context>",
		Short: "Run a decision chain over the given context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if iterations < 0 || iterations > c.app.Chains.MaxIterations() {
				return fmt.Errorf("--iterations must be between 0 and %d (0 = default)", c.app.Chains.MaxIterations())
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			ch, err := c.app.Chains.Process(ctx, strings.Join(args, " "), chain.Options{Persist: persist, Iterations: iterations})
			if err != nil {
				return err
			}
			printChain(cmd.OutOrStdout(), ch)
			return nil
		},
	}
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "Number of steps (default: CHAIN_MAX_ITERATIONS)")
	cmd.Flags().BoolVar(&persist, "persist", false, "Save the chain to the database")
	return cmd
}

func (c *cli) chainListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent saved chains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			chains, err := c.app.Chains.Recent(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(chains) == 0 {
				fmt.Fprintln(out, "No saved chains.")
				return nil
			}
			for _, ch := range chains {
				fmt.Fprintf(out, "%s  %-11s  %d steps  %s\n", ch.ChainID, ch.Status, len(ch.Steps), ch.Title)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of chains")
	return cmd
}

func (c *cli) chainShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <chain-id>",
		Short: "Print a saved chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			ch, err := c.app.Chains.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if ch == nil {
				return fmt.Errorf("chain %s not found", args[0])
			}
			printChain(cmd.OutOrStdout(), ch)
			return nil
		},
	}
}

func (c *cli) chainDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chain-id>",
		Short: "Delete a saved chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			ok, err := c.app.Chains.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("chain %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func printChain(w io.Writer, ch *domain.DecisionChain) {
	fmt.Fprintf(w, "%s\n", ch.Title)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintf(w, "ID:      %s\nStatus:  %s\nContext: %s\n\n", ch.ChainID, ch.Status, ch.Context)
	for _, s := range ch.Steps {
		fmt.Fprintf(w, "Step %d\n  Reasoning: %s\n  Decision:  %s\n", s.StepNumber, s.Reasoning, s.Decision)
	}
	if ch.FinalDecision != nil {
		fmt.Fprintf(w, "\nFinal: %s\n", *ch.FinalDecision)
	}
}
