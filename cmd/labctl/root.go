package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/promptlab/internal/app"
	"github.com/ashureev/promptlab/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// cli carries state shared by every subcommand.
type cli struct {
	dbPath  string
	verbose bool
	timeout time.Duration

	app *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "labctl",
		Short: "Run the Prompt Lab demos from the command line",
		Long: `Run the Prompt Lab demos from the command line.

Subcommands:
  calc       - Running-total calculator
  transform  - Iterative text transformation
  chain      - Create and inspect decision chains
  tools      - List, call and serve the built-in tools`,
		SilenceUsage:      true,
		PersistentPreRunE: c.open,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}

	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite database path (default: DB_PATH)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 5*time.Minute, "Per-request timeout")

	root.AddCommand(c.calcCmd(), c.transformCmd(), c.chainCmd(), c.toolsCmd())
	return root
}

func (c *cli) open(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.DBPath = c.dbPath
	}

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a, err := app.New(cmd.Context(), cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	c.app = a
	return nil
}

func (c *cli) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.timeout)
}
