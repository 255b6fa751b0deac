package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"workflowai/internal/app"
	"workflowai/internal/config"
	"workflowai/internal/db"
	"workflowai/internal/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workflowctl",
		Short:         "Administrative tasks for the WorkflowAI backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newCreateAdminCommand())
	cmd.AddCommand(newReconcileCommand())
	cmd.AddCommand(newActiveCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withApp loads configuration, builds the services and runs fn against them.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, lg *zap.SugaredLogger) error) error {
	ctx := commandContext(cmd)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	lg := logger.New(cfg.LogLevel)
	defer lg.Sync()
	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, lg)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// opening the store runs the migrations
			return withApp(cmd, func(ctx context.Context, a *app.App, lg *zap.SugaredLogger) error {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func newCreateAdminCommand() *cobra.Command {
	var email, username, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator or promote an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("--password or ADMIN_PASSWORD is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App, lg *zap.SugaredLogger) error {
				return db.SeedAdmin(ctx, a.Store, email, username, password, lg)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Administrator email")
	cmd.Flags().StringVar(&username, "username", "admin", "Administrator username")
	cmd.Flags().StringVar(&password, "password", "", "Administrator password (defaults to $ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Delete local workflows whose n8n workflow no longer exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, lg *zap.SugaredLogger) error {
				n, err := a.Workflows.Reconcile(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned workflow(s)\n", n)
				return nil
			})
		},
	}
}

func newActiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List workflows that are active on n8n",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, lg *zap.SugaredLogger) error {
				list, err := a.Engine.ActiveWorkflows(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tUPDATED")
				for _, w := range list {
					updated := "-"
					if w.UpdatedAt != nil {
						updated = w.UpdatedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", w.ID, w.Name, updated)
				}
				return tw.Flush()
			})
		},
	}
}
