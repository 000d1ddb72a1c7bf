// Package cli provides the command-line interface for the cookbook.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cookbook/internal/cookbook"
	applog "cookbook/internal/log"
	"cookbook/internal/tutorial"
)

// NewRootCmd creates the root command. Without a subcommand it runs the
// porridge tutorial against the configured database.
func NewRootCmd() *cobra.Command {
	var migrate bool

	rootCmd := &cobra.Command{
		Use:   "cookbook",
		Short: "Cookbook - object-relational mapping walkthrough",
		Long: `Cookbook stores dishes and their ingredients in a relational database.

Run without a subcommand it adds a porridge dish, reads it back, changes its
stars and removes it again, saving after every step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := newFactory(cmd, cookbook.WithMigrations(migrate)).CreateContext(ctx, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					applog.Error(ctx, "close context", "error", err)
				}
			}()

			_, err = tutorial.Run(ctx, c, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cookbook.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending schema migrations first")

	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newListCommand())

	return rootCmd
}

// newFactory reads settings from the root persistent flags cobra already parsed.
func newFactory(cmd *cobra.Command, opts ...cookbook.Option) *cookbook.Factory {
	return cookbook.NewFactory(append([]cookbook.Option{cookbook.WithFlags(cmd.Root().PersistentFlags())}, opts...)...)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
