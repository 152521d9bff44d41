// Package cli holds the stockcore commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "text" | "json"
}

var validFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stockcore",
		Short: "stockcore - inventory back office core",
		Long:  "Session gate, ID allocator and tag-invalidated read cache for the inventory back office.",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCounterCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand(opts))
	return cmd
}
