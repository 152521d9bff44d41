package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/stockcore/counter"
	"github.com/unkn0wn-root/stockcore/internal/config"
)

// CounterResult is the json output of the counter commands.
type CounterResult struct {
	Name    string  `json:"name"`
	IDs     []int64 `json:"ids,omitempty"`
	Current int64   `json:"current"`
}

func NewCounterCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Inspect and move ID counters",
	}
	cmd.AddCommand(newCounterAllocateCommand(rootOpts))
	cmd.AddCommand(newCounterEnsureCommand(rootOpts))
	cmd.AddCommand(newCounterCurrentCommand(rootOpts))
	return cmd
}

func newCounterAllocateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name  string
		count int
	)
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Reserve a contiguous range of IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAllocator(cmd.Context(), func(ctx context.Context, a *counter.Allocator) error {
				ids, err := a.AllocateRange(ctx, name, count)
				if err != nil {
					return err
				}
				return printCounter(cmd.OutOrStdout(), rootOpts.Format, CounterResult{Name: name, IDs: ids, Current: ids[len(ids)-1]})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "counter name (e.g. productId)")
	cmd.Flags().IntVar(&count, "count", 1, "number of ids to reserve")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCounterEnsureCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name string
		min  int64
	)
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Raise a counter to at least --min (never lowers it)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAllocator(cmd.Context(), func(ctx context.Context, a *counter.Allocator) error {
				if err := a.EnsureAtLeast(ctx, name, min); err != nil {
					return err
				}
				cur, err := a.Current(ctx, name)
				if err != nil {
					return err
				}
				return printCounter(cmd.OutOrStdout(), rootOpts.Format, CounterResult{Name: name, Current: cur})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "counter name")
	cmd.Flags().Int64Var(&min, "min", 0, "lowest value the counter may hold afterwards")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("min")
	return cmd
}

func newCounterCurrentCommand(rootOpts *RootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Print the last issued ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAllocator(cmd.Context(), func(ctx context.Context, a *counter.Allocator) error {
				cur, err := a.Current(ctx, name)
				if err != nil {
					return err
				}
				return printCounter(cmd.OutOrStdout(), rootOpts.Format, CounterResult{Name: name, Current: cur})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "counter name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func withAllocator(ctx context.Context, f func(context.Context, *counter.Allocator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed load config: %w", err)
	}
	d, err := newDeps(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	a, err := d.allocator(ctx)
	if err != nil {
		return err
	}
	return f(ctx, a)
}

func printCounter(w io.Writer, format string, r CounterResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	if len(r.IDs) > 0 {
		_, err := fmt.Fprintf(w, "%s: allocated %d..%d (%d ids)\n", r.Name, r.IDs[0], r.IDs[len(r.IDs)-1], len(r.IDs))
		return err
	}
	_, err := fmt.Fprintf(w, "%s: %d\n", r.Name, r.Current)
	return err
}
