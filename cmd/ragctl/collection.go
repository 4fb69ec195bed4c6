package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bull/statute-rag/internal/storage"
)

func newCollectionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage vector collections",
	}
	cmd.AddCommand(
		newCollectionListCmd(a),
		newCollectionInfoCmd(a),
		newCollectionCreateCmd(a),
		newCollectionDropCmd(a),
	)
	return cmd
}

// nameArg returns the first argument, or the configured collection.
func (a *app) nameArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.Collection
}

func newCollectionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			names, err := store.ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No collections.")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newCollectionInfoCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info [name]",
		Short: "Show record count, dimension and distance metric",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context(), a.nameArg(args))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), statsJSON(stats))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Collection: %s\n", stats.Collection)
			fmt.Fprintf(out, "  Records:   %d\n", stats.RecordCount)
			fmt.Fprintf(out, "  Dimension: %d\n", stats.Dimension)
			fmt.Fprintf(out, "  Distance:  %s\n", stats.Distance)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCollectionCreateCmd(a *app) *cobra.Command {
	var (
		dimension int
		distance  string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a collection",
		Long: `Creates a collection. Creating one that already exists with the same
dimension and distance is a no-op; a different configuration fails unless
--force is given, which drops every record and recreates it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dist, err := storage.ParseDistance(distance)
			if err != nil {
				return err
			}
			if dimension <= 0 {
				dimension = a.cfg.Embedding.Dimension
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			name := a.nameArg(args)
			if err := store.CreateCollection(cmd.Context(), name, dimension, dist, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collection %q ready (dimension %d, %s)\n", name, dimension, dist)
			return nil
		},
	}
	cmd.Flags().IntVar(&dimension, "dim", 0, "vector dimension (default from config)")
	cmd.Flags().StringVar(&distance, "distance", "Cosine", "distance metric: Cosine or Dot")
	cmd.Flags().BoolVar(&force, "force", false, "drop and recreate on conflict")
	return cmd
}

func newCollectionDropCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop <name>",
		Short: "Delete a collection and all its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to drop without --yes")
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collection %q dropped\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the drop")
	return cmd
}
