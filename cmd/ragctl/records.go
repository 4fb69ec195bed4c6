package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bull/statute-rag/internal/storage"
)

func newDeleteCmd(a *app) *cobra.Command {
	var (
		ids        []string
		sourceFile string
		filters    []string
		yes        bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete records by id, source file or payload filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceFile != "" {
				filters = append(filters, "source_file="+sourceFile)
			}
			filter, err := parseFilterFlags(filters)
			if err != nil {
				return err
			}
			if len(ids) == 0 && filter == nil {
				return errors.New("nothing to delete: pass --ids, --source-file or --filter")
			}
			if !yes {
				return errors.New("refusing to delete without --yes")
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if len(ids) > 0 {
				if err := store.Delete(cmd.Context(), a.cfg.Collection, ids); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d id(s) from %q\n", len(ids), a.cfg.Collection)
			}
			if filter != nil {
				if err := store.DeleteByFilter(cmd.Context(), a.cfg.Collection, filter); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted records matching %v from %q\n", filters, a.cfg.Collection)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "record ids (repeatable or comma-separated)")
	cmd.Flags().StringVar(&sourceFile, "source-file", "", "delete every chunk of this source file")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, `payload filter, a JSON object like {"category":"民法"} or key=value (repeatable)`)
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the delete")
	return cmd
}

// scrollRecord is the printed form of a record; vectors are omitted.
type scrollRecord struct {
	ID      string          `json:"id"`
	Payload storage.Payload `json:"payload"`
}

func newScrollCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset string
		all    bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "scroll",
		Short: "Page through records ordered by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			var printed []scrollRecord
			for {
				page, next, err := store.Scroll(cmd.Context(), a.cfg.Collection, limit, offset)
				if err != nil {
					return err
				}
				for _, r := range page {
					if asJSON {
						printed = append(printed, scrollRecord{ID: r.ID, Payload: r.Payload})
						continue
					}
					fmt.Fprintf(out, "%s  %s #%d  %s\n", r.ID, r.Payload.SourceFile, r.Payload.ChunkIndex, preview(r.Payload.Text, 60))
				}
				offset = next
				if !all || next == "" {
					break
				}
			}

			if asJSON {
				if printed == nil {
					printed = []scrollRecord{}
				}
				return writeJSON(out, map[string]any{"records": printed, "next_offset": offset})
			}
			if offset != "" {
				fmt.Fprintf(out, "next offset: %s\n", offset)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "records per page")
	cmd.Flags().StringVar(&offset, "offset", "", "start at this id (inclusive)")
	cmd.Flags().BoolVar(&all, "all", false, "follow pages until the end")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
