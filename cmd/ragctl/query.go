package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/statute-rag/internal/api"
	"github.com/bull/statute-rag/internal/retrieval"
)

// newService opens the store and embedder and returns a retrieval service
// with a cleanup func.
func (a *app) newService(cmd *cobra.Command) (*retrieval.Service, func(), error) {
	store, err := a.openStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	embedder, err := a.cfg.NewEmbedder()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	svc := retrieval.NewService(embedder, store, retrieval.Config{
		Collection:   a.cfg.Collection,
		QueryTimeout: a.cfg.QueryTimeout,
	}, a.logger)
	return svc, func() { store.Close() }, nil
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		topK      int
		threshold float64
		filters   []string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search statutes by semantic similarity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilterFlags(filters)
			if err != nil {
				return err
			}
			svc, cleanup, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := svc.Search(cmd.Context(), retrieval.SearchQuery{
				Text:           strings.Join(args, " "),
				TopK:           topK,
				ScoreThreshold: threshold,
				Filter:         filter,
			})
			if err != nil {
				return err
			}

			if asJSON {
				resp := api.SearchResponse{Results: make([]api.SearchResult, len(results))}
				for i, r := range results {
					resp.Results[i] = api.SearchResult{
						ID: r.ID, Text: r.Text, SourceFile: r.SourceFile, Category: r.Category,
						Title: r.Title, Offset: r.Offset, ChunkIndex: r.ChunkIndex, Score: r.Score,
					}
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No matching statutes found.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. [%.3f] %s #%d\n   %s\n", i+1, r.Score, r.SourceFile, r.ChunkIndex, preview(r.Text, 120))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", api.DefaultTopK, "number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", api.DefaultScoreThreshold, "minimum similarity score")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, `payload filter, a JSON object or key=value (repeatable)`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newContextCmd(a *app) *cobra.Command {
	var (
		facts    string
		evidence string
		topK     int
		minScore float64
		filters  []string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Render statute context for case facts",
		Long: `Retrieves the statutes most relevant to the case facts and evidence chain
and prints them as the numbered block a drafting model receives.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilterFlags(filters)
			if err != nil {
				return err
			}
			svc, cleanup, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.GetContext(cmd.Context(), retrieval.ContextQuery{
				CaseFacts:     facts,
				EvidenceChain: evidence,
				TopK:          topK,
				MinScore:      minScore,
				Filter:        filter,
			})
			if err != nil {
				return err
			}

			if asJSON {
				resp := api.ContextResponse{Context: res.Context, Results: make([]api.ContextResult, len(res.Results))}
				for i, r := range res.Results {
					resp.Results[i] = api.ContextResult{Text: r.Text, SourceFile: r.SourceFile, Category: r.Category, Score: r.Score}
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Context)
			return nil
		},
	}
	cmd.Flags().StringVar(&facts, "facts", "", "case facts (required)")
	cmd.Flags().StringVar(&evidence, "evidence", "", "evidence chain")
	cmd.Flags().IntVarP(&topK, "top-k", "k", api.DefaultTopK, "number of statutes")
	cmd.Flags().Float64Var(&minScore, "min-score", api.DefaultMinScore, "minimum similarity score")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, `payload filter, a JSON object or key=value (repeatable)`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("facts")
	return cmd
}
