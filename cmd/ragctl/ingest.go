package main

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bull/statute-rag/internal/indexer"
	"github.com/bull/statute-rag/internal/loader"
)

type ingestFlags struct {
	category  string
	force     bool
	chunkSize int
	overlap   int
	workers   int
	includes  []string
	excludes  []string
	quiet     bool
}

func newIngestCmd(a *app) *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest <file-or-directory>",
		Short: "Load, chunk, embed and index statute files",
		Long: `Indexes a statute file or every matching file under a directory.

Chunks whose text is unchanged since the last run are not embedded again,
unless --force is given. Files that fail are listed at the end; the run
continues past them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIngest(cmd, args[0], f)
		},
	}

	cmd.Flags().StringVar(&f.category, "category", "", "category stored with every chunk, e.g. 民法")
	cmd.Flags().BoolVar(&f.force, "force", false, "re-embed chunks even when unchanged")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 0, "characters per chunk (default from config)")
	cmd.Flags().IntVar(&f.overlap, "overlap", -1, "characters shared by adjacent chunks (default from config)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "files processed concurrently (default from config)")
	cmd.Flags().StringSliceVar(&f.includes, "include", nil, "doublestar glob of files to ingest (default from config)")
	cmd.Flags().StringSliceVar(&f.excludes, "exclude", nil, "doublestar glob of files to skip")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func (a *app) runIngest(cmd *cobra.Command, source string, f ingestFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	opts := indexer.Options{
		ChunkSize: a.cfg.Ingest.ChunkSize,
		Overlap:   a.cfg.Ingest.ChunkOverlap,
		Category:  f.category,
		Force:     f.force,
		Workers:   a.cfg.Ingest.Workers,
	}
	if f.chunkSize > 0 {
		opts.ChunkSize = f.chunkSize
	}
	if f.overlap >= 0 {
		opts.Overlap = f.overlap
	}
	if f.workers > 0 {
		opts.Workers = f.workers
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := a.cfg.NewEmbedder()
	if err != nil {
		return err
	}

	if !f.quiet {
		var (
			bar  *progressbar.ProgressBar
			once sync.Once
		)
		opts.OnProgress = func(p indexer.Progress) {
			once.Do(func() {
				bar = progressbar.NewOptions(p.Total,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionShowBytes(false),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(cmd.ErrOrStderr())
					}),
				)
			})
			bar.Set(p.Done)
		}
	}

	fmt.Fprintf(out, "Ingesting %s into %q...\n", source, a.cfg.Collection)
	includes, excludes := a.cfg.Ingest.Includes, a.cfg.Ingest.Excludes
	if len(f.includes) > 0 {
		includes = f.includes
	}
	if len(f.excludes) > 0 {
		if excludes == nil {
			excludes = loader.DefaultExcludes
		}
		excludes = append(slices.Clone(excludes), f.excludes...)
	}
	l := loader.New(includes, excludes)
	pipeline := indexer.NewPipeline(l, embedder, store, a.cfg.Collection, a.logger)

	summary, err := pipeline.Ingest(ctx, source, opts)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Ingestion complete!")
	fmt.Fprintf(out, "  Files processed: %d\n", summary.FilesProcessed)
	fmt.Fprintf(out, "  Files skipped:   %d\n", summary.FilesSkipped)
	fmt.Fprintf(out, "  Chunks created:  %d\n", summary.ChunksCreated)
	fmt.Fprintf(out, "  Chunks unchanged: %d\n", summary.ChunksSkipped)
	fmt.Fprintf(out, "  Duration: %s\n", summary.Duration.Round(time.Millisecond))

	if len(summary.FailedFiles) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Failed files:")
		for _, failed := range summary.FailedFiles {
			fmt.Fprintf(out, "  - %s: %s\n", failed.SourceFile, failed.Reason)
		}
	}
	return nil
}
