// Package main provides ragctl, the command-line tool for managing and
// querying the statute index.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bull/statute-rag/internal/api"
	"github.com/bull/statute-rag/internal/config"
	"github.com/bull/statute-rag/internal/storage"
)

// app carries state shared by all subcommands once the root pre-run has loaded it.
type app struct {
	configPath string
	collection string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Statute retrieval index tool",
		Long: `CLI tool for ingesting Chinese statute texts into the vector index and querying it.

Configuration is read from .env, the YAML file named by --config or CONFIG_FILE,
and environment variables such as STORE_PATH, STORE_HOST, COLLECTION_NAME,
EMBEDDING_BASE_URL and EMBEDDING_PROVIDER.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.collection != "" {
				cfg.Collection = a.collection
			}
			a.cfg = cfg
			a.logger = config.NewLogger(cfg.Logging, cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVarP(&a.collection, "collection", "c", "", "collection name (overrides COLLECTION_NAME)")

	root.AddCommand(
		newIngestCmd(a),
		newCollectionCmd(a),
		newSearchCmd(a),
		newContextCmd(a),
		newDeleteCmd(a),
		newScrollCmd(a),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

// printError reports err with the same stable code the HTTP API uses.
func printError(w io.Writer, err error) {
	_, code := api.Classify(err)
	fmt.Fprintf(w, "Error [%s]: %v\n", code, err)
}

// openStore opens the configured store; callers must Close it.
func (a *app) openStore(ctx context.Context) (storage.VectorStore, error) {
	store, err := a.cfg.OpenStore(ctx, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}
