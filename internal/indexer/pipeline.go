// Package indexer loads statute sources, splits them into chunks and stores
// their embeddings.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/bull/statute-rag/internal/chunker"
	"github.com/bull/statute-rag/internal/embedding"
	"github.com/bull/statute-rag/internal/loader"
	"github.com/bull/statute-rag/internal/storage"
)

// chunkNamespace scopes the name-based UUIDs of chunk records.
var chunkNamespace = uuid.MustParse("7d1b3c3e-5f0a-4c52-9a4e-3b8f1e6d2a90")

// ChunkID returns the record id of a chunk. The same source file and chunk
// index always map to the same id, so re-ingestion overwrites in place.
func ChunkID(sourceFile string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(sourceFile+"#"+strconv.Itoa(chunkIndex))).String()
}

// ContentHash fingerprints chunk text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Options controls one ingestion run.
type Options struct {
	ChunkSize int
	Overlap   int
	Category  string
	// Force re-embeds chunks even when their stored content hash matches.
	Force bool
	// Workers is the number of files processed concurrently. Values below 1 mean 1.
	Workers int
	// OnProgress is called after each file. Calls are serialised.
	OnProgress func(Progress)
}

// Progress reports a finished file.
type Progress struct {
	SourceFile string
	Done       int
	Total      int
	Chunks     int
	Err        error
}

// FailedFile represents a file that failed to ingest.
type FailedFile struct {
	SourceFile string
	Reason     string
}

// Summary contains statistics about an ingestion run.
type Summary struct {
	FilesProcessed int
	FilesSkipped   int
	ChunksCreated  int
	ChunksSkipped  int
	FailedFiles    []FailedFile
	Duration       time.Duration
}

// Pipeline orchestrates loading, chunking, embedding and storage.
type Pipeline struct {
	loader     *loader.Loader
	embedder   embedding.Gateway
	store      storage.VectorStore
	collection string
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline creates a new ingestion pipeline writing into collection.
func NewPipeline(l *loader.Loader, embedder embedding.Gateway, store storage.VectorStore, collection string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if l == nil {
		l = loader.New(nil, nil)
	}
	return &Pipeline{
		loader:     l,
		embedder:   embedder,
		store:      store,
		collection: collection,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type fileResult struct {
	chunks  int
	skipped int
	notText bool
	err     error
}

// Ingest indexes a file or directory. Per-file failures are collected in the
// summary; an error is returned only when the run could not start or ctx ended.
func (p *Pipeline) Ingest(ctx context.Context, source string, opts Options) (*Summary, error) {
	start := time.Now()

	ch, err := chunker.New(opts.ChunkSize, opts.Overlap)
	if err != nil {
		return nil, err
	}

	files, err := p.loader.Discover(source)
	if err != nil {
		return nil, fmt.Errorf("discover sources: %w", err)
	}
	p.logger.Info("Starting ingestion", "source", source, "files", len(files), "collection", p.collection)

	if err := p.store.CreateCollection(ctx, p.collection, p.embedder.Dimension(), storage.DistanceCosine, false); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	workers := max(opts.Workers, 1)
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		p.logger.Error("ingest worker panicked", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	summary := &Summary{}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		done int
	)

	record := func(file loader.File, res fileResult) {
		mu.Lock()
		defer mu.Unlock()

		switch {
		case res.notText:
			summary.FilesSkipped++
		case res.err != nil:
			summary.FailedFiles = append(summary.FailedFiles, FailedFile{SourceFile: file.SourceFile, Reason: res.err.Error()})
		default:
			summary.FilesProcessed++
			summary.ChunksCreated += res.chunks
			summary.ChunksSkipped += res.skipped
		}

		done++
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				SourceFile: file.SourceFile,
				Done:       done,
				Total:      len(files),
				Chunks:     res.chunks,
				Err:        res.err,
			})
		}
	}

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		file := file
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			res := fileResult{err: errors.New("worker panicked")}
			defer func() { record(file, res) }()
			res = p.processFile(ctx, file, ch, opts)
		})
		if err != nil {
			wg.Done()
			record(file, fileResult{err: fmt.Errorf("schedule: %w", err)})
		}
	}
	wg.Wait()

	sort.Slice(summary.FailedFiles, func(i, j int) bool {
		return summary.FailedFiles[i].SourceFile < summary.FailedFiles[j].SourceFile
	})
	summary.Duration = time.Since(start)

	p.logger.Info("Ingestion complete",
		"processed", summary.FilesProcessed,
		"skipped_files", summary.FilesSkipped,
		"failed", len(summary.FailedFiles),
		"chunks", summary.ChunksCreated,
		"unchanged_chunks", summary.ChunksSkipped,
		"duration", summary.Duration,
	)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// processFile handles the full pipeline for a single file.
func (p *Pipeline) processFile(ctx context.Context, file loader.File, ch *chunker.Chunker, opts Options) fileResult {
	doc, err := p.loader.Load(file)
	if errors.Is(err, loader.ErrNotText) {
		p.logger.Warn("Skipping non-text file", "file", file.SourceFile)
		return fileResult{notText: true}
	}
	if err != nil {
		p.logger.Warn("Failed to load file", "file", file.SourceFile, "error", err)
		return fileResult{err: fmt.Errorf("load: %w", err)}
	}

	chunks := ch.Split(doc.Text, file.SourceFile, opts.Category)
	if len(chunks) == 0 {
		p.logger.Warn("File has no text", "file", file.SourceFile)
		return fileResult{}
	}

	indexedAt := p.now()
	records := make([]storage.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = ChunkID(c.SourceFile, c.Index)
		records[i] = storage.Record{
			ID: ids[i],
			Payload: storage.Payload{
				Text:        c.Text,
				SourceFile:  c.SourceFile,
				Category:    c.Category,
				Offset:      c.Offset,
				ChunkIndex:  c.Index,
				IndexedAt:   indexedAt,
				ContentHash: ContentHash(c.Text),
				Title:       doc.Title,
				ChunkCount:  len(chunks),
			},
		}
	}

	pending := records
	if !opts.Force {
		existing, err := p.store.Get(ctx, p.collection, ids)
		if err != nil {
			return fileResult{err: fmt.Errorf("read existing chunks: %w", err)}
		}
		pending = changed(records, existing)
	}
	skipped := len(records) - len(pending)
	if len(pending) == 0 {
		p.logger.Debug("File unchanged", "file", file.SourceFile, "chunks", len(records))
		return fileResult{skipped: skipped}
	}

	texts := make([]string, len(pending))
	for i, r := range pending {
		texts[i] = r.Payload.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fileResult{err: fmt.Errorf("embed: %w", err)}
	}
	for i := range pending {
		pending[i].Vector = vectors[i]
	}

	if err := p.upsertWithRetry(ctx, pending); err != nil {
		return fileResult{err: fmt.Errorf("store chunks: %w", err)}
	}

	p.logger.Info("Indexed file", "file", file.SourceFile, "chunks", len(pending), "unchanged", skipped, "encoding", doc.Encoding)
	return fileResult{chunks: len(pending), skipped: skipped}
}

// changed returns the records whose stored version differs in anything but indexed_at.
func changed(records, existing []storage.Record) []storage.Record {
	stored := make(map[string]storage.Payload, len(existing))
	for _, r := range existing {
		stored[r.ID] = r.Payload
	}

	out := make([]storage.Record, 0, len(records))
	for _, r := range records {
		old, ok := stored[r.ID]
		if ok {
			old.IndexedAt = r.Payload.IndexedAt
			if old == r.Payload {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// upsertWithRetry retries a failed upsert once when the store was unavailable.
func (p *Pipeline) upsertWithRetry(ctx context.Context, records []storage.Record) error {
	operation := func() error {
		err := p.store.Upsert(ctx, p.collection, records)
		if err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 1)
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
