package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/chainlab/config"
	"github.com/poiesic/chainlab/ingest"
)

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:   "index",
		Usage:  "Split, embed and store the text files of a directory",
		Action: indexAction,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Aliases:  []string{"d"},
				Usage:    "Directory to index",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "pattern",
				Usage: "Glob of files to index, relative to --dir",
				Value: ingest.DefaultPattern,
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Maximum chunk length in characters",
				Value: ingest.DefaultChunkSize,
			},
			&cli.IntFlag{
				Name:  "chunk-overlap",
				Usage: "Characters shared by neighbouring chunks",
				Value: ingest.DefaultChunkOverlap,
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks embedded per request",
				Value: 32,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Embedding requests in flight at once",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum retry attempts for failed operations",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Keep running and re-index files as they change",
			},
		}, storeFlags()...),
	}
}

func indexAction(c *cli.Context) error {
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	w, err := openWorkspace(c, config.PurposeEmbedding)
	if err != nil {
		return err
	}
	defer w.Close()

	store, err := openStore(c, w)
	if err != nil {
		return err
	}
	defer store.Close()

	ix, err := w.NewIndexer(store,
		ingest.WithChunking(c.Int("chunk-size"), c.Int("chunk-overlap")),
		ingest.WithBatchSize(c.Int("batch-size")),
		ingest.WithWorkers(c.Int("workers")),
		ingest.WithRetries(c.Int("max-retries"), c.Duration("retry-delay")),
		ingest.WithProgress(c.App.ErrWriter),
	)
	if err != nil {
		return err
	}

	dir, pattern := c.String("dir"), c.String("pattern")
	fmt.Fprintf(c.App.ErrWriter, "Directory: %s\n", dir)
	fmt.Fprintf(c.App.ErrWriter, "Pattern: %s\n", pattern)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", w.Settings().EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	report, err := ix.IndexDirectory(c.Context, dir, pattern)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Indexed %d documents as %d chunks (dimension %d) in %v\n",
		report.Documents, report.Chunks, report.Dimension, report.Elapsed.Round(time.Millisecond))

	if !c.Bool("watch") {
		return nil
	}
	fmt.Fprintf(c.App.ErrWriter, "Watching %s for changes (Ctrl-C to stop)\n", dir)
	return ix.Watch(c.Context, dir, pattern, func(changed []string, report *ingest.Report, err error) {
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "Re-indexing %d file(s) failed: %v\n", len(changed), err)
			return
		}
		fmt.Fprintf(c.App.Writer, "Re-indexed %d file(s) as %d chunks\n", len(changed), report.Chunks)
	})
}
