package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/chainlab/config"
	"github.com/poiesic/chainlab/reembed"
)

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:   "reembed",
		Usage:  "Rebuild an index into a new one with the configured embedding model",
		Action: reembedAction,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "target-store",
				Usage: "Vector store kind of the new index",
				Value: "badger",
			},
			&cli.StringFlag{
				Name:     "target",
				Aliases:  []string{"t"},
				Usage:    "Location of the new index",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks to process in each batch",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N chunks",
				Value: 100,
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
		}, storeFlags()...),
	}
}

func reembedAction(c *cli.Context) error {
	// Create reembedding config
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	w, err := openWorkspace(c, config.PurposeEmbedding)
	if err != nil {
		return err
	}
	defer w.Close()

	source, err := openStore(c, w)
	if err != nil {
		return err
	}
	defer source.Close()

	iterable, ok := source.(reembed.Source)
	if !ok {
		return fmt.Errorf("%s index cannot enumerate its chunks", c.String("store"))
	}

	target, err := w.OpenStore(c.Context, c.String("target-store"), c.String("target"))
	if err != nil {
		return fmt.Errorf("failed to open target index: %w", err)
	}
	defer target.Close()

	model := w.Settings().EmbeddingModel
	reembedder := reembed.NewReembedder(iterable, target, w.Embedder(), model, reembedConfig, c.App.ErrWriter)

	fmt.Fprintf(c.App.ErrWriter, "Source: %s %s\n", c.String("store"), c.String("index"))
	fmt.Fprintf(c.App.ErrWriter, "Target: %s %s\n", c.String("target-store"), c.String("target"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", model)
	fmt.Fprintln(c.App.ErrWriter)

	if err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}
