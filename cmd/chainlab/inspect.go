package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:   "inspect",
		Usage:  "Show the manifest of an index",
		Action: inspectAction,
		Flags:  storeFlags(),
	}
}

func inspectAction(c *cli.Context) error {
	w, err := openWorkspace(c)
	if err != nil {
		return err
	}
	defer w.Close()

	store, err := openStore(c, w)
	if err != nil {
		return err
	}
	defer store.Close()

	manifest, err := store.Manifest(c.Context)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if manifest == nil {
		fmt.Fprintln(out, "Index is empty.")
		return nil
	}
	fmt.Fprintf(out, "Embedding model: %s\n", manifest.EmbeddingModel)
	fmt.Fprintf(out, "Dimension:       %d\n", manifest.Dimension)
	fmt.Fprintf(out, "Chunks:          %d\n", manifest.Chunks)
	fmt.Fprintf(out, "Created:         %s\n", manifest.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Updated:         %s\n", manifest.UpdatedAt.Format(time.RFC3339))
	return nil
}
