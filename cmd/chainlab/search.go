package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/chainlab/config"
	"github.com/poiesic/chainlab/search"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find the indexed chunks most similar to a query",
		ArgsUsage: "query...",
		Action:    searchAction,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:  "k",
				Usage: "Number of results",
				Value: search.DefaultK,
			},
			&cli.Float64Flag{
				Name:  "min-score",
				Usage: "Minimum cosine similarity",
				Value: -1,
			},
			&cli.Float64Flag{
				Name:  "keyword-boost",
				Usage: "Score added to chunks containing every query word",
			},
		}, storeFlags()...),
	}
}

func searchAction(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a query is required")
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

	searcher, err := w.NewSearcher(store, search.WithKeywordBoost(float32(c.Float64("keyword-boost"))))
	if err != nil {
		return err
	}

	start := time.Now()
	hits, err := searcher.FindSimilar(c.Context, query, c.Int("k"), float32(c.Float64("min-score")))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if len(hits) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, hit := range hits {
		fmt.Fprintf(out, "%d. [%.3f] %s#%d\n", i+1, hit.Score, hit.Chunk.Source, hit.Chunk.Index)
		fmt.Fprintf(out, "   %s\n\n", snippet(hit.Chunk.Content, 200))
	}
	fmt.Fprintf(c.App.ErrWriter, "%d result(s) in %v\n", len(hits), time.Since(start).Round(time.Millisecond))
	return nil
}

// snippet collapses whitespace and truncates text to limit runes.
func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
