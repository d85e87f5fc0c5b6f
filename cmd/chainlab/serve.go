package main

import (
	"github.com/urfave/cli/v2"

	"github.com/poiesic/chainlab/chain"
	"github.com/poiesic/chainlab/config"
	"github.com/poiesic/chainlab/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve a prompt chain over HTTP with invoke, batch and stream routes",
		Action: serveAction,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: server.DefaultAddr,
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Route prefix of the chain",
				Value: server.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "prompt",
				Usage: "Built-in prompt (assistant, translator, retrieval_qa)",
				Value: "translator",
			},
			&cli.StringFlag{
				Name:  "prompt-file",
				Usage: "YAML prompt file; overrides --prompt",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Inputs a batch request runs at once",
				Value: 4,
			},
			&cli.BoolFlag{
				Name:  "rag",
				Usage: "Also serve a retrieval chain over the index under /rag",
			},
		}, storeFlags()...),
	}
}

func serveAction(c *cli.Context) error {
	tmpl, err := loadTemplate(c.String("prompt"), c.String("prompt-file"))
	if err != nil {
		return err
	}

	purposes := []config.Purpose{config.PurposeChat}
	if c.Bool("rag") {
		purposes = append(purposes, config.PurposeEmbedding)
	}
	w, err := openWorkspace(c, purposes...)
	if err != nil {
		return err
	}
	defer w.Close()

	runnable, err := w.NewChain(tmpl, chain.WithConcurrency(c.Int("concurrency")))
	if err != nil {
		return err
	}

	srv := server.New()
	if err := srv.Register(c.String("path"), runnable); err != nil {
		return err
	}

	if c.Bool("rag") {
		store, err := openStore(c, w)
		if err != nil {
			return err
		}
		defer store.Close()
		retrieval, err := w.NewRetrieval(store, 4, chain.WithConcurrency(c.Int("concurrency")))
		if err != nil {
			return err
		}
		if err := srv.Register("rag", retrieval); err != nil {
			return err
		}
	}

	return srv.ListenAndServe(c.Context, c.String("addr"))
}
