package main

import (
	"github.com/urfave/cli/v2"

	"github.com/poiesic/chainlab/config"
	"github.com/poiesic/chainlab/mcpserver"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp",
		Usage:  "Run an MCP server on stdio with the ask tool, plus search when --index is set",
		Action: mcpAction,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "prompt",
				Usage: "Built-in prompt answering the ask tool",
				Value: "assistant",
			},
			&cli.StringFlag{
				Name:  "prompt-file",
				Usage: "YAML prompt file; overrides --prompt",
			},
		}, storeFlags()...),
	}
}

func mcpAction(c *cli.Context) error {
	tmpl, err := loadTemplate(c.String("prompt"), c.String("prompt-file"))
	if err != nil {
		return err
	}

	withIndex := c.IsSet("index")
	purposes := []config.Purpose{config.PurposeChat}
	if withIndex {
		purposes = append(purposes, config.PurposeEmbedding)
	}
	w, err := openWorkspace(c, purposes...)
	if err != nil {
		return err
	}
	defer w.Close()

	assistant, err := w.NewChain(tmpl)
	if err != nil {
		return err
	}

	var opts []mcpserver.Option
	if withIndex {
		store, err := openStore(c, w)
		if err != nil {
			return err
		}
		defer store.Close()
		searcher, err := w.NewSearcher(store)
		if err != nil {
			return err
		}
		opts = append(opts, mcpserver.WithRetriever(searcher))
	}

	srv, err := mcpserver.New(assistant, opts...)
	if err != nil {
		return err
	}
	return srv.Run(c.Context)
}
