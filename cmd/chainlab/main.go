// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/chainlab"
	"github.com/poiesic/chainlab/config"
	"github.com/poiesic/chainlab/vectorstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "chainlab",
		Usage: "Prompt chains, retrieval and vector indexes over local or hosted models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file read before the process environment",
				Value: config.DefaultEnvFile,
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			askCommand(),
			serveCommand(),
			indexCommand(),
			searchCommand(),
			inspectCommand(),
			reembedCommand(),
			mcpCommand(),
		},
	}
}

// storeFlags select the vector store a command works on.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "store",
			Usage: "Vector store kind (badger, chroma, pgvector)",
			Value: vectorstore.KindBadger,
		},
		&cli.StringFlag{
			Name:    "index",
			Aliases: []string{"i"},
			Usage:   "Index location: badger directory, Chroma URL or Postgres DSN",
		},
	}
}

// openWorkspace loads settings and opens a workspace prepared for purposes.
func openWorkspace(c *cli.Context, purposes ...config.Purpose) (*chainlab.Workspace, error) {
	settings, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	return chainlab.Open(c.Context, settings, chainlab.WithPurposes(purposes...))
}

// openStore opens the store named by the store flags, defaulting a badger
// index to its usual directory.
func openStore(c *cli.Context, w *chainlab.Workspace) (vectorstore.Store, error) {
	location := c.String("index")
	store, err := w.OpenStore(c.Context, c.String("store"), location)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return store, nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
