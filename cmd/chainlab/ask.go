package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/chainlab/chain"
	"github.com/poiesic/chainlab/config"
	"github.com/poiesic/chainlab/prompt"
)

var errInvalidVar = errors.New("variables must look like name=value")

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Run a prompt chain once, or line by line from stdin when no text is given",
		ArgsUsage: "[text...]",
		Action:    askAction,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "prompt",
				Usage: "Built-in prompt (assistant, translator, retrieval_qa)",
				Value: "assistant",
			},
			&cli.StringFlag{
				Name:  "prompt-file",
				Usage: "YAML prompt file; overrides --prompt",
			},
			&cli.StringSliceFlag{
				Name:  "var",
				Usage: "Template variable as name=value (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "stream",
				Usage: "Print the answer as it is generated",
			},
			&cli.BoolFlag{
				Name:  "rag",
				Usage: "Answer from the chunks of the index instead of a plain prompt",
			},
			&cli.IntFlag{
				Name:  "k",
				Usage: "Chunks retrieved per question with --rag",
				Value: 4,
			},
		}, storeFlags()...),
	}
}

func askAction(c *cli.Context) error {
	vars, err := parseVars(c.StringSlice("var"))
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

	var runnable chain.Runnable
	if c.Bool("rag") {
		store, err := openStore(c, w)
		if err != nil {
			return err
		}
		defer store.Close()
		runnable, err = w.NewRetrieval(store, c.Int("k"))
		if err != nil {
			return err
		}
	} else {
		tmpl, err := loadTemplate(c.String("prompt"), c.String("prompt-file"))
		if err != nil {
			return err
		}
		runnable, err = w.NewChain(tmpl)
		if err != nil {
			return err
		}
	}

	run := func(text string) error {
		input, err := buildInput(runnable.InputVariables(), vars, text)
		if err != nil {
			return err
		}
		return runOnce(c.Context, c.App.Writer, runnable, input, c.Bool("stream"))
	}

	if c.Args().Len() > 0 {
		return run(strings.Join(c.Args().Slice(), " "))
	}

	scanner := bufio.NewScanner(c.App.Reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := run(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runOnce(ctx context.Context, out io.Writer, runnable chain.Runnable, input map[string]any, stream bool) error {
	if !stream {
		answer, err := runnable.Invoke(ctx, input)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, answer)
		return err
	}

	_, err := runnable.Stream(ctx, input, func(ctx context.Context, chunk string) error {
		_, err := io.WriteString(out, chunk)
		return err
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

// loadTemplate returns the template in file, or the preset called name.
func loadTemplate(name, file string) (*prompt.Template, error) {
	if file != "" {
		return prompt.LoadFile(file)
	}
	tmpl, ok := prompt.Preset(name)
	if !ok {
		return nil, fmt.Errorf("unknown prompt %q", name)
	}
	return tmpl, nil
}

func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidVar, pair)
		}
		vars[name] = value
	}
	return vars, nil
}

// buildInput fills the first template variable not set by vars with text.
func buildInput(variables []string, vars map[string]string, text string) (map[string]any, error) {
	input := make(map[string]any, len(variables))
	for name, value := range vars {
		input[name] = value
	}
	if text == "" {
		return input, nil
	}
	for _, name := range variables {
		if _, ok := input[name]; !ok {
			input[name] = text
			return input, nil
		}
	}
	return nil, fmt.Errorf("text given but every prompt variable is already set")
}
