package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/samcharles93/tokwrap/internal/logger"
	"github.com/samcharles93/tokwrap/internal/prompt"
	"github.com/samcharles93/tokwrap/internal/tokenizer"
	"github.com/urfave/cli/v3"
)

// options collects flag destinations shared by every command of one app.
type options struct {
	tokenizerPath string
	configPath    string
	familiesPath  string
	family        string
	wrapping      string
	logLevel      string
	logFormat     string
	debug         bool
	jsonOutput    bool
	addr          string

	maxImageBatch int64
}

func commonFlags(opts *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tokenizer",
			Aliases:     []string{"t"},
			Usage:       "path to a serialized SentencePiece model (tokenizer.spm)",
			Sources:     cli.EnvVars("TOKWRAP_TOKENIZER"),
			Destination: &opts.tokenizerPath,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml (default $XDG_CONFIG_HOME/tokwrap/config.yaml)",
			Destination: &opts.configPath,
		},
		&cli.StringFlag{
			Name:        "families",
			Usage:       "path to a YAML file with additional model families",
			Destination: &opts.familiesPath,
		},
		&cli.StringFlag{
			Name:        "family",
			Usage:       "model family whose markers and ids are used",
			Value:       "gemma",
			Destination: &opts.family,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &opts.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &opts.logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &opts.debug,
		},
	}
}

func wrappingFlags(opts *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "wrapping",
			Aliases:     []string{"w"},
			Usage:       "prompt wrapping (pt, it, paligemma, vlm)",
			Value:       "it",
			Destination: &opts.wrapping,
		},
		&cli.Int64Flag{
			Name:        "max-image-batch-size",
			Usage:       "largest number of image slots in one image block",
			Value:       256,
			Destination: &opts.maxImageBatch,
		},
	}
}

func jsonFlag(opts *options) cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "print results as JSON",
		Destination: &opts.jsonOutput,
	}
}

// setup is the Before hook of every command: it merges the config file
// into unset flags and installs the logger on the context.
func setup(opts *options) cli.BeforeFunc {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		cfg, err := LoadConfig(opts.configPath)
		if err != nil {
			return ctx, err
		}
		applyConfig(cmd, cfg, opts)

		level := opts.logLevel
		if opts.debug {
			level = "debug"
		}
		log := logger.ForFormat(errWriter(cmd), opts.logFormat, level)
		return logger.WithContext(ctx, log), nil
	}
}

func loadTokenizer(ctx context.Context, opts *options) (*tokenizer.SentencePiece, error) {
	if opts.tokenizerPath == "" {
		return nil, errors.New("--tokenizer is required")
	}
	log := logger.FromContext(ctx)
	tok, err := tokenizer.LoadFile(opts.tokenizerPath, tokenizer.WithLogger(log))
	if err != nil {
		return nil, err
	}
	log.Debug("tokenizer loaded", "path", opts.tokenizerPath, "vocab_size", tok.VocabSize())
	return tok, nil
}

func loadRegistry(opts *options) (*prompt.Registry, error) {
	r := prompt.NewRegistry()
	if opts.familiesPath != "" {
		if err := r.LoadFamiliesFile(opts.familiesPath); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func resolveFormat(opts *options) (prompt.Format, *prompt.Registry, error) {
	r, err := loadRegistry(opts)
	if err != nil {
		return prompt.Format{}, nil, err
	}
	wrapping, err := prompt.ParseWrapping(opts.wrapping)
	if err != nil {
		return prompt.Format{}, nil, err
	}
	family, err := r.Lookup(opts.family)
	if err != nil {
		return prompt.Format{}, nil, err
	}
	return prompt.Format{Wrapping: wrapping, Family: family}, r, nil
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func inReader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}
