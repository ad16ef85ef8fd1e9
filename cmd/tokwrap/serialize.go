package main

import (
	"context"
	"fmt"
	"os"

	"github.com/samcharles93/tokwrap/internal/logger"
	"github.com/urfave/cli/v3"
)

func serializeCmd(opts *options) *cli.Command {
	var out string

	return &cli.Command{
		Name:  "serialize",
		Usage: "Write the loaded tokenizer model back out as a serialized proto",
		Flags: append(commonFlags(opts),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path (- for stdout)",
				Value:       "-",
				Destination: &out,
			},
		),
		Before: setup(opts),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			tok, err := loadTokenizer(ctx, opts)
			if err != nil {
				return err
			}
			blob := tok.Serialize()
			if out == "-" {
				_, err = outWriter(cmd).Write(blob)
				return err
			}
			if err := os.WriteFile(out, blob, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			log.Info("tokenizer serialized", "path", out, "bytes", len(blob))
			return nil
		},
	}
}
