package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func decodeCmd(opts *options) *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode token ids back into text",
		ArgsUsage: "[id...]",
		Flags:     append(commonFlags(opts), jsonFlag(opts)),
		Before:    setup(opts),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			raw, err := readText(cmd.Args().Slice(), inReader(cmd))
			if err != nil {
				return err
			}
			ids, err := parseIDs(raw)
			if err != nil {
				return err
			}
			tok, err := loadTokenizer(ctx, opts)
			if err != nil {
				return err
			}
			text, err := tok.Decode(ids)
			if err != nil {
				return err
			}

			w := outWriter(cmd)
			if opts.jsonOutput {
				return writeJSON(w, map[string]string{"text": text})
			}
			_, err = fmt.Fprintln(w, text)
			return err
		},
	}
}
