package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

type encodeOutput struct {
	IDs    []int    `json:"ids"`
	Pieces []string `json:"pieces,omitempty"`
}

func encodeCmd(opts *options) *cli.Command {
	var pieces bool

	return &cli.Command{
		Name:      "encode",
		Usage:     "Encode text into token ids",
		ArgsUsage: "[text...]",
		Flags: append(commonFlags(opts),
			jsonFlag(opts),
			&cli.BoolFlag{
				Name:        "pieces",
				Usage:       "also print the segmented pieces",
				Destination: &pieces,
			},
		),
		Before: setup(opts),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			text, err := readText(cmd.Args().Slice(), inReader(cmd))
			if err != nil {
				return err
			}
			tok, err := loadTokenizer(ctx, opts)
			if err != nil {
				return err
			}

			out := encodeOutput{}
			if out.IDs, err = tok.Encode(text); err != nil {
				return err
			}
			if pieces {
				if out.Pieces, err = tok.EncodePieces(text); err != nil {
					return err
				}
			}

			w := outWriter(cmd)
			if opts.jsonOutput {
				return writeJSON(w, out)
			}
			if _, err := fmt.Fprintln(w, formatIDs(out.IDs)); err != nil {
				return err
			}
			if pieces {
				quoted := make([]string, len(out.Pieces))
				for i, p := range out.Pieces {
					quoted[i] = fmt.Sprintf("%q", p)
				}
				_, err = fmt.Fprintln(w, strings.Join(quoted, " "))
			}
			return err
		},
	}
}
