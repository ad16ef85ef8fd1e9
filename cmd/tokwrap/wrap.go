package main

import (
	"context"
	"fmt"

	"github.com/samcharles93/tokwrap/internal/logger"
	"github.com/samcharles93/tokwrap/internal/prompt"
	"github.com/urfave/cli/v3"
)

type wrapOutput struct {
	Wrapping   string        `json:"wrapping"`
	Family     string        `json:"family"`
	Text       string        `json:"text"`
	IDs        []int         `json:"ids"`
	NumImages  int           `json:"num_images"`
	ImageSpans []prompt.Span `json:"image_spans,omitempty"`
}

func wrapCmd(opts *options) *cli.Command {
	var (
		position   int64
		imageBatch int64
	)

	return &cli.Command{
		Name:      "wrap",
		Usage:     "Wrap a prompt for a model format and encode it",
		ArgsUsage: "[prompt...]",
		Flags: append(append(commonFlags(opts), wrappingFlags(opts)...),
			jsonFlag(opts),
			&cli.Int64Flag{
				Name:        "position",
				Aliases:     []string{"pos"},
				Usage:       "number of tokens already in the context; BOS is added only at 0",
				Destination: &position,
			},
			&cli.Int64Flag{
				Name:        "image-batch-size",
				Usage:       "image placeholder slots per block (vlm only, 0 for none)",
				Destination: &imageBatch,
			},
		),
		Before: setup(opts),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			text, err := readText(cmd.Args().Slice(), inReader(cmd))
			if err != nil {
				return err
			}
			format, _, err := resolveFormat(opts)
			if err != nil {
				return err
			}
			tok, err := loadTokenizer(ctx, opts)
			if err != nil {
				return err
			}

			pos := int(position)
			ids, err := prompt.WrapAndTokenize(tok, format, pos, text)
			if err != nil {
				return err
			}
			numImages := 0
			if imageBatch < 0 {
				return fmt.Errorf("--image-batch-size must not be negative, got %d", imageBatch)
			}
			if imageBatch > 0 {
				chunk := int(opts.maxImageBatch)
				ids, err = prompt.WrapVisionLanguage(tok, format, pos, ids, int(imageBatch), chunk)
				if err != nil {
					return err
				}
				numImages = prompt.NumImages(int(imageBatch), chunk)
			}
			log.Debug("prompt wrapped",
				"wrapping", format.Wrapping.String(),
				"family", format.Family.Name,
				"tokens", len(ids),
				"images", numImages,
			)

			w := outWriter(cmd)
			if opts.jsonOutput {
				return writeJSON(w, wrapOutput{
					Wrapping:   format.Wrapping.String(),
					Family:     format.Family.Name,
					Text:       prompt.Wrap(format, pos, text),
					IDs:        ids,
					NumImages:  numImages,
					ImageSpans: prompt.ImageSpans(ids, format.Family.ImageTokenID),
				})
			}
			_, err = fmt.Fprintln(w, formatIDs(ids))
			return err
		},
	}
}
