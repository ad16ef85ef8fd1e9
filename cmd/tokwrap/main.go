package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	opts := &options{}
	return &cli.Command{
		Name:  "tokwrap",
		Usage: "SentencePiece tokenization and prompt wrapping for Gemma-family models",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			encodeCmd(opts),
			decodeCmd(opts),
			wrapCmd(opts),
			serializeCmd(opts),
			serveCmd(opts),
			versionCmd(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
