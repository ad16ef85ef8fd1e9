package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/samcharles93/tokwrap/internal/api"
	"github.com/samcharles93/tokwrap/internal/logger"
	"github.com/samcharles93/tokwrap/internal/tokenizer"
	"github.com/urfave/cli/v3"
)

func serveCmd(opts *options) *cli.Command {
	var (
		readTimeout time.Duration
		metrics     bool
		rateLimit   float64
		rateBurst   int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the tokenize, detokenize and prompt REST API",
		Flags: append(append(commonFlags(opts), wrappingFlags(opts)...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &opts.addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.BoolFlag{
				Name:        "metrics",
				Usage:       "expose Prometheus metrics on /metrics",
				Value:       true,
				Destination: &metrics,
			},
			&cli.Float64Flag{
				Name:        "rate-limit",
				Usage:       "requests per second allowed per client IP (0 disables)",
				Destination: &rateLimit,
			},
			&cli.Int64Flag{
				Name:        "rate-burst",
				Usage:       "burst size for --rate-limit",
				Value:       20,
				Destination: &rateBurst,
			},
		),
		Before: setup(opts),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			format, families, err := resolveFormat(opts)
			if err != nil {
				return err
			}
			tok, err := loadTokenizer(ctx, opts)
			if err != nil {
				return err
			}

			ctx, stop := context.WithCancel(ctx)
			defer stop()
			go reloadOnHangup(ctx, log, tok, opts.tokenizerPath)

			var m *api.Metrics
			if metrics {
				m = api.NewMetrics("tokwrap")
			}
			server := api.NewServer(api.Config{
				Tokenizer:         tok,
				Families:          families,
				DefaultFamily:     format.Family.Name,
				DefaultWrapping:   format.Wrapping,
				MaxImageBatchSize: int(opts.maxImageBatch),
				Logger:            log,
				Metrics:           m,
			})
			e := echo.New()
			e.IPExtractor = echo.ExtractIPDirect()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			if rateLimit > 0 {
				e.Use(api.RateLimiter(ctx, rateLimit, int(rateBurst)))
			}
			server.Register(e)
			log.Info("starting server",
				"address", opts.addr,
				"vocab_size", tok.VocabSize(),
				"wrapping", format.Wrapping.String(),
				"families", families.Names(),
			)
			sc := echo.StartConfig{
				Address: opts.addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

// reloadOnHangup re-reads the model file on SIGHUP. A failed reload keeps
// serving the previous model.
func reloadOnHangup(ctx context.Context, log logger.Logger, tok *tokenizer.SentencePiece, path string) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			if err := reloadFile(tok, path); err != nil {
				log.Error("tokenizer reload failed", "path", path, "error", err)
				continue
			}
			log.Info("tokenizer reloaded", "path", path, "vocab_size", tok.VocabSize())
		}
	}
}

func reloadFile(tok *tokenizer.SentencePiece, path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return &tokenizer.LoadError{Source: path, Size: -1, Err: err}
	}
	return tok.Reload(blob)
}
