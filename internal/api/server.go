package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/tokwrap/internal/logger"
	"github.com/samcharles93/tokwrap/internal/prompt"
	"github.com/samcharles93/tokwrap/internal/tokenizer"
)

// DefaultMaxImageBatchSize bounds each image placeholder block when the
// request leaves max_image_batch_size unset.
const DefaultMaxImageBatchSize = 256

var errNoTokenizer = errors.New("tokenizer not configured")

type Config struct {
	Tokenizer         tokenizer.PieceTokenizer
	Families          *prompt.Registry
	DefaultFamily     string
	DefaultWrapping   prompt.Wrapping
	MaxImageBatchSize int
	Logger            logger.Logger
	// Metrics, when set, is updated per request and served on /metrics.
	Metrics *Metrics
}

type Server struct {
	tok             tokenizer.PieceTokenizer
	families        *prompt.Registry
	defaultFamily   string
	defaultWrapping prompt.Wrapping
	maxImageBatch   int
	log             logger.Logger
	metrics         *Metrics
}

func NewServer(cfg Config) *Server {
	families := cfg.Families
	if families == nil {
		families = prompt.NewRegistry()
	}
	maxImageBatch := cfg.MaxImageBatchSize
	if maxImageBatch <= 0 {
		maxImageBatch = DefaultMaxImageBatchSize
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		tok:             cfg.Tokenizer,
		families:        families,
		defaultFamily:   cfg.DefaultFamily,
		defaultWrapping: cfg.DefaultWrapping,
		maxImageBatch:   maxImageBatch,
		log:             log,
		metrics:         cfg.Metrics,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/tokenize", s.handleTokenize)
	e.POST("/v1/detokenize", s.handleDetokenize)
	e.POST("/v1/prompt", s.handlePrompt)
	e.GET("/v1/families", s.handleFamilies)
	if s.metrics != nil {
		e.GET("/metrics", s.metrics.handler())
	}
}

func (s *Server) handleTokenize(c *echo.Context) error {
	const endpoint = "tokenize"
	start := time.Now()
	if s.tok == nil {
		return s.fail(c, endpoint, start, errNoTokenizer)
	}
	req, err := decodeJSON[TokenizeRequest](c.Request().Body)
	if err != nil {
		return s.fail(c, endpoint, start, err)
	}

	ids, err := s.tok.Encode(req.Text)
	if err != nil {
		return s.fail(c, endpoint, start, err)
	}
	resp := TokenizeResponse{
		ID:     newID(),
		Object: "tokenization",
		IDs:    ids,
		Count:  len(ids),
	}
	if req.Pieces {
		pieces, err := s.tok.EncodePieces(req.Text)
		if err != nil {
			return s.fail(c, endpoint, start, err)
		}
		resp.Pieces = pieces
	}
	s.metrics.observe(endpoint, http.StatusOK, len(ids), time.Since(start))
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDetokenize(c *echo.Context) error {
	const endpoint = "detokenize"
	start := time.Now()
	if s.tok == nil {
		return s.fail(c, endpoint, start, errNoTokenizer)
	}
	req, err := decodeJSON[DetokenizeRequest](c.Request().Body)
	if err != nil {
		return s.fail(c, endpoint, start, err)
	}

	text, err := s.tok.Decode(req.IDs)
	if err != nil {
		return s.fail(c, endpoint, start, err)
	}
	s.metrics.observe(endpoint, http.StatusOK, len(req.IDs), time.Since(start))
	return c.JSON(http.StatusOK, DetokenizeResponse{
		ID:     newID(),
		Object: "detokenization",
		Text:   text,
	})
}

func (s *Server) handlePrompt(c *echo.Context) error {
	const endpoint = "prompt"
	start := time.Now()
	if s.tok == nil {
		return s.fail(c, endpoint, start, errNoTokenizer)
	}
	req, err := decodeJSON[PromptRequest](c.Request().Body)
	if err != nil {
		return s.fail(c, endpoint, start, err)
	}

	format, err := s.resolveFormat(req)
	if err != nil {
		return s.fail(c, endpoint, start, err)
	}

	ids, err := prompt.WrapAndTokenize(s.tok, format, req.Position, req.Prompt)
	if err != nil {
		return s.fail(c, endpoint, start, err)
	}

	numImages := 0
	if req.ImageBatchSize < 0 {
		return s.fail(c, endpoint, start, newInvalidRequest("image_batch_size must not be negative"))
	}
	if req.ImageBatchSize > 0 {
		if format.Wrapping != prompt.WrappingVLM {
			return s.fail(c, endpoint, start, newInvalidRequest("image_batch_size requires the vlm wrapping"))
		}
		chunk := req.MaxImageBatchSize
		if chunk <= 0 {
			chunk = s.maxImageBatch
		}
		ids, err = prompt.WrapVisionLanguage(s.tok, format, req.Position, ids, req.ImageBatchSize, chunk)
		if err != nil {
			return s.fail(c, endpoint, start, err)
		}
		numImages = prompt.NumImages(req.ImageBatchSize, chunk)
		s.metrics.observeImageSlots(numImages * req.ImageBatchSize)
	}

	s.metrics.observe(endpoint, http.StatusOK, len(ids), time.Since(start))
	return c.JSON(http.StatusOK, PromptResponse{
		ID:           newID(),
		Object:       "prompt",
		Wrapping:     format.Wrapping.String(),
		Family:       format.Family.Name,
		IDs:          ids,
		Count:        len(ids),
		ImageTokenID: format.Family.ImageTokenID,
		NumImages:    numImages,
		ImageSpans:   prompt.ImageSpans(ids, format.Family.ImageTokenID),
	})
}

func (s *Server) handleFamilies(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   s.families.Names(),
	})
}

func (s *Server) resolveFormat(req PromptRequest) (prompt.Format, error) {
	wrapping := s.defaultWrapping
	if req.Wrapping != "" {
		w, err := prompt.ParseWrapping(req.Wrapping)
		if err != nil {
			return prompt.Format{}, err
		}
		wrapping = w
	}
	name := req.Family
	if name == "" {
		name = s.defaultFamily
	}
	family, err := s.families.Lookup(name)
	if err != nil {
		return prompt.Format{}, err
	}
	return prompt.Format{Wrapping: wrapping, Family: family}, nil
}

// fail maps err to a status and error type, records it and writes the
// error body.
func (s *Server) fail(c *echo.Context, endpoint string, start time.Time, err error) error {
	status, errType := http.StatusInternalServerError, "server_error"
	switch {
	case isClientError(err):
		status, errType = http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, tokenizer.ErrEncode):
		errType = "tokenizer_error"
		s.log.Error("tokenizer failure", "endpoint", endpoint, "error", err)
	default:
		s.log.Error("request failed", "endpoint", endpoint, "error", err)
	}
	s.metrics.observe(endpoint, status, 0, time.Since(start))
	return writeError(c, status, errType, err.Error())
}
