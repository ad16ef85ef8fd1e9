package tokenizer

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sentencepiece "github.com/eliben/go-sentencepiece"

	"github.com/samcharles93/tokwrap/internal/logger"
)

// SentencePiece owns a loaded SentencePiece model together with the
// serialized proto it was built from. The model is read-only after load;
// Reload swaps it under an exclusive lock while Encode and Decode only
// take the shared lock.
type SentencePiece struct {
	mu        sync.RWMutex
	proc      *sentencepiece.Processor
	blob      []byte
	vocabSize int
	bosID     int

	log logger.Logger
}

var _ PieceTokenizer = (*SentencePiece)(nil)

// Option configures a SentencePiece at load time.
type Option func(*SentencePiece)

// WithLogger sets the logger used for load messages and, at debug level,
// a per-token dump of every encode.
func WithLogger(l logger.Logger) Option {
	return func(sp *SentencePiece) {
		if l != nil {
			sp.log = l
		}
	}
}

// LoadFile reads a trained SentencePiece model from path.
func LoadFile(path string, opts ...Option) (*SentencePiece, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Size: -1, Err: err}
	}
	return load(path, blob, opts)
}

// LoadBytes builds a tokenizer from an in-memory serialized model proto.
// The blob is copied; the caller may reuse it afterwards.
func LoadBytes(blob []byte, opts ...Option) (*SentencePiece, error) {
	return load("serialized proto", bytes.Clone(blob), opts)
}

func load(source string, blob []byte, opts []Option) (*SentencePiece, error) {
	sp := &SentencePiece{log: logger.Discard()}
	for _, opt := range opts {
		opt(sp)
	}
	if err := sp.install(source, blob); err != nil {
		return nil, err
	}
	return sp, nil
}

// install parses blob into a fresh sp that is not yet shared.
func (sp *SentencePiece) install(source string, blob []byte) error {
	proc, err := newProcessor(blob)
	if err != nil {
		sp.log.Error("failed to load tokenizer", "source", source, "size", len(blob), "error", err)
		return &LoadError{Source: source, Size: len(blob), Err: err}
	}
	sp.setModel(proc, blob)
	sp.log.Debug("tokenizer loaded", "source", source, "size", len(blob), "vocab", sp.vocabSize)
	return nil
}

func newProcessor(blob []byte) (proc *sentencepiece.Processor, err error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty model proto")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in NewProcessor: %v", rec)
		}
	}()
	return sentencepiece.NewProcessor(bytes.NewReader(blob))
}

// setModel records proc and the fields derived from it. Callers hold mu for
// writing, or own sp exclusively.
func (sp *SentencePiece) setModel(proc *sentencepiece.Processor, blob []byte) {
	info := proc.ModelInfo()
	sp.proc = proc
	sp.blob = blob
	sp.vocabSize = info.VocabularySize
	sp.bosID = info.BeginningOfSentenceID
}

// Reload replaces the loaded model with the one serialized in blob. On
// failure the previous model stays in service.
func (sp *SentencePiece) Reload(blob []byte) error {
	if sp == nil {
		return ErrNotLoaded
	}
	next := bytes.Clone(blob)
	// Parse outside the lock so readers are only blocked for the swap.
	proc, err := newProcessor(next)
	if err != nil {
		sp.logger().Error("failed to reload tokenizer", "size", len(next), "error", err)
		return &LoadError{Source: "serialized proto", Size: len(next), Err: err}
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.setModel(proc, next)
	return nil
}

// Serialize returns the serialized model proto. LoadBytes on the result
// yields a tokenizer that encodes and decodes identically.
func (sp *SentencePiece) Serialize() []byte {
	if sp == nil {
		return nil
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return bytes.Clone(sp.blob)
}

// VocabSize reports the number of pieces in the loaded model.
func (sp *SentencePiece) VocabSize() int {
	if sp == nil {
		return 0
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.vocabSize
}

// BOSID reports the beginning-of-sequence id recorded in the model's
// trainer spec.
func (sp *SentencePiece) BOSID() int {
	if sp == nil {
		return -1
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.bosID
}

// Encode segments text into vocabulary ids.
func (sp *SentencePiece) Encode(text string) ([]int, error) {
	tokens, err := sp.encode(text)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = tok.ID
	}
	log := sp.logger()
	if log.Enabled(slog.LevelDebug) {
		for i, id := range ids {
			log.Debug("token", "pos", i, "id", id)
		}
	}
	return ids, nil
}

// EncodePieces segments text into piece strings.
func (sp *SentencePiece) EncodePieces(text string) ([]string, error) {
	tokens, err := sp.encode(text)
	if err != nil {
		return nil, err
	}
	pieces := make([]string, len(tokens))
	for i, tok := range tokens {
		pieces[i] = tok.Text
	}
	return pieces, nil
}

func (sp *SentencePiece) encode(text string) (tokens []sentencepiece.Token, err error) {
	if sp == nil {
		return nil, &EncodeError{Text: text, Err: ErrNotLoaded}
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	if sp.proc == nil {
		return nil, &EncodeError{Text: text, Err: ErrNotLoaded}
	}
	defer func() {
		if rec := recover(); rec != nil {
			tokens = nil
			err = &EncodeError{Text: text, Err: fmt.Errorf("panic in Encode: %v", rec)}
		}
	}()
	return sp.proc.Encode(text), nil
}

// Decode turns ids back into text. Ids outside the vocabulary, including
// image placeholder sentinels, are rejected rather than substituted.
func (sp *SentencePiece) Decode(ids []int) (text string, err error) {
	if sp == nil {
		return "", &DecodeError{IDs: ids, Err: ErrNotLoaded}
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	if sp.proc == nil {
		return "", &DecodeError{IDs: ids, Err: ErrNotLoaded}
	}
	for i, id := range ids {
		if id < 0 || id >= sp.vocabSize {
			return "", &DecodeError{IDs: ids, Err: fmt.Errorf("id %d at position %d outside vocabulary [0,%d)", id, i, sp.vocabSize)}
		}
	}
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = &DecodeError{IDs: ids, Err: fmt.Errorf("panic in Decode: %v", rec)}
		}
	}()
	return sp.proc.Decode(ids), nil
}

func (sp *SentencePiece) logger() logger.Logger {
	if sp.log == nil {
		return logger.Discard()
	}
	return sp.log
}
