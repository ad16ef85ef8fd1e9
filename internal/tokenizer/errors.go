package tokenizer

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad marks a tokenizer model that could not be read or parsed.
	// Callers cannot serve requests without a model and should stop.
	ErrLoad = errors.New("tokenizer: load failed")
	// ErrEncode marks a text the loaded model could not segment.
	ErrEncode = errors.New("tokenizer: encode failed")
	// ErrDecode marks an id sequence the loaded model could not detokenize.
	ErrDecode = errors.New("tokenizer: decode failed")
	// ErrNotLoaded is returned by every operation on a tokenizer without a model.
	ErrNotLoaded = errors.New("tokenizer: model not loaded")
)

// LoadError reports a failed model load. Size is the byte length of the
// serialized model when it was read, -1 when the source could not be read.
type LoadError struct {
	Source string
	Size   int
	Err    error
}

func (e *LoadError) Error() string {
	if e.Size < 0 {
		return fmt.Sprintf("load tokenizer %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("load tokenizer %s (serialized proto size=%d): %v", e.Source, e.Size, e.Err)
}

func (e *LoadError) Unwrap() []error { return []error{ErrLoad, e.Err} }

// EncodeError reports a failed encode of Text.
type EncodeError struct {
	Text string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %q: %v", truncate(e.Text, 64), e.Err)
}

func (e *EncodeError) Unwrap() []error { return []error{ErrEncode, e.Err} }

// DecodeError reports a failed decode of IDs.
type DecodeError struct {
	IDs []int
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d ids: %v", len(e.IDs), e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
