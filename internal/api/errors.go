package api

import (
	"errors"

	"github.com/samcharles93/tokwrap/internal/prompt"
	"github.com/samcharles93/tokwrap/internal/tokenizer"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// isClientError reports whether err was caused by the request rather than
// by the tokenizer model.
func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, prompt.ErrInvalidArgument) ||
		errors.Is(err, tokenizer.ErrDecode)
}
