package prompt

import (
	"errors"
	"fmt"

	"github.com/samcharles93/tokwrap/internal/tokenizer"
)

// ErrInvalidArgument marks a request the wrapper refuses before encoding.
var ErrInvalidArgument = errors.New("prompt: invalid argument")

// WrapError reports an encode failure inside the wrapper. No partial
// sequence is returned with it: a model that cannot encode its own markers
// is corrupt, and callers should not proceed to inference.
type WrapError struct {
	Stage string
	Err   error
}

func (e *WrapError) Error() string {
	return fmt.Sprintf("wrap %s: %v", e.Stage, e.Err)
}

func (e *WrapError) Unwrap() error { return e.Err }

func encode(tok tokenizer.Tokenizer, stage, text string) ([]int, error) {
	if tok == nil {
		return nil, &WrapError{Stage: stage, Err: &tokenizer.EncodeError{Text: text, Err: tokenizer.ErrNotLoaded}}
	}
	ids, err := tok.Encode(text)
	if err != nil {
		if !errors.Is(err, tokenizer.ErrEncode) {
			err = &tokenizer.EncodeError{Text: text, Err: err}
		}
		return nil, &WrapError{Stage: stage, Err: err}
	}
	return ids, nil
}

// Wrap applies the turn markers of format to prompt. A turn that continues
// an existing context (pos > 0) first closes the previous model turn.
// Pretrained and PaliGemma prompts are returned unchanged.
func Wrap(format Format, pos int, prompt string) string {
	if !format.Wrapping.conversational() {
		return prompt
	}
	f := format.Family
	start := f.UserTurn
	if pos > 0 {
		start = f.EndOfTurn + f.UserTurn
	}
	return start + prompt + f.EndOfTurn + f.ModelTurn
}

// WrapAndTokenize wraps prompt for format and encodes it. The BOS id is
// prepended only when pos is 0, the start of a fresh context. PaliGemma
// prompts get the separator appended as its own encoded block so it never
// merges with the preceding text.
func WrapAndTokenize(tok tokenizer.Tokenizer, format Format, pos int, prompt string) ([]int, error) {
	if pos < 0 {
		return nil, fmt.Errorf("%w: negative position %d", ErrInvalidArgument, pos)
	}
	if err := format.Family.Validate(); err != nil {
		return nil, err
	}

	ids, err := encode(tok, "prompt", Wrap(format, pos, prompt))
	if err != nil {
		return nil, err
	}

	var sep []int
	if format.Wrapping == WrappingPaliGemma {
		if sep, err = encode(tok, "separator", format.Family.Separator); err != nil {
			return nil, err
		}
	}

	out := make([]int, 0, len(ids)+len(sep)+1)
	if pos == 0 {
		out = append(out, format.Family.BOSID)
	}
	out = append(out, ids...)
	return append(out, sep...), nil
}

// NumImages is the number of image blocks a flattened image of
// imageBatchSize patches occupies when split into chunks of at most
// maxImageChunkSize.
func NumImages(imageBatchSize, maxImageChunkSize int) int {
	if imageBatchSize <= 0 || maxImageChunkSize <= 0 {
		return 0
	}
	return (imageBatchSize + maxImageChunkSize - 1) / maxImageChunkSize
}

// WrapVisionLanguage puts image placeholder blocks in front of baseIDs. Each
// of the NumImages blocks is the encoded begin-image marker, imageBatchSize
// copies of the family's image sentinel and the encoded end-image marker.
//
// All blocks are identical, so their relative order carries no
// information. The markers are encoded on their own. At pos 0 the result
// starts with the family's BOS id, ahead of the first block, and a leading
// BOS in baseIDs is dropped so it appears exactly once. At pos > 0 no BOS is
// added. baseIDs is not modified.
func WrapVisionLanguage(tok tokenizer.Tokenizer, format Format, pos int, baseIDs []int, imageBatchSize, maxImageChunkSize int) ([]int, error) {
	switch {
	case format.Wrapping != WrappingVLM:
		return nil, fmt.Errorf("%w: image blocks require %s wrapping, got %s", ErrInvalidArgument, WrappingVLM, format.Wrapping)
	case pos < 0:
		return nil, fmt.Errorf("%w: negative position %d", ErrInvalidArgument, pos)
	case imageBatchSize < 0:
		return nil, fmt.Errorf("%w: negative image batch size %d", ErrInvalidArgument, imageBatchSize)
	case maxImageChunkSize <= 0:
		return nil, fmt.Errorf("%w: max image batch size must be positive, got %d", ErrInvalidArgument, maxImageChunkSize)
	}
	f := format.Family
	if err := f.Validate(); err != nil {
		return nil, err
	}

	begin, err := encode(tok, "begin image", f.BeginImage)
	if err != nil {
		return nil, err
	}
	end, err := encode(tok, "end image", f.EndImage)
	if err != nil {
		return nil, err
	}

	if pos == 0 && len(baseIDs) > 0 && baseIDs[0] == f.BOSID {
		baseIDs = baseIDs[1:]
	}

	numImages := NumImages(imageBatchSize, maxImageChunkSize)
	blockLen := len(begin) + imageBatchSize + len(end)
	out := make([]int, 0, numImages*blockLen+len(baseIDs)+1)
	if pos == 0 {
		out = append(out, f.BOSID)
	}
	for i := 0; i < numImages; i++ {
		out = append(out, begin...)
		for j := 0; j < imageBatchSize; j++ {
			out = append(out, f.ImageTokenID)
		}
		out = append(out, end...)
	}
	return append(out, baseIDs...), nil
}

// Span is a contiguous run of image placeholder slots.
type Span struct {
	Start int `json:"start"`
	Len   int `json:"len"`
}

// ImageSpans locates the runs of sentinel in ids, in order. The embedding
// substitution step uses it to find where image patches go.
func ImageSpans(ids []int, sentinel int) []Span {
	var spans []Span
	for i := 0; i < len(ids); {
		if ids[i] != sentinel {
			i++
			continue
		}
		start := i
		for i < len(ids) && ids[i] == sentinel {
			i++
		}
		spans = append(spans, Span{Start: start, Len: i - start})
	}
	return spans
}
