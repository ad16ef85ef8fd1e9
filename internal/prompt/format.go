// Package prompt applies model-format wrapping to raw prompts and turns them
// into the exact token id sequence a decoder consumes: turn markers for
// instruction-tuned models, the beginning-of-sequence id for fresh contexts,
// the PaliGemma separator and image placeholder blocks for vision models.
package prompt

import (
	"fmt"
	"strings"
)

// Wrapping selects the prompt-wrapping convention of a model.
type Wrapping int

const (
	// WrappingPretrained feeds the prompt through unchanged.
	WrappingPretrained Wrapping = iota
	// WrappingInstruction surrounds each turn with user/model turn markers.
	WrappingInstruction
	// WrappingPaliGemma appends the separator after the prompt.
	WrappingPaliGemma
	// WrappingVLM is instruction wrapping plus image placeholder blocks.
	WrappingVLM
)

var wrappingNames = map[Wrapping]string{
	WrappingPretrained:  "pt",
	WrappingInstruction: "it",
	WrappingPaliGemma:   "paligemma",
	WrappingVLM:         "vlm",
}

func (w Wrapping) String() string {
	if name, ok := wrappingNames[w]; ok {
		return name
	}
	return fmt.Sprintf("Wrapping(%d)", int(w))
}

// ParseWrapping accepts the short names printed by String plus a few
// long-form aliases.
func ParseWrapping(s string) (Wrapping, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pt", "pretrained", "":
		return WrappingPretrained, nil
	case "it", "instruct", "instruction":
		return WrappingInstruction, nil
	case "paligemma", "pali":
		return WrappingPaliGemma, nil
	case "vlm", "gemma_vlm":
		return WrappingVLM, nil
	default:
		return 0, fmt.Errorf("%w: unknown wrapping %q", ErrInvalidArgument, s)
	}
}

func (w Wrapping) MarshalText() ([]byte, error) {
	if _, ok := wrappingNames[w]; !ok {
		return nil, fmt.Errorf("%w: unknown wrapping %d", ErrInvalidArgument, int(w))
	}
	return []byte(w.String()), nil
}

func (w *Wrapping) UnmarshalText(text []byte) error {
	parsed, err := ParseWrapping(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// conversational reports whether turns are wrapped in turn markers.
func (w Wrapping) conversational() bool {
	return w == WrappingInstruction || w == WrappingVLM
}

// Format describes how prompts for one model are wrapped. It is supplied by
// the caller per request and never mutated.
type Format struct {
	Wrapping Wrapping
	Family   Family
}
