package api

import "github.com/samcharles93/tokwrap/internal/prompt"

type TokenizeRequest struct {
	Text   string `json:"text"`
	Pieces bool   `json:"pieces,omitempty"`
}

type TokenizeResponse struct {
	ID     string   `json:"id"`
	Object string   `json:"object"`
	IDs    []int    `json:"ids"`
	Pieces []string `json:"pieces,omitempty"`
	Count  int      `json:"count"`
}

type DetokenizeRequest struct {
	IDs []int `json:"ids"`
}

type DetokenizeResponse struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Text   string `json:"text"`
}

// PromptRequest asks for a wrapped prompt. Wrapping and Family fall back to
// the server defaults; ImageBatchSize > 0 adds image placeholder blocks and
// requires the vlm wrapping. A negative ImageBatchSize is rejected.
type PromptRequest struct {
	Prompt            string `json:"prompt"`
	Wrapping          string `json:"wrapping,omitempty"`
	Family            string `json:"family,omitempty"`
	Position          int    `json:"position"`
	ImageBatchSize    int    `json:"image_batch_size,omitempty"`
	MaxImageBatchSize int    `json:"max_image_batch_size,omitempty"`
}

type PromptResponse struct {
	ID           string        `json:"id"`
	Object       string        `json:"object"`
	Wrapping     string        `json:"wrapping"`
	Family       string        `json:"family"`
	IDs          []int         `json:"ids"`
	Count        int           `json:"count"`
	ImageTokenID int           `json:"image_token_id"`
	NumImages    int           `json:"num_images"`
	ImageSpans   []prompt.Span `json:"image_spans,omitempty"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
