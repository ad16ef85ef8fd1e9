// Package tokenizer adapts a trained SentencePiece model to the id/piece
// encode and decode contract used by the prompt wrapper and the drivers.
package tokenizer

// Tokenizer converts between text and vocabulary ids.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// PieceEncoder returns the subword pieces for a text instead of their ids.
type PieceEncoder interface {
	EncodePieces(text string) ([]string, error)
}

// PieceTokenizer is a Tokenizer that can also report pieces.
type PieceTokenizer interface {
	Tokenizer
	PieceEncoder
}
