// Package spmtest builds small SentencePiece model protos for tests.
//
// The generated models use the BPE model type with whitespace escaping and
// no dummy prefix, and lay out their control and marker pieces the way the
// Gemma vocabulary does, so the ids below line up with the Gemma family
// defaults used by the prompt package.
package spmtest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// Piece types from sentencepiece_model.proto.
const (
	TypeNormal      = 1
	TypeUnknown     = 2
	TypeControl     = 3
	TypeUserDefined = 4
)

// Ids of the fixed pieces in Pieces().
const (
	PadID          = 0
	EOSID          = 1
	BOSID          = 2
	UnknownID      = 3
	StartOfTurnID  = 4
	EndOfTurnID    = 5
	StartOfImageID = 6
	EndOfImageID   = 7
	NewlineID      = 8
	SpaceID        = 9
)

// Piece is one vocabulary entry.
type Piece struct {
	Text  string
	Score float32
	Type  int
}

// Pieces returns the default test vocabulary: Gemma-style control and
// marker pieces, newline, the whitespace meta symbol, ASCII letters and a
// handful of merges that segment "Hello" into a single piece.
func Pieces() []Piece {
	pieces := []Piece{
		{Text: "<pad>", Type: TypeControl},
		{Text: "<eos>", Type: TypeControl},
		{Text: "<bos>", Type: TypeControl},
		{Text: "<unk>", Type: TypeUnknown},
		{Text: "<start_of_turn>", Type: TypeUserDefined},
		{Text: "<end_of_turn>", Type: TypeUserDefined},
		{Text: "<start_of_image>", Type: TypeUserDefined},
		{Text: "<end_of_image>", Type: TypeUserDefined},
		{Text: "\n", Type: TypeNormal},
		{Text: "▁", Type: TypeNormal},
	}
	for c := 'a'; c <= 'z'; c++ {
		pieces = append(pieces, Piece{Text: string(c), Type: TypeNormal})
	}
	for c := 'A'; c <= 'Z'; c++ {
		pieces = append(pieces, Piece{Text: string(c), Type: TypeNormal})
	}
	return append(pieces,
		Piece{Text: "ll", Score: -1, Type: TypeNormal},
		Piece{Text: "He", Score: -2, Type: TypeNormal},
		Piece{Text: "llo", Score: -3, Type: TypeNormal},
		Piece{Text: "Hello", Score: -4, Type: TypeNormal},
	)
}

// Build serializes pieces into a ModelProto.
func Build(pieces []Piece) []byte {
	var b []byte
	for _, p := range pieces {
		var msg []byte
		msg = protowire.AppendTag(msg, 1, protowire.BytesType)
		msg = protowire.AppendString(msg, p.Text)
		msg = protowire.AppendTag(msg, 2, protowire.Fixed32Type)
		msg = protowire.AppendFixed32(msg, math.Float32bits(p.Score))
		msg = protowire.AppendTag(msg, 3, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(p.Type))

		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}

	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, trainerSpec())
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, normalizerSpec())
	return b
}

// Model returns Build(Pieces()).
func Model() []byte {
	return Build(Pieces())
}

// WriteModel writes Model() into a temporary directory and returns its path.
func WriteModel(tb testing.TB) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "tokenizer.spm")
	if err := os.WriteFile(path, Model(), 0o644); err != nil {
		tb.Fatalf("write test model: %v", err)
	}
	return path
}

func trainerSpec() []byte {
	var b []byte
	fields := []struct {
		num protowire.Number
		val uint64
	}{
		{num: 3, val: 2}, // model_type = BPE
		{num: 40, val: UnknownID},
		{num: 41, val: BOSID},
		{num: 42, val: EOSID},
		{num: 43, val: PadID},
	}
	for _, f := range fields {
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		b = protowire.AppendVarint(b, f.val)
	}
	return b
}

func normalizerSpec() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "identity")
	b = protowire.AppendTag(b, 3, protowire.VarintType) // add_dummy_prefix
	b = protowire.AppendVarint(b, 0)
	b = protowire.AppendTag(b, 4, protowire.VarintType) // remove_extra_whitespaces
	b = protowire.AppendVarint(b, 0)
	b = protowire.AppendTag(b, 5, protowire.VarintType) // escape_whitespaces
	b = protowire.AppendVarint(b, 1)
	return b
}
