package prompt

import (
	"errors"
	"testing"
)

func TestConversationEmitsBOSOnce(t *testing.T) {
	t.Parallel()

	format := gemma(WrappingInstruction)
	conv := NewConversation(fakeTokenizer{}, format)

	first, err := conv.Turn("hi")
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if first[0] != format.Family.BOSID {
		t.Fatalf("first turn must start with BOS: %v", first)
	}
	if conv.Position() != len(first) {
		t.Fatalf("position: got %d want %d", conv.Position(), len(first))
	}

	if err := conv.Advance(3); err != nil {
		t.Fatalf("advance: %v", err)
	}
	second, err := conv.Turn("more")
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	for _, id := range second {
		if id == format.Family.BOSID {
			t.Fatalf("second turn must not contain BOS: %v", second)
		}
	}
	if conv.Position() != len(first)+3+len(second) {
		t.Fatalf("position: got %d", conv.Position())
	}

	conv.Reset()
	again, err := conv.Turn("hi")
	if err != nil {
		t.Fatalf("turn after reset: %v", err)
	}
	if again[0] != format.Family.BOSID {
		t.Fatalf("fresh context must start with BOS: %v", again)
	}
}

func TestConversationKeepsPositionOnError(t *testing.T) {
	t.Parallel()

	conv := NewConversation(fakeTokenizer{failOn: "boom"}, gemma(WrappingPretrained))
	if _, err := conv.Turn("ok"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	pos := conv.Position()
	if _, err := conv.Turn("boom"); err == nil {
		t.Fatalf("expected encode failure")
	}
	if conv.Position() != pos {
		t.Fatalf("position moved on failure: %d -> %d", pos, conv.Position())
	}
	if err := conv.Advance(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
