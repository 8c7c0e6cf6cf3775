package stdout

import (
	"bytes"
	"context"
	"testing"

	"revealer/pkg/contract"
)

func TestSubmitPrints(t *testing.T) {
	var buf bytes.Buffer
	s := New(nil)
	s.w = &buf
	if err := s.Submit(context.Background(), contract.PuzzleMeta{ID: 3}, []string{"fox", "", "fox", "jumps"}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "guess: fox\nguess: jumps\n" {
		t.Fatalf("输出不符: %q", got)
	}
}
