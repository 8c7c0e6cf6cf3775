package static

import (
	"context"
	"testing"

	"revealer/pkg/contract"
)

func TestStatic(t *testing.T) {
	s, err := FromJSON([]byte(`{"id":9,"slots":3}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m, err := s.Fetch(context.Background())
	if err != nil || m != (contract.PuzzleMeta{ID: 9, Slots: 3}) {
		t.Fatalf("unexpected %+v %v", m, err)
	}
	if _, err := New(&Options{Slots: -1}); err == nil {
		t.Fatalf("负槽位应失败")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Fetch(ctx); err == nil {
		t.Fatalf("取消上下文应失败")
	}
}
