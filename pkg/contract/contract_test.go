package contract

import (
	"errors"
	"fmt"
	"testing"
)

// TestMasked 验证遮蔽标记判定。
func TestMasked(t *testing.T) {
	cases := map[string]bool{
		"fox":     false,
		"#hidden": true,
		"ab#c":    true,
		"":        false,
		"###":     true,
	}
	for in, want := range cases {
		if got := Masked(in); got != want {
			t.Fatalf("Masked(%q)=%v, 预期 %v", in, got, want)
		}
	}
}

// TestSentinelErrorsWrap 确认哨兵错误可被 errors.Is 穿透包裹识别。
func TestSentinelErrorsWrap(t *testing.T) {
	sentinels := []error{ErrInvalidInput, ErrBatchSize, ErrRateLimited, ErrResponseInvalid, ErrMetadata, ErrInvariantViolation}
	for _, s := range sentinels {
		w := fmt.Errorf("layer: %w", s)
		if !errors.Is(w, s) {
			t.Fatalf("包裹后无法识别: %v", s)
		}
	}
	if errors.Is(ErrMetadata, ErrResponseInvalid) {
		t.Fatalf("不同哨兵不应相互匹配")
	}
}
