package rate

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// UT-RTE-01: 快照反映满桶与消耗
func TestGateSnapshot(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 60}}, func() time.Time { return now })
	if got := g.(Snapshoter).Snapshot("k"); got != 1 {
		t.Fatalf("初始应为满桶 1, got %v", got)
	}

	g = NewGate(map[LimitKey]Limits{"k": {RPM: 60}}, nil)
	if err := g.Wait(context.Background(), Ask{Key: "k"}); err != nil {
		t.Fatalf("首个额度应立即放行: %v", err)
	}
	if got := g.(Snapshoter).Snapshot("k"); got > 0.5 {
		t.Fatalf("消耗后额度应接近 0, got %v", got)
	}
}

// UT-RTE-02: 取消上下文
func TestGateWaitCancel(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1}}, nil)
	if err := g.Wait(context.Background(), Ask{Key: "k"}); err != nil {
		t.Fatalf("首个额度应立即放行: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if err := g.Wait(ctx, Ask{Key: "k"}); err == nil {
		t.Fatalf("应返回取消错误")
	}
}

func TestGateBurstAndUnknownKey(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 600, Burst: 2}, "off": {RPM: 0}}, nil)
	if err := g.Wait(context.Background(), Ask{Key: "k", Requests: 3}); err == nil {
		t.Fatalf("超过突发上限应快速失败")
	}
	if err := g.Wait(context.Background(), Ask{Key: "other", Requests: 100}); err != nil {
		t.Fatalf("未配置分组应放行: %v", err)
	}
	if err := g.Wait(context.Background(), Ask{Key: "off"}); err != nil {
		t.Fatalf("RPM=0 应放行: %v", err)
	}
	s, ok := g.(Snapshoter)
	if !ok {
		t.Fatalf("gate 应实现 Snapshoter")
	}
	if s.Snapshot("other") != -1 {
		t.Fatalf("未配置分组快照应为 -1")
	}
	if got := s.Snapshot("k"); got < 1.9 || got > 2.0 {
		t.Fatalf("满桶应约为 2, got %v", got)
	}
}

func TestDeriveKeyFromProberOptions(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"site_url": "https://Pedantle.certitudes.org"})
	if k := DeriveKeyFromProberOptions("httpscore", raw); k != "httpscore:pedantle.certitudes.org" {
		t.Fatalf("派生键错误: %s", k)
	}
	if k := DeriveKeyFromProberOptions("mock", json.RawMessage(`{}`)); k != "mock" {
		t.Fatalf("缺少 site_url 应退化为名称: %s", k)
	}
	if k := DeriveKeyFromProberOptions("mock", nil); k != "mock" {
		t.Fatalf("空 options: %s", k)
	}
}
