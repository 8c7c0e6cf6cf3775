package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func write(t *testing.T, p, s string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(s), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func eq(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// UT-VOC-01: 单文件，按行与空白切分，跳过注释与空行
func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "w.txt")
	write(t, p, "# header\nthe\nof and\n\n  to \r\n")
	got, err := New(nil).Load(context.Background(), []string{p})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	eq(t, got, []string{"the", "of", "and", "to"})
}

// UT-VOC-02: 目录稳定顺序（先子目录再文件），扩展名过滤与排除目录
func TestLoadDirOrder(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.txt"), "b")
	write(t, filepath.Join(dir, "a.txt"), "a")
	write(t, filepath.Join(dir, "z.md"), "ignored")
	write(t, filepath.Join(dir, "sub", "c.txt"), "c")
	write(t, filepath.Join(dir, ".git", "d.txt"), "d")
	got, err := New(&Options{ExcludeDirNames: []string{".GIT"}}).Load(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	eq(t, got, []string{"c", "a", "b"})
}

func TestLoadLimit(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.txt"), "1 2 3")
	write(t, filepath.Join(dir, "b.txt"), "4 5")
	got, err := New(&Options{Limit: 4}).Load(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	eq(t, got, []string{"1", "2", "3", "4"})
}

func TestLoadStdin(t *testing.T) {
	fs := New(nil)
	fs.stdin = strings.NewReader("x y\nz")
	got, err := fs.Load(context.Background(), []string{"-"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	eq(t, got, []string{"x", "y", "z"})
	if _, err := fs.Load(context.Background(), []string{"-", "a"}); err == nil {
		t.Fatalf("混用 '-' 应失败")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := New(nil).Load(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatalf("缺失路径应失败")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil).Load(ctx, []string{"x"}); err == nil {
		t.Fatalf("取消应失败")
	}
}
