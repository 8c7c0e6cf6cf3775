package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"revealer/pkg/contract"
)

// Options: 猜测落盘配置。
type Options struct {
	// OutputDir: 输出目录（必需）；文件名为 <puzzle-id>.txt。
	OutputDir string `json:"output_dir"`
	// Atomic: 同目录临时文件 + rename；未提供时为 true。
	Atomic *bool `json:"atomic,omitempty"`
	// PermFile/PermDir: 为 0 时使用 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
}

// Submitter 将最终 token 序列写为每行一个猜测（按首次出现去重）。
type Submitter struct {
	root   string
	atomic bool
	permF  os.FileMode
	permD  os.FileMode
}

// New 创建文件系统提交器。
func New(opts *Options) (*Submitter, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("submitter fs: %w: missing output_dir", contract.ErrInvalidInput)
	}
	s := &Submitter{root: opts.OutputDir, atomic: true, permF: opts.PermFile, permD: opts.PermDir}
	if opts.Atomic != nil {
		s.atomic = *opts.Atomic
	}
	if s.permF == 0 {
		s.permF = 0o644
	}
	if s.permD == 0 {
		s.permD = 0o755
	}
	return s, nil
}

// Path 返回 meta 对应的输出文件路径。
func (s *Submitter) Path(meta contract.PuzzleMeta) string {
	return filepath.Join(s.root, strconv.Itoa(meta.ID)+".txt")
}

// Submit 实现 contract.Submitter。
func (s *Submitter) Submit(ctx context.Context, meta contract.PuzzleMeta, tokens []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, s.permD); err != nil {
		return fmt.Errorf("submitter fs: %w", err)
	}
	lines := Guesses(tokens)
	dest := s.Path(meta)
	if !s.atomic {
		return writeLines(dest, s.permF, lines)
	}
	return s.writeAtomic(dest, lines)
}

// Guesses 返回去重后的猜测序列：跳过空串与带遮蔽标记的 token，保持首次出现顺序。
func Guesses(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" || contract.Masked(t) {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func writeLines(dest string, perm os.FileMode, lines []string) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("submitter fs: %w", err)
	}
	defer f.Close()
	return flushLines(f, lines)
}

func flushLines(f *os.File, lines []string) error {
	bw := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := bw.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (s *Submitter) writeAtomic(dest string, lines []string) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("submitter fs: %w", err)
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, s.permF)
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("submitter fs: %w", err)
	}
	if err := flushLines(tmp, lines); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("submitter fs: %w", err)
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("submitter fs: %w", err)
	}
	// 尽力同步父目录
	_ = syncDir(dir)
	return nil
}

var _ contract.Submitter = (*Submitter)(nil)
