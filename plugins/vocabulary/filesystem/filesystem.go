package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Options 为文件系统词表源的可选配置。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// Extensions: 目录递归时收录的扩展名（小写，含点），默认 [".txt"]。单文件 root 不受限。
	Extensions []string `json:"extensions"`
	// ExcludeDirNames: 目录递归时跳过的目录基名（大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Limit: 最多读取的词数；<=0 不限制。
	Limit int `json:"limit"`
	// CommentPrefix: 以此前缀开头的行整行忽略，默认 "#"。
	CommentPrefix string `json:"comment_prefix"`
}

// FileSystem 从文件、目录或 STDIN 读取以空白分隔的词。
type FileSystem struct {
	bufSize    int
	exts       map[string]struct{}
	excludeDir map[string]struct{}
	limit      int
	comment    string
	stdin      io.Reader
}

// New 创建 FileSystem 词表源。
func New(opts *Options) *FileSystem {
	if opts == nil {
		opts = &Options{}
	}
	fs := &FileSystem{
		bufSize:    64 * 1024,
		exts:       map[string]struct{}{},
		excludeDir: map[string]struct{}{},
		limit:      opts.Limit,
		comment:    "#",
		stdin:      os.Stdin,
	}
	if opts.BufSize > 0 {
		fs.bufSize = opts.BufSize
	}
	if opts.CommentPrefix != "" {
		fs.comment = opts.CommentPrefix
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".txt"}
	}
	for _, e := range exts {
		fs.exts[strings.ToLower(e)] = struct{}{}
	}
	for _, name := range opts.ExcludeDirNames {
		if name != "" {
			fs.excludeDir[strings.ToLower(name)] = struct{}{}
		}
	}
	return fs
}

// ErrLimit 由 ScanWords 的回调返回以提前结束读取；Load 将其视为正常结束。
var ErrLimit = errors.New("vocabulary: limit reached")

// ScanWords 逐行读取 rd，跳过空行与以 comment 开头的行，按空白切分后逐词回调 fn。
// fn 返回的错误原样上抛。
func ScanWords(rd io.Reader, comment string, fn func(w string) error) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || (comment != "" && strings.HasPrefix(line, comment)) {
			continue
		}
		for _, w := range strings.Fields(line) {
			if err := fn(w); err != nil {
				return err
			}
		}
	}
	return sc.Err()
}

// Load 按 roots 顺序读取全部词；目录内按字典序，先子目录后文件。
// roots 为空或仅含 "-" 时读取 STDIN；"-" 不可与其他 root 混用。
func (r *FileSystem) Load(ctx context.Context, roots []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var words []string
	add := func(rd io.Reader) error {
		return ScanWords(bufio.NewReaderSize(rd, r.bufSize), r.comment, func(w string) error {
			if r.limit > 0 && len(words) >= r.limit {
				return ErrLimit
			}
			words = append(words, w)
			return nil
		})
	}

	var err error
	switch {
	case len(roots) == 0 || (len(roots) == 1 && roots[0] == "-"):
		err = add(r.stdin)
	default:
		for _, s := range roots {
			if s == "-" {
				return nil, errors.New("vocabulary: stdin '-' cannot be mixed with other roots")
			}
		}
		for _, root := range roots {
			if err = r.loadOne(ctx, root, add); err != nil {
				break
			}
		}
	}
	if err != nil && !errors.Is(err, ErrLimit) {
		return nil, err
	}
	return words, nil
}

func (r *FileSystem) loadOne(ctx context.Context, root string, add func(io.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, add)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.readFile(root, add)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, add func(io.Reader) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), add); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !e.Type().IsRegular() {
			continue
		}
		if _, ok := r.exts[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		if err := r.readFile(filepath.Join(dir, e.Name()), add); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) readFile(p string, add func(io.Reader) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := add(f); err != nil {
		if errors.Is(err, ErrLimit) {
			return err
		}
		return fmt.Errorf("vocabulary: read %s: %w", p, err)
	}
	return nil
}
