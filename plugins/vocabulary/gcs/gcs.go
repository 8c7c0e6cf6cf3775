package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"revealer/pkg/contract"
	"revealer/plugins/vocabulary/filesystem"
)

// Options: 对象存储词表源。
type Options struct {
	// Endpoint: 自定义 API 端点（例如本地模拟器）；为空使用官方端点。
	Endpoint string `json:"endpoint"`
	// WithoutAuth: 不加载凭据（公开桶或模拟器）。
	WithoutAuth bool `json:"without_auth"`
	// CredentialsFile: 服务账号 JSON 路径（可选）。
	CredentialsFile string `json:"credentials_file"`
	Limit           int    `json:"limit"`
	CommentPrefix   string `json:"comment_prefix"`
}

// openFunc 抽象对象读取，便于测试替换。
type openFunc func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// Source 从 gs://bucket/object 读取词表。
type Source struct {
	opts Options

	once   sync.Once
	client *storage.Client
	err    error
	open   openFunc
}

// New 从原样 JSON 选项构造；客户端在首次 Load 时惰性创建。
func New(raw json.RawMessage) (*Source, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("gcs options: %w", err)
		}
	}
	if o.CommentPrefix == "" {
		o.CommentPrefix = "#"
	}
	s := &Source{opts: o}
	s.open = s.openObject
	return s, nil
}

func (s *Source) clientOpts() []option.ClientOption {
	var opts []option.ClientOption
	if s.opts.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.opts.Endpoint))
	}
	if s.opts.WithoutAuth {
		opts = append(opts, option.WithoutAuthentication())
	}
	if s.opts.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.opts.CredentialsFile))
	}
	return opts
}

func (s *Source) openObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	s.once.Do(func() {
		s.client, s.err = storage.NewClient(ctx, s.clientOpts()...)
	})
	if s.err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", s.err)
	}
	return s.client.Bucket(bucket).Object(object).NewReader(ctx)
}

// Close 释放底层客户端。
func (s *Source) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Load 按 roots 顺序读取对象内容并切分为词。
func (s *Source) Load(ctx context.Context, roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("gcs: %w: no object uris", contract.ErrInvalidInput)
	}
	var words []string
	for _, root := range roots {
		bucket, object, err := ParseURI(root)
		if err != nil {
			return nil, err
		}
		rc, err := s.open(ctx, bucket, object)
		if err != nil {
			return nil, fmt.Errorf("gcs: open %s: %w", root, err)
		}
		err = filesystem.ScanWords(rc, s.opts.CommentPrefix, func(w string) error {
			if s.opts.Limit > 0 && len(words) >= s.opts.Limit {
				return filesystem.ErrLimit
			}
			words = append(words, w)
			return nil
		})
		_ = rc.Close()
		if errors.Is(err, filesystem.ErrLimit) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: read %s: %w", root, err)
		}
	}
	return words, nil
}

// ParseURI 解析 gs://bucket/path/to/object。
func ParseURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "gs://")
	if !ok {
		return "", "", fmt.Errorf("gcs: %w: uri must start with gs://: %q", contract.ErrInvalidInput, uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gcs: %w: uri needs bucket and object: %q", contract.ErrInvalidInput, uri)
	}
	return bucket, object, nil
}
