package stdout

import (
	"context"
	"fmt"
	"io"
	"os"

	"revealer/pkg/contract"
	"revealer/plugins/submitter/filesystem"
)

// Options: 前缀可配置，默认 "guess: "。
type Options struct {
	Prefix string `json:"prefix"`
}

// Submitter 将每个猜测打印为一行。
type Submitter struct {
	w      io.Writer
	prefix string
}

func New(opts *Options) *Submitter {
	s := &Submitter{w: os.Stdout, prefix: "guess: "}
	if opts != nil && opts.Prefix != "" {
		s.prefix = opts.Prefix
	}
	return s
}

// Submit 实现 contract.Submitter。
func (s *Submitter) Submit(ctx context.Context, _ contract.PuzzleMeta, tokens []string) error {
	for _, g := range filesystem.Guesses(tokens) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(s.w, s.prefix+g); err != nil {
			return fmt.Errorf("submitter stdout: %w", err)
		}
	}
	return nil
}

var _ contract.Submitter = (*Submitter)(nil)
