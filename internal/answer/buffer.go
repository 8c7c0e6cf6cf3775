package answer

import (
	"fmt"
	"strings"
	"sync"

	"revealer/pkg/contract"
)

// Buffer: 固定长度的答案槽位缓冲。
// 约束：
//  1. 长度在创建时确定，运行期不变；
//  2. 每个槽位至多从“未解出”转为“已解出”一次，先写者胜；
//  3. 越界下标静默丢弃；
//  4. 所有写入经互斥锁串行化，可被多个完成中的探测并发调用。
type Buffer struct {
	mu       sync.RWMutex
	slots    []string
	resolved int
	sentinel string
}

// New 创建 n 个未解出槽位的缓冲；sentinel 为渲染前缀。
func New(n int, sentinel string) (*Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("answer: slot count must be >= 0: %w", contract.ErrInvalidInput)
	}
	return &Buffer{slots: make([]string, n), sentinel: sentinel}, nil
}

// Len 返回槽位总数。
func (b *Buffer) Len() int { return len(b.slots) }

// Resolve 将 token 写入槽位 i；仅当 i 在范围内且槽位未解出时生效。
// 返回是否发生了写入。空 token 不写入。
func (b *Buffer) Resolve(i int, token string) bool {
	if token == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.slots) || b.slots[i] != "" {
		return false
	}
	b.slots[i] = token
	b.resolved++
	return true
}

// Resolved 返回已解出槽位数。
func (b *Buffer) Resolved() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolved
}

// IsComplete 当且仅当所有槽位均已解出时为 true。
func (b *Buffer) IsComplete() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolved == len(b.slots)
}

// Tokens 返回槽位快照；未解出槽位为空串。
func (b *Buffer) Tokens() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.slots))
	copy(out, b.slots)
	return out
}

// Render 生成带前缀的部分文本：前缀后按下标顺序以单空格连接，
// 每段连续的未解出槽位折叠为一个空字段（即表现为双空格）。
// 幂等、无副作用。
func (b *Buffer) Render() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fields := make([]string, 0, len(b.slots)+1)
	fields = append(fields, b.sentinel)
	gap := false
	for _, s := range b.slots {
		if s == "" {
			if !gap {
				fields = append(fields, "")
				gap = true
			}
			continue
		}
		gap = false
		fields = append(fields, s)
	}
	return strings.Join(fields, " ")
}
