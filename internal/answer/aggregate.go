package answer

import "revealer/pkg/contract"

// Aggregate 将一次探测的揭示合并进缓冲。
// 带遮蔽标记的 token 整体跳过；其余 token 写入其所有在范围内且未解出的槽位。
// 永不失败；可并发调用。
func Aggregate(b *Buffer, r contract.Reveal) {
	if b == nil {
		return
	}
	for token, idxs := range r {
		if contract.Masked(token) {
			continue
		}
		for _, i := range idxs {
			b.Resolve(i, token)
		}
	}
}

// Restore 以快照 tokens 回填缓冲（用于断点恢复）；长度不一致时仅回填重叠部分。
func Restore(b *Buffer, tokens []string) {
	for i, t := range tokens {
		if t == "" || contract.Masked(t) {
			continue
		}
		b.Resolve(i, t)
	}
}
