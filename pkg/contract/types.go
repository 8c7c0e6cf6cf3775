package contract

import "strings"

// MaskMarker: 已被完全解出的槽位在返回 token 中携带的标记字符。
const MaskMarker = "#"

// PuzzleMeta: 单个谜题实例的元信息；运行期内不可变。
type PuzzleMeta struct {
	ID    int // 谜题编号（puzzle-num）
	Slots int // 答案槽位总数（wiki 下 span 数）
}

// Reveal: 一次探测的返回，token → 该 token 在隐藏文本中出现的槽位下标（有序）。
// 约束：下标可能越界或为负，由聚合方丢弃。
type Reveal map[string][]int

// Masked 报告 token 是否带遮蔽标记（不携带新信息）。
func Masked(token string) bool { return strings.Contains(token, MaskMarker) }

// Batch: 一轮探测的词集合。
// 约束：Index 自 0 递增；Words 保持词表原始顺序。
type Batch struct {
	Index int
	Words []string
}

// Plan: 惰性、可重复遍历的批序列。
// At 仅在调用时切片，不复制整个词表。
type Plan interface {
	Len() int
	At(i int) Batch
}
