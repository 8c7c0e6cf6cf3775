package contract

import "context"

// BatchLimit: 切批所需的最小限制集合。
type BatchLimit struct {
	// Size: 每批最多词数，必须为正数。
	Size int
}

// Batcher: 将完整词表切分为有界批次。
// 约束：
//  1. 每批不超过 Size 个词；
//  2. 按原始顺序覆盖词表（去重由实现选项决定）；
//  3. 无副作用，Plan 可反复遍历；
//  4. Size <= 0 时返回 ErrBatchSize。
type Batcher interface {
	Make(ctx context.Context, words []string, limit BatchLimit) (Plan, error)
}
