package contract

import "errors"

// 最小错误分类（用于上层策略判定与诊断归类）。
var (
	// ErrInvalidInput: 调用参数非法（空词、空 URL 等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrBatchSize: 批大小必须为正数。
	ErrBatchSize = errors.New("batch size must be > 0")
	// ErrRateLimited: 上游返回 429 或本地限速拒绝。
	ErrRateLimited = errors.New("rate limited")
	// ErrResponseInvalid: 上游载荷无法解码。
	ErrResponseInvalid = errors.New("response invalid")
	// ErrMetadata: 谜题页缺少 puzzle-num 或 wiki 等必要元素。
	ErrMetadata = errors.New("puzzle metadata unavailable")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
