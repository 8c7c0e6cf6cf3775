package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"revealer/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总与探测失败标记，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeUpstream  Code = "upstream"
	CodeProtocol  Code = "protocol"
	CodeInvariant Code = "invariant"
	CodeBudget    Code = "budget"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
	CodeConfig    Code = "config"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与类型断言，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 非 2xx（含 429）
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		return CodeUpstream
	}
	if errors.Is(err, contract.ErrRateLimited) {
		return CodeBudget
	}
	// 协议/解码
	if errors.Is(err, contract.ErrResponseInvalid) || errors.Is(err, contract.ErrMetadata) {
		return CodeProtocol
	}
	// 不变量
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrBatchSize) {
		return CodeInvariant
	}
	// I/O
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	// 网络（连接/超时等）
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// Retryable 判断一次探测失败是否值得按重试策略再试：
// 网络错误、429 与 5xx 可重试；协议错误与取消不重试。
func Retryable(err error) bool {
	switch Classify(err) {
	case CodeNetwork, CodeBudget:
		return true
	case CodeUpstream:
		var ue contract.UpstreamError
		if errors.As(err, &ue) {
			st := ue.UpstreamStatus()
			return st == 429 || st >= 500
		}
	}
	return false
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
