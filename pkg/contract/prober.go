package contract

import "context"

// Prober: 单次探测原语，针对一个候选词向计分端点发起一次请求。
// 同步返回；应尊重 ctx 取消/超时。
// 失败分类：
//   - 网络错误：net.Error / context 错误；
//   - 非 2xx：实现 UpstreamError；
//   - 载荷非法：包裹 ErrResponseInvalid。
type Prober interface {
	Probe(ctx context.Context, meta PuzzleMeta, word string) (Reveal, error)
}
