package contract

// Splitter: 将候选标题拆分为待验证的词序列。
// 约束：保持出现顺序；不返回空串；无内部并发。
type Splitter interface {
	Split(text string) []string
}
