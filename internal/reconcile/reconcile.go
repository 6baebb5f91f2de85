// Package reconcile 将返回的片段按位置对齐到原始 span。
package reconcile

import "llmxml/pkg/contract"

// Stats 记录一次对齐的计数。
type Stats struct {
	Paired   int // 使用了返回片段的 span 数
	Dropped  int // 尾部被截断丢弃的多余片段数
	Fallback int // 片段不足而保留原文的 span 数
}

// Mismatch 报告片段数与 span 数是否不一致。
func (s Stats) Mismatch() bool { return s.Dropped > 0 || s.Fallback > 0 }

// Reconcile 第 i 个片段对应第 i 个 span：
//   - 片段多于 span：截断尾部；
//   - 片段少于 span：不足部分保留原文；
//   - 无片段：整体为恒等映射。
//
// 永不失败；结果长度恒等于 len(spans)。
func Reconcile(fragments []string, spans []contract.Span) ([]contract.ReconciledSpan, Stats) {
	out := make([]contract.ReconciledSpan, len(spans))
	var st Stats
	for i, s := range spans {
		out[i] = contract.ReconciledSpan{ID: s.ID, HasID: s.HasID, Text: s.Raw}
		if i < len(fragments) {
			out[i].Text = fragments[i]
			st.Paired++
		} else {
			st.Fallback++
		}
	}
	if len(fragments) > len(spans) {
		st.Dropped = len(fragments) - len(spans)
	}
	return out, st
}

// Identity 每个 span 保留原文；用于外部调用失败时。
func Identity(spans []contract.Span) []contract.ReconciledSpan {
	out, _ := Reconcile(nil, spans)
	return out
}
