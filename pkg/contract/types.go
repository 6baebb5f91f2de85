package contract

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// NodePath: 元素在文档中的位置（按子元素序号拼接，如 "/0/3/1"）。
// 仅作溯源与日志之用，写回阶段不以其寻址。
type NodePath string

// Encoding: 文本在文档中的两种遗留存放形态（标签联合）。
type Encoding int

const (
	// StructuredText: 文本埋在子节点内容里的 run 树（JSON 串）中。
	StructuredText Encoding = iota + 1
	// FlatText: 文本直接为元素内容，可选地包在内层子元素里。
	FlatText
)

func (e Encoding) String() string {
	switch e {
	case StructuredText:
		return "structured"
	case FlatText:
		return "flat"
	default:
		return "unknown"
	}
}

// Encodings 返回抽取顺序：先 StructuredText，后 FlatText。
func Encodings() []Encoding { return []Encoding{StructuredText, FlatText} }

// Span: 可独立改写的最小文本单元。
// 约束：
//   - Text 为线上形式（单行，换行已转义为字面量 `\n`）；
//   - Raw 为转义前的规范化文本，"保留原文"即指 Raw；
//   - HasID=false 表示节点缺少标识属性，写回时无法命中。
type Span struct {
	ID       string
	HasID    bool
	Text     string
	Raw      string
	Encoding Encoding
	Node     NodePath
}

// ReconciledSpan: 对齐后的 (标识, 文本)，一一对应原始 Span；一次生成、写回即弃。
type ReconciledSpan struct {
	ID    string
	HasID bool
	Text  string
}

// Variant: 输出变体名。
type Variant string

const (
	Positive Variant = "positive"
	Negative Variant = "negative"
)

// Variants 以固定顺序返回全部变体。
func Variants() []Variant { return []Variant{Positive, Negative} }

// RewriteRequest: 一次外部改写调用的输入（整篇文档一次调用）。
type RewriteRequest struct {
	FileID    FileID
	Payload   string
	SpanCount int
	Delimiter string
}

// RewriteResult: 外部调用的输出。
// Variants 非 nil 表示结构化映射；否则为退化的裸字符串 Bare。
type RewriteResult struct {
	Variants map[Variant]string
	Bare     string
}

// Structured 报告结果是否为映射形态。
func (r RewriteResult) Structured() bool { return r.Variants != nil }
