// Package variant 以一次抽取、一次外部调用，独立产出 positive/negative 两个变体。
//
// 状态机：LOADED → EXTRACTED → SENT → RECONCILED → WRITTEN → SERIALIZED，
// 后三步按变体各走一遍；每个变体写回前都从快照重建一棵新树，变体之间互不可见。
package variant

import (
	"context"
	"fmt"
	"strconv"

	"llmxml/internal/diag"
	"llmxml/internal/doctree"
	"llmxml/internal/payload"
	"llmxml/internal/reconcile"
	"llmxml/internal/span"
	"llmxml/pkg/contract"
)

const comp = "variant"

// Rewriter 为外部改写协作方：一次调用覆盖整篇文档的全部 span。
type Rewriter interface {
	Rewrite(ctx context.Context, req contract.RewriteRequest) (contract.RewriteResult, error)
}

// RewriterFunc 适配普通函数。
type RewriterFunc func(ctx context.Context, req contract.RewriteRequest) (contract.RewriteResult, error)

func (f RewriterFunc) Rewrite(ctx context.Context, req contract.RewriteRequest) (contract.RewriteResult, error) {
	return f(ctx, req)
}

// Stage 为处理进度。
type Stage int

const (
	Pending Stage = iota
	Loaded
	Extracted
	Sent
	Reconciled
	Written
	Serialized
)

var stageNames = [...]string{"pending", "loaded", "extracted", "sent", "reconciled", "written", "serialized"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "stage(" + strconv.Itoa(int(s)) + ")"
	}
	return stageNames[s]
}

// Outcome 为单篇文档的处理结果。Err 非空时两个输出均为空串。
type Outcome struct {
	FileID  contract.FileID
	Spans   int
	Called  bool
	Stage   Stage
	Outputs map[contract.Variant]string
	Reports map[contract.Variant]span.Report
	Stats   map[contract.Variant]reconcile.Stats
	Err     error
}

// Output 返回某变体的序列化文档。
func (o Outcome) Output(v contract.Variant) string { return o.Outputs[v] }

// Orchestrator 编排单篇文档。
type Orchestrator struct {
	Engine   *span.Engine
	Rewriter Rewriter
	Logger   *diag.Logger
}

// Process 处理一篇文档。文档级失败记录在 Outcome.Err，不向上抛出。
func (o *Orchestrator) Process(ctx context.Context, snap *doctree.Snapshot) Outcome {
	out := Outcome{
		FileID:  snap.ID(),
		Outputs: map[contract.Variant]string{},
		Reports: map[contract.Variant]span.Report{},
		Stats:   map[contract.Variant]reconcile.Stats{},
	}
	for _, v := range contract.Variants() {
		out.Outputs[v] = ""
	}
	fid := string(snap.ID())

	doc, err := snap.Rebuild()
	if err != nil {
		return o.fail(out, err)
	}
	o.advance(&out, Loaded, "")

	spans := o.Engine.Locate(doc)
	out.Spans = len(spans)
	o.advance(&out, Extracted, "")
	if len(spans) == 0 {
		// 无可改写文本：不发起外部调用
		return out
	}

	req := contract.RewriteRequest{
		FileID:    snap.ID(),
		Payload:   payload.Encode(spans),
		SpanCount: len(spans),
		Delimiter: payload.Delimiter,
	}
	out.Called = true
	res, err := o.Rewriter.Rewrite(ctx, req)
	if err != nil {
		return o.fail(out, fmt.Errorf("%w: %w", contract.ErrExternalCall, err))
	}
	o.advance(&out, Sent, "")
	if !res.Structured() {
		o.Logger.Warn(comp, string(diag.CodeExternal), "result is not a mapping; keeping original text", fid, nil)
	}

	for _, v := range contract.Variants() {
		rec, st := reconcile.Reconcile(payload.Decode(res, v), spans)
		out.Stats[v] = st
		if st.Mismatch() {
			o.Logger.Warn(comp, string(diag.CodeCountMismatch), "fragment count differs from span count", fid, map[string]string{
				"variant":  string(v),
				"spans":    strconv.Itoa(len(spans)),
				"paired":   strconv.Itoa(st.Paired),
				"dropped":  strconv.Itoa(st.Dropped),
				"fallback": strconv.Itoa(st.Fallback),
			})
		}
		o.advance(&out, Reconciled, v)

		fresh, err := snap.Rebuild()
		if err != nil {
			return o.fail(out, err)
		}
		out.Reports[v] = o.Engine.Write(fresh, rec)
		o.advance(&out, Written, v)

		s, err := fresh.Serialize()
		if err != nil {
			return o.fail(out, err)
		}
		out.Outputs[v] = s
		o.advance(&out, Serialized, v)
	}
	return out
}

func (o *Orchestrator) advance(out *Outcome, st Stage, v contract.Variant) {
	out.Stage = st
	o.Logger.DebugStart(comp, st.String(), string(out.FileID), string(v), nil)
	diag.GetTerminal().FileProgress(st.String())
}

// fail 清空全部输出并记录错误；已到达的阶段保留供诊断。
func (o *Orchestrator) fail(out Outcome, err error) Outcome {
	for v := range out.Outputs {
		out.Outputs[v] = ""
	}
	out.Err = err
	code := diag.Classify(err)
	diag.IncError(comp, string(code))
	o.Logger.ErrorWith(comp, string(code), err.Error(), nil, string(out.FileID), out.Stage.String())
	return out
}
