package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"llmxml/internal/diag"
	"llmxml/internal/payload"
	"llmxml/internal/prompt"
	"llmxml/internal/rate"
	"llmxml/pkg/contract"
)

// runner 实现 variant.Rewriter：提示词 → 预算 → 限流 → 单次调用 → 结果解析。
type runner struct {
	comp   Components
	set    Settings
	logger *diag.Logger
}

func (r *runner) Rewrite(ctx context.Context, req contract.RewriteRequest) (contract.RewriteResult, error) {
	fid := string(req.FileID)
	spans := strconv.Itoa(req.SpanCount)

	if err := prompt.CheckPayload(r.comp.PromptBuilder, r.set.BytesPerToken, r.set.MaxTokens, req.Payload); err != nil {
		r.fail("prompt_builder", "budget check failed", fid, err, nil)
		return contract.RewriteResult{}, err
	}
	pbtimer := r.logger.StartWith("prompt_builder", "build", fid, spans)
	p, err := r.comp.PromptBuilder.Build(ctx, req)
	if err != nil {
		r.fail("prompt_builder", "build failed", fid, err, nil)
		return contract.RewriteResult{}, err
	}
	pbtimer.Finish("build", int64(req.SpanCount))
	diag.IncOp("prompt_builder", "finish", "success")

	tokens := prompt.Tokens(p, prompt.MakeEstimator(r.set.BytesPerToken))
	if r.set.Gate != nil {
		r.logger.DebugStart("gate", "ask", fid, spans, map[string]string{
			"requests": "1",
			"tokens":   strconv.Itoa(tokens),
		})
		if err := r.set.Gate.Wait(ctx, rate.Ask{Key: r.set.GateKey, Requests: 1, Tokens: tokens}); err != nil {
			r.fail("gate", "wait failed", fid, err, nil)
			return contract.RewriteResult{}, err
		}
	}

	lltimer := r.logger.StartWithKV("llm_client", "invoke", fid, spans, map[string]string{
		"tokens": strconv.Itoa(tokens),
	})
	raw, err := r.comp.LLM.Invoke(ctx, req, p)
	if err != nil {
		var kv map[string]string
		var ue contract.UpstreamError
		if errors.As(err, &ue) {
			kv = map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus())}
			if m := strings.TrimSpace(ue.UpstreamMessage()); m != "" {
				if len(m) > 200 {
					m = m[:200]
				}
				kv["upstream_msg"] = m
			}
		}
		r.fail("llm_client", "invoke failed", fid, err, kv)
		return contract.RewriteResult{}, err
	}
	lltimer.Finish("invoke", int64(tokens))
	diag.IncOp("llm_client", "finish", "success")
	diag.ObserveDuration("llm_client", "invoke", lltimer.Elapsed().Milliseconds())

	res, err := payload.ParseResult(raw)
	if err != nil {
		r.fail("decoder", "parse result failed", fid, err, nil)
		return contract.RewriteResult{}, err
	}
	return res, nil
}

func (r *runner) fail(comp, msg, fid string, err error, kv map[string]string) {
	code := diag.Classify(err)
	r.logger.ErrorWithKV(comp, string(code), msg+": "+err.Error(), nil, fid, "", kv)
	diag.IncOp(comp, "error", "error")
	diag.IncError(comp, string(code))
}
