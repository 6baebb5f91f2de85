package contract

import (
	"context"
	"errors"
)

// Raw: LLM 客户端返回的原始文本载荷。
// 约束：原样返回，不做清洗/截断/归一化。
type Raw struct {
	Text string
}

// LLMClient: 以整篇文档的载荷为单位与大模型交互，返回原始文本 Raw。
// 单次调用、同步返回、无重试；应尊重 ctx 取消/超时。
type LLMClient interface {
	Invoke(ctx context.Context, req RewriteRequest, p Prompt) (Raw, error)
}

// 最小错误分类（用于上层策略判定）。
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrResponseInvalid = errors.New("response invalid")
	ErrInvalidInput    = errors.New("invalid input")
)
