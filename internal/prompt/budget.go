// Package prompt 提供提示词的 token 估算与预算检查。
package prompt

import (
	"fmt"

	"llmxml/pkg/contract"
)

// MakeEstimator 返回一个近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		return (len(s) + bpt - 1) / bpt
	}
}

// EffectiveMaxTokens 计算预扣固定提示开销后的有效预算。
// 返回 (effectiveMax, overheadTokens)。若 maxTokens<=0，返回 (0,0)。
func EffectiveMaxTokens(pb contract.PromptBuilder, bytesPerToken int, maxTokens int) (int, int) {
	if maxTokens <= 0 {
		return 0, 0
	}
	overhead := pb.EstimateOverheadTokens(MakeEstimator(bytesPerToken))
	return maxTokens - overhead, overhead
}

// CheckPayload 检查整篇载荷能否放进单次调用。
// maxTokens<=0 表示不限制。超出时返回 ErrBudgetExceeded，调用方不应发起请求。
func CheckPayload(pb contract.PromptBuilder, bytesPerToken, maxTokens int, payload string) error {
	eff, overhead := EffectiveMaxTokens(pb, bytesPerToken, maxTokens)
	if maxTokens <= 0 {
		return nil
	}
	need := MakeEstimator(bytesPerToken)(payload)
	if need > eff {
		return fmt.Errorf("%w: payload %d tokens + overhead %d > max %d", contract.ErrBudgetExceeded, need, overhead, maxTokens)
	}
	return nil
}

// Tokens 估算已构造提示词的总 token（用于限流申请）。
func Tokens(p contract.Prompt, est contract.TokenEstimator) int {
	switch v := p.(type) {
	case contract.TextPrompt:
		return est(string(v))
	case contract.ChatPrompt:
		n := 0
		for _, m := range v {
			n += est(m.Content)
		}
		return n
	case string:
		return est(v)
	default:
		return 0
	}
}
