// Package mock 提供无网络的确定性 LLM 客户端，用于测试与演练。
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"llmxml/internal/payload"
	"llmxml/pkg/contract"
)

// 响应模式。
const (
	ModePrefix   = "prefix"    // 每个片段按变体加前缀
	ModeEcho     = "echo"      // 两个变体原样回显载荷
	ModeBare     = "bare"      // 返回裸字符串（非映射）
	ModeDropLast = "drop_last" // 少一个片段
	ModeExtra    = "extra"     // 多一个片段
	ModeError    = "error"     // 返回 ErrResponseInvalid
)

// Options 调试配置。
type Options struct {
	// ResponseMode 为空时使用 prefix。
	ResponseMode   string `json:"response_mode,omitempty"`
	PositivePrefix string `json:"positive_prefix,omitempty"`
	NegativePrefix string `json:"negative_prefix,omitempty"`
	// APIKey 仅用于限流分组，不参与任何网络请求。
	APIKey string `json:"api_key,omitempty"`
}

type Client struct {
	mode string
	pre  map[contract.Variant]string
}

// New 创建 mock 客户端；未知模式返回 ErrInvalidInput。
func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	mode := strings.TrimSpace(o.ResponseMode)
	if mode == "" {
		mode = ModePrefix
	}
	switch mode {
	case ModePrefix, ModeEcho, ModeBare, ModeDropLast, ModeExtra, ModeError:
	default:
		return nil, fmt.Errorf("mock: %w: unknown response_mode %q", contract.ErrInvalidInput, mode)
	}
	if o.PositivePrefix == "" {
		o.PositivePrefix = "POS: "
	}
	if o.NegativePrefix == "" {
		o.NegativePrefix = "NEG: "
	}
	return &Client{mode: mode, pre: map[contract.Variant]string{
		contract.Positive: o.PositivePrefix,
		contract.Negative: o.NegativePrefix,
	}}, nil
}

var _ contract.LLMClient = (*Client)(nil)

// Mode 返回生效的响应模式。
func (c *Client) Mode() string { return c.mode }

// Invoke 按模式从 req.Payload 构造响应；Prompt 不参与。
func (c *Client) Invoke(ctx context.Context, req contract.RewriteRequest, _ contract.Prompt) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	// 按线上约定拆分，转义过的反斜杠不会被当作分隔符
	frags := payload.Split(req.Payload)

	switch c.mode {
	case ModeError:
		return contract.Raw{}, fmt.Errorf("mock: %w", contract.ErrResponseInvalid)
	case ModeBare:
		return contract.Raw{Text: req.Payload}, nil
	case ModeEcho:
		return object(req.Payload, req.Payload)
	case ModeDropLast:
		if len(frags) > 0 {
			frags = frags[:len(frags)-1]
		}
	case ModeExtra:
		frags = append(frags, "extra")
	}
	out := make(map[contract.Variant]string, 2)
	for _, v := range contract.Variants() {
		parts := make([]string, len(frags))
		for i, f := range frags {
			parts[i] = c.pre[v] + f
		}
		if c.mode == ModeDropLast || c.mode == ModeExtra {
			// 两个模式只改片段数
			copy(parts, frags)
		}
		out[v] = strings.Join(parts, payload.Delimiter)
	}
	return object(out[contract.Positive], out[contract.Negative])
}

func object(pos, neg string) (contract.Raw, error) {
	b, err := json.Marshal(map[string]string{
		string(contract.Positive): pos,
		string(contract.Negative): neg,
	})
	if err != nil {
		return contract.Raw{}, err
	}
	return contract.Raw{Text: string(b)}, nil
}
