// Package chat 汇集各 LLM 客户端共用的提示词拆解、凭据解析与错误映射。
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"llmxml/pkg/contract"
)

// Parts 为拆解后的提示词。
type Parts struct {
	System string
	// User 按顺序保存全部 user/assistant 以外的正文消息。
	User   []string
	Schema json.RawMessage
}

// UserText 将多条 user 消息以空行连接。
func (p Parts) UserText() string { return strings.Join(p.User, "\n\n") }

// Split 拆出 system、user 与 role=="json_schema" 的 schema 消息。
// schema 不是合法 JSON 时视为未提供。
func Split(p contract.Prompt) (Parts, error) {
	var out Parts
	switch v := p.(type) {
	case contract.TextPrompt:
		out.User = []string{string(v)}
	case contract.ChatPrompt:
		var sys []string
		for _, m := range v {
			switch strings.ToLower(strings.TrimSpace(m.Role)) {
			case "json_schema":
				if json.Valid([]byte(m.Content)) {
					out.Schema = json.RawMessage(m.Content)
				}
			case "system":
				sys = append(sys, m.Content)
			default:
				out.User = append(out.User, m.Content)
			}
		}
		out.System = strings.Join(sys, "\n\n")
	default:
		return Parts{}, fmt.Errorf("%w: unsupported prompt type %T", contract.ErrInvalidInput, p)
	}
	if len(out.User) == 0 {
		return Parts{}, fmt.Errorf("%w: prompt has no user message", contract.ErrInvalidInput)
	}
	return out, nil
}

// APIKey 解析凭据：显式 key 优先，其次 env（为空时用 defEnv）。
func APIKey(provider, key, env, defEnv string) (string, error) {
	if key != "" {
		return key, nil
	}
	if env == "" {
		env = defEnv
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s: %w: missing api key", provider, contract.ErrInvalidInput)
}

// UpstreamError 记录上游 408/5xx；实现 net.Error 以便归为网络类。
type UpstreamError struct {
	Provider string
	Status   int
	Msg      string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream %d: %s", e.Provider, e.Status, e.Msg)
}
func (e *UpstreamError) Timeout() bool           { return e.Status == http.StatusRequestTimeout }
func (e *UpstreamError) Temporary() bool         { return e.Status/100 == 5 }
func (e *UpstreamError) UpstreamStatus() int     { return e.Status }
func (e *UpstreamError) UpstreamMessage() string { return e.Msg }

var _ contract.UpstreamError = (*UpstreamError)(nil)

// MapStatus 将 HTTP 状态映射为最小错误分类。
//   - 429 → ErrRateLimited
//   - 408/5xx → *UpstreamError
//   - 其它 4xx → ErrInvalidInput
func MapStatus(provider string, status int, msg string) error {
	msg = snippet(msg)
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s upstream %d: %w", provider, status, contract.ErrRateLimited)
	case status == http.StatusRequestTimeout || status/100 == 5:
		return &UpstreamError{Provider: provider, Status: status, Msg: msg}
	case status/100 == 4:
		return fmt.Errorf("%s upstream %d: %s: %w", provider, status, msg, contract.ErrInvalidInput)
	}
	return fmt.Errorf("%s upstream %d: %s", provider, status, msg)
}

// CtxErr 若 ctx 已结束则返回 ctx.Err()，用于在 SDK 包装的错误上统一取消语义。
func CtxErr(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
	}
	return err
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	const max = 4 << 10
	if len(s) > max {
		s = s[:max]
	}
	return s
}
