// Package anthropic 基于 anthropic-sdk-go 的 Messages 客户端。
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"llmxml/pkg/contract"
	"llmxml/plugins/llmclient/internal/chat"
)

const provider = "anthropic"

// Options 客户端配置。
type Options struct {
	BaseURL        string            `json:"base_url"`
	Model          string            `json:"model"`       // 默认 claude-3-5-haiku-latest
	APIKeyEnv      string            `json:"api_key_env"` // 默认 ANTHROPIC_API_KEY
	APIKey         string            `json:"api_key"`
	MaxTokens      int64             `json:"max_tokens,omitempty"` // 响应上限，默认 4096
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ExtraHeaders   map[string]string `json:"extra_headers"`
}

type Client struct {
	cli       sdk.Client
	model     string
	maxTokens int64
	temp      *float64
}

// New 构造客户端；缺少凭据时返回 ErrInvalidInput。
func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Model == "" {
		o.Model = "claude-3-5-haiku-latest"
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	key, err := chat.APIKey(provider, o.APIKey, o.APIKeyEnv, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	ro := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithRequestTimeout(time.Duration(o.TimeoutSeconds) * time.Second),
		option.WithMaxRetries(0),
	}
	if o.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(o.BaseURL))
	}
	for k, v := range o.ExtraHeaders {
		if k != "" {
			ro = append(ro, option.WithHeader(k, v))
		}
	}
	return &Client{cli: sdk.NewClient(ro...), model: o.Model, maxTokens: o.MaxTokens, temp: o.Temperature}, nil
}

var _ contract.LLMClient = (*Client)(nil)

// Invoke 单次调用，拼接全部 text 块。
// Messages API 无 JSON 模式，输出形态依赖 system 指令。
func (c *Client) Invoke(ctx context.Context, _ contract.RewriteRequest, p contract.Prompt) (contract.Raw, error) {
	parts, err := chat.Split(p)
	if err != nil {
		return contract.Raw{}, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(parts.UserText()))},
	}
	if parts.System != "" {
		params.System = []sdk.TextBlockParam{{Text: parts.System}}
	}
	if c.temp != nil {
		params.Temperature = sdk.Float(*c.temp)
	}
	msg, err := c.cli.Messages.New(ctx, params)
	if err != nil {
		var apierr *sdk.Error
		if errors.As(err, &apierr) {
			return contract.Raw{}, chat.MapStatus(provider, apierr.StatusCode, apierr.Error())
		}
		return contract.Raw{}, chat.CtxErr(ctx, err)
	}
	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return contract.Raw{}, fmt.Errorf("%s: %w: no text content", provider, contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: sb.String()}, nil
}
