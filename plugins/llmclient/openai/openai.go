// Package openai 基于 openai-go 的 Chat Completions 客户端。
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"llmxml/pkg/contract"
	"llmxml/plugins/llmclient/internal/chat"
)

const provider = "openai"

// Options 客户端配置。
type Options struct {
	BaseURL        string   `json:"base_url"` // 默认 https://api.openai.com/v1
	Model          string   `json:"model"`
	APIKeyEnv      string   `json:"api_key_env"` // 默认 OPENAI_API_KEY
	APIKey         string   `json:"api_key"`
	TimeoutSeconds int      `json:"timeout_seconds"` // 默认 60
	Temperature    *float64 `json:"temperature,omitempty"`
	// ResponseFormat: json_object（默认）| json_schema | text
	ResponseFormat string `json:"response_format,omitempty"`
	// ExtraHeaders 用于 OpenAI 兼容服务（Azure/OpenRouter 等）。
	ExtraHeaders map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.ResponseFormat == "" {
		o.ResponseFormat = "json_object"
	}
}

type Client struct {
	cli    sdk.Client
	model  string
	temp   *float64
	format string
}

// New 构造客户端；缺少凭据时返回 ErrInvalidInput。
func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.defaults()
	switch o.ResponseFormat {
	case "json_object", "json_schema", "text":
	default:
		return nil, fmt.Errorf("%s: %w: unknown response_format %q", provider, contract.ErrInvalidInput, o.ResponseFormat)
	}
	key, err := chat.APIKey(provider, o.APIKey, o.APIKeyEnv, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	ro := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(o.BaseURL),
		option.WithRequestTimeout(time.Duration(o.TimeoutSeconds) * time.Second),
		// 单次调用，不重试
		option.WithMaxRetries(0),
	}
	for k, v := range o.ExtraHeaders {
		if k != "" {
			ro = append(ro, option.WithHeader(k, v))
		}
	}
	return &Client{cli: sdk.NewClient(ro...), model: o.Model, temp: o.Temperature, format: o.ResponseFormat}, nil
}

var _ contract.LLMClient = (*Client)(nil)

func (c *Client) params(parts chat.Parts) sdk.ChatCompletionNewParams {
	var msgs []sdk.ChatCompletionMessageParamUnion
	if parts.System != "" {
		msgs = append(msgs, sdk.SystemMessage(parts.System))
	}
	for _, u := range parts.User {
		msgs = append(msgs, sdk.UserMessage(u))
	}
	p := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: msgs,
	}
	if c.temp != nil {
		p.Temperature = sdk.Float(*c.temp)
	}
	switch {
	case c.format == "json_schema" && len(parts.Schema) > 0:
		var schema map[string]any
		if json.Unmarshal(parts.Schema, &schema) == nil {
			p.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   "rewrite",
						Schema: schema,
						Strict: sdk.Bool(true),
					},
				},
			}
			break
		}
		fallthrough
	case c.format != "text":
		p.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return p
}

// Invoke 单次调用，同步返回首个 choice 的文本。
func (c *Client) Invoke(ctx context.Context, _ contract.RewriteRequest, p contract.Prompt) (contract.Raw, error) {
	parts, err := chat.Split(p)
	if err != nil {
		return contract.Raw{}, err
	}
	resp, err := c.cli.Chat.Completions.New(ctx, c.params(parts))
	if err != nil {
		var apierr *sdk.Error
		if errors.As(err, &apierr) {
			return contract.Raw{}, chat.MapStatus(provider, apierr.StatusCode, apierr.Message)
		}
		return contract.Raw{}, chat.CtxErr(ctx, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return contract.Raw{}, fmt.Errorf("%s: %w: empty choices", provider, contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: resp.Choices[0].Message.Content}, nil
}
