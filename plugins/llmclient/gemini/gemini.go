// Package gemini 基于 google.golang.org/genai 的 Gemini 客户端。
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"llmxml/pkg/contract"
	"llmxml/plugins/llmclient/internal/chat"
)

const provider = "gemini"

// Options 客户端配置。
type Options struct {
	BaseURL        string   `json:"base_url"` // 为空时使用 SDK 默认端点
	APIVersion     string   `json:"api_version,omitempty"`
	Model          string   `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv      string   `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey         string   `json:"api_key"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"` // 默认 60
	Temperature    *float64 `json:"temperature,omitempty"`
	// ResponseMIMEType 默认 application/json；"text/plain" 可关闭 JSON 模式。
	ResponseMIMEType string            `json:"response_mime_type,omitempty"`
	ExtraHeaders     map[string]string `json:"extra_headers"`
}

type Client struct {
	cli   *genai.Client
	model string
	temp  *float64
	mime  string
}

// New 构造客户端；缺少凭据时返回 ErrInvalidInput。
func New(opts *Options) (*Client, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.ResponseMIMEType == "" {
		o.ResponseMIMEType = "application/json"
	}
	key, err := chat.APIKey(provider, o.APIKey, o.APIKeyEnv, "GOOGLE_API_KEY")
	if err != nil {
		return nil, err
	}
	hdr := http.Header{}
	for k, v := range o.ExtraHeaders {
		if k != "" {
			hdr.Set(k, v)
		}
	}
	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: time.Duration(o.TimeoutSeconds) * time.Second},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    o.BaseURL,
			APIVersion: o.APIVersion,
			Headers:    hdr,
		},
	}
	cli, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", provider, contract.ErrInvalidInput, err)
	}
	return &Client{cli: cli, model: o.Model, temp: o.Temperature, mime: o.ResponseMIMEType}, nil
}

var _ contract.LLMClient = (*Client)(nil)

func (c *Client) config(parts chat.Parts) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{ResponseMIMEType: c.mime}
	if parts.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(parts.System, genai.RoleUser)
	}
	if c.temp != nil {
		gc.Temperature = genai.Ptr(float32(*c.temp))
	}
	return gc
}

// Invoke 单次调用，拼接首个候选的全部文本 part。
func (c *Client) Invoke(ctx context.Context, _ contract.RewriteRequest, p contract.Prompt) (contract.Raw, error) {
	parts, err := chat.Split(p)
	if err != nil {
		return contract.Raw{}, err
	}
	contents := make([]*genai.Content, 0, len(parts.User))
	for _, u := range parts.User {
		contents = append(contents, genai.NewContentFromText(u, genai.RoleUser))
	}
	resp, err := c.cli.Models.GenerateContent(ctx, c.model, contents, c.config(parts))
	if err != nil {
		if status, msg, ok := apiStatus(err); ok {
			return contract.Raw{}, chat.MapStatus(provider, status, msg)
		}
		return contract.Raw{}, chat.CtxErr(ctx, err)
	}
	text := firstText(resp)
	if strings.TrimSpace(text) == "" {
		return contract.Raw{}, fmt.Errorf("%s: %w: empty candidates", provider, contract.ErrResponseInvalid)
	}
	return contract.Raw{Text: text}, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func apiStatus(err error) (int, string, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v.Code, v.Message, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return p.Code, p.Message, true
	}
	return 0, "", false
}
