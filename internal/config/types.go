package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键名使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs"`
	// MaxTokens: 单次外部调用的 token 上限；0 表示不做预算检查。
	MaxTokens     int `json:"max_tokens"`
	BytesPerToken int `json:"bytes_per_token"`
	// BatchSize: 每个批清单包含的文件数。
	BatchSize int `json:"batch_size"`
	// WriteDocuments: 除清单外另行写出每个变体的 XML 文件。
	WriteDocuments *bool   `json:"write_documents,omitempty"`
	Logging        Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// LLM Provider 选择与定义。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader        string `json:"reader"`
	PromptBuilder string `json:"prompt_builder"`
	Writer        string `json:"writer"`
}

// Options: 各组件的原样 JSON Options；Engine 为标记词汇（span.Options）。
type Options struct {
	Reader        json.RawMessage `json:"reader"`
	PromptBuilder json.RawMessage `json:"prompt_builder"`
	Writer        json.RawMessage `json:"writer"`
	Engine        json.RawMessage `json:"engine"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options"`
	Limits  Limits          `json:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm"`
	TPM             int `json:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req"`
}

// WriteDocumentsEnabled 返回生效值（未设置为 false）。
func (c Config) WriteDocumentsEnabled() bool {
	return c.WriteDocuments != nil && *c.WriteDocuments
}
