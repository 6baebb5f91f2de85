package config

import "encoding/json"

// DefaultTemplateConfig 返回一个可直接运行的配置模板：
// 使用 mock LLM（离线演练），输入为 STDIN，Writer 输出到 ./out；
// 其余 provider 给出全部选项键，值为空或默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	writeDocs := true
	cfg := Config{
		Inputs:         []string{"-"},
		MaxTokens:      8192,
		BytesPerToken:  d.BytesPerToken,
		BatchSize:      d.BatchSize,
		WriteDocuments: &writeDocs,
		Logging:        Logging{Level: "info"},
		Components:     d.Components,
		LLM:            "mock",
		Provider: map[string]Provider{
			"mock": {
				Client:  "mock",
				Options: json.RawMessage(`{"response_mode":"","positive_prefix":"","negative_prefix":"","api_key":""}`),
				Limits:  Limits{RPM: 60, TPM: 100000, MaxTokensPerReq: 16384},
			},
			"openai": {
				Client: "openai",
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "gpt-4.1-mini",
  "api_key_env": "OPENAI_API_KEY",
  "api_key": "",
  "timeout_seconds": 60,
  "response_format": "json_schema",
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 60, TPM: 200000, MaxTokensPerReq: 0},
			},
			"gemini": {
				Client: "gemini",
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "gemini-2.5-flash",
  "api_key_env": "GOOGLE_API_KEY",
  "api_key": "",
  "timeout_seconds": 60,
  "response_mime_type": "application/json",
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 60, TPM: 250000, MaxTokensPerReq: 0},
			},
			"anthropic": {
				Client: "anthropic",
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "claude-3-5-haiku-latest",
  "api_key_env": "ANTHROPIC_API_KEY",
  "api_key": "",
  "max_tokens": 4096,
  "timeout_seconds": 60,
  "extra_headers": {}
}`),
				Limits: Limits{RPM: 50, TPM: 50000, MaxTokensPerReq: 0},
			},
		},
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "extensions": [".xml"]
}`)
	cfg.Options.PromptBuilder = json.RawMessage(`{
  "inline_system_template": "",
  "system_template_path": "",
  "guidance": ""
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "buf_size": 65536
}`)
	cfg.Options.Engine = json.RawMessage(`{
  "structured_tag": "SIMPLE_TEXT",
  "body_tag": "TextBody",
  "structured_cache_tag": "RenderPos",
  "flat_tag": "TEXT",
  "inner_tag": "Text",
  "flat_cache_tag": "TextData",
  "id_attr": "TbpeId",
  "tree_cache_size": 0
}`)
	return cfg
}
