package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"llmxml/internal/pipeline"
	"llmxml/internal/rate"
	"llmxml/internal/span"
	"llmxml/pkg/contract"
	"llmxml/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.MaxTokens < 0 {
		return errors.New("config: max_tokens must be >= 0")
	}
	if cfg.BytesPerToken < 0 {
		return errors.New("config: bytes_per_token must be >= 0")
	}
	if cfg.BatchSize < 1 {
		return errors.New("config: batch_size must be >= 1")
	}
	if cfg.LLM == "" {
		return errors.New("config: llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return fmt.Errorf("config: provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return fmt.Errorf("config: provider %q missing client", cfg.LLM)
	}
	if prov.Limits.RPM < 0 || prov.Limits.TPM < 0 || prov.Limits.MaxTokensPerReq < 0 {
		return fmt.Errorf("config: provider %q limits must be >= 0", cfg.LLM)
	}
	if prov.Limits.MaxTokensPerReq > 0 && cfg.MaxTokens > prov.Limits.MaxTokensPerReq {
		return fmt.Errorf("config: max_tokens(%d) exceeds provider.max_tokens_per_req(%d)", cfg.MaxTokens, prov.Limits.MaxTokensPerReq)
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.PromptBuilder, d.PromptBuilder); registry.PromptBuilder[name] == nil {
		return fmt.Errorf("config: prompt_builder %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if registry.LLMClient[prov.Client] == nil {
		return fmt.Errorf("config: llm client %q not registered", prov.Client)
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate 与分组键）。
// 组件 Options 的严格解析在 registry（工厂）层进行；引擎词汇在此严格解析。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	var (
		comp pipeline.Components
		set  pipeline.Settings
	)
	if err := Validate(cfg); err != nil {
		return comp, set, err
	}

	d := Defaults().Components
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader)
	if err != nil {
		return comp, set, fmt.Errorf("reader: %w", err)
	}
	pb, err := registry.PromptBuilder[effName(cfg.Components.PromptBuilder, d.PromptBuilder)](cfg.Options.PromptBuilder)
	if err != nil {
		return comp, set, fmt.Errorf("prompt_builder: %w", err)
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer)
	if err != nil {
		return comp, set, fmt.Errorf("writer: %w", err)
	}
	prov := cfg.Provider[cfg.LLM]
	llm, err := registry.LLMClient[prov.Client](prov.Options)
	if err != nil {
		return comp, set, fmt.Errorf("llm %s: %w", cfg.LLM, err)
	}
	engine, err := engineOptions(cfg.Options.Engine)
	if err != nil {
		return comp, set, err
	}

	// 分组键优先从 API Key 派生；失败时退化为 provider 名称
	key, derr := rate.DeriveKeyFromProviderOptions(prov.Client, prov.Options)
	if derr != nil {
		key = rate.LimitKey(cfg.LLM)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, TPM: prov.Limits.TPM, MaxTokensPerReq: prov.Limits.MaxTokensPerReq},
	}, nil)

	comp = pipeline.Components{Reader: r, PromptBuilder: pb, LLM: llm, Writer: w}
	set = pipeline.Settings{
		Inputs:         cloneStrings(cfg.Inputs),
		MaxTokens:      cfg.MaxTokens,
		BytesPerToken:  cfg.BytesPerToken,
		BatchSize:      cfg.BatchSize,
		WriteDocuments: cfg.WriteDocumentsEnabled(),
		Engine:         engine,
		Gate:           gate,
		GateKey:        key,
	}
	return comp, set, nil
}

// engineOptions 严格解析标记词汇；缺省字段由引擎补默认值。
func engineOptions(raw json.RawMessage) (span.Options, error) {
	var o span.Options
	if len(bytes.TrimSpace(raw)) == 0 {
		return o, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&o); err != nil {
		return o, fmt.Errorf("%w: engine options: %v", contract.ErrInvalidInput, err)
	}
	return o, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
