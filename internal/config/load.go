package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"llmxml/pkg/contract"
)

// EnvPrefix 为环境变量覆盖的前缀。
const EnvPrefix = "LLMXML_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：LLM 不设默认（必须由配置文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		BytesPerToken: 4,
		BatchSize:     10,
		Components: Components{
			Reader:        "fs",
			PromptBuilder: "rewrite",
			Writer:        "fs",
		},
	}
}

// LoadFile 按扩展名解析配置：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		return LoadYAML(raw)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: config: %v", contract.ErrInvalidInput, err)
	}
	return cfg, nil
}

// LoadYAML 将 YAML 转为 JSON 后按 LoadJSON 的规则严格解析，
// 以便各组件 Options 仍以原样 JSON 交给工厂。
func LoadYAML(raw []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: config yaml: %v", contract.ErrInvalidInput, err)
	}
	if doc == nil {
		return Config{}, errors.New("config yaml: empty document")
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("%w: config yaml: %v", contract.ErrInvalidInput, err)
	}
	return LoadJSON("", js)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.MaxTokens != 0 {
		out.MaxTokens = over.MaxTokens
	}
	if over.BytesPerToken != 0 {
		out.BytesPerToken = over.BytesPerToken
	}
	if over.BatchSize != 0 {
		out.BatchSize = over.BatchSize
	}
	// false 也是有效覆盖，故以指针区分“未设置”
	if over.WriteDocuments != nil {
		v := *over.WriteDocuments
		out.WriteDocuments = &v
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.PromptBuilder != "" {
		out.Components.PromptBuilder = over.Components.PromptBuilder
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Provider（完整替换对应键）
	if len(over.Provider) > 0 {
		merged := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			merged[k] = v
		}
		for k, v := range over.Provider {
			merged[k] = v
		}
		out.Provider = merged
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.PromptBuilder) > 0 {
		out.Options.PromptBuilder = cloneRaw(over.Options.PromptBuilder)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Engine) > 0 {
		out.Options.Engine = cloneRaw(over.Options.Engine)
	}

	if strings.TrimSpace(over.LLM) != "" {
		out.LLM = strings.TrimSpace(over.LLM)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：INPUTS, MAX_TOKENS, BYTES_PER_TOKEN, BATCH_SIZE, WRITE_DOCUMENTS, LLM, LOG_LEVEL,
// COMPONENTS_*, OPTIONS_*_JSON，
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ} / PROVIDER__<name>__OPTIONS_JSON。
// 数值无法解析时返回 ErrInvalidInput。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key, val := kv[:eq], kv[eq+1:]
		nk := strings.TrimPrefix(key, EnvPrefix)
		num := func(dst *int) error {
			v, err := atoi(val)
			if err != nil {
				return fmt.Errorf("%w: %s=%q", contract.ErrInvalidInput, key, val)
			}
			*dst = v
			return nil
		}
		switch nk {
		case "INPUTS":
			if val != "" {
				over.Inputs = splitComma(val)
			}
		case "MAX_TOKENS":
			if err := num(&over.MaxTokens); err != nil {
				return Config{}, err
			}
		case "BYTES_PER_TOKEN":
			if err := num(&over.BytesPerToken); err != nil {
				return Config{}, err
			}
		case "BATCH_SIZE":
			if err := num(&over.BatchSize); err != nil {
				return Config{}, err
			}
		case "WRITE_DOCUMENTS":
			if strings.TrimSpace(val) == "" {
				continue
			}
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return Config{}, fmt.Errorf("%w: %s=%q", contract.ErrInvalidInput, key, val)
			}
			over.WriteDocuments = &b
		case "LLM":
			over.LLM = strings.TrimSpace(val)
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_PROMPT_BUILDER":
			over.Components.PromptBuilder = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "OPTIONS_READER_JSON":
			over.Options.Reader = rawOrNil(val)
		case "OPTIONS_PROMPT_BUILDER_JSON":
			over.Options.PromptBuilder = rawOrNil(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = rawOrNil(val)
		case "OPTIONS_ENGINE_JSON":
			over.Options.Engine = rawOrNil(val)
		default:
			// provider.* 路径：PROVIDER__name__FOO
			if !strings.HasPrefix(nk, "PROVIDER__") {
				continue
			}
			parts := strings.Split(nk, "__")
			if len(parts) < 3 {
				continue
			}
			name := strings.TrimSpace(parts[1])
			field := strings.Join(parts[2:], "__")
			p := prov[name]
			changed := false
			switch field {
			case "CLIENT":
				if tv := strings.TrimSpace(val); tv != "" {
					p.Client = tv
					changed = true
				}
			case "LIMITS_RPM":
				if err := num(&p.Limits.RPM); err != nil {
					return Config{}, err
				}
				changed = true
			case "LIMITS_TPM":
				if err := num(&p.Limits.TPM); err != nil {
					return Config{}, err
				}
				changed = true
			case "LIMITS_MAX_TOKENS_PER_REQ":
				if err := num(&p.Limits.MaxTokensPerReq); err != nil {
					return Config{}, err
				}
				changed = true
			case "OPTIONS_JSON":
				// 空值视为未设置，避免清空现有配置
				if r := rawOrNil(val); r != nil {
					p.Options = r
					changed = true
				}
			}
			if changed {
				prov[name] = p
			}
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

func rawOrNil(s string) json.RawMessage {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.RawMessage(s)
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
