package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"llmxml/pkg/contract"
	anth "llmxml/plugins/llmclient/anthropic"
	gmi "llmxml/plugins/llmclient/gemini"
	mock "llmxml/plugins/llmclient/mock"
	oai "llmxml/plugins/llmclient/openai"
	prw "llmxml/plugins/prompt/rewrite"
	rfs "llmxml/plugins/reader/filesystem"
	wfs "llmxml/plugins/writer/filesystem"
	ws3 "llmxml/plugins/writer/s3"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
	}
	return nil
}

// build 严格解码 O 后交给构造函数。
func build[O any, T any](raw json.RawMessage, mk func(*O) (T, error)) (T, error) {
	var opts O
	if err := strictUnmarshal(raw, &opts); err != nil {
		var zero T
		return zero, err
	}
	return mk(&opts)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewPromptBuilder 工厂签名：接收原样 JSON Options。
type NewPromptBuilder func(raw json.RawMessage) (contract.PromptBuilder, error)

// NewLLMClient 工厂签名：接收原样 JSON Options。
type NewLLMClient func(raw json.RawMessage) (contract.LLMClient, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件/目录/STDIN
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		return build(raw, func(o *rfs.Options) (contract.Reader, error) { return rfs.New(o), nil })
	},
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// rewrite: 正/负语气改写（system + 载荷 + schema）
	"rewrite": func(raw json.RawMessage) (contract.PromptBuilder, error) {
		return build(raw, func(o *prw.Options) (contract.PromptBuilder, error) { return prw.New(o) })
	},
}

// LLMClient 工厂注册表。
var LLMClient = map[string]NewLLMClient{
	"openai": func(raw json.RawMessage) (contract.LLMClient, error) {
		return build(raw, func(o *oai.Options) (contract.LLMClient, error) { return oai.New(o) })
	},
	"gemini": func(raw json.RawMessage) (contract.LLMClient, error) {
		return build(raw, func(o *gmi.Options) (contract.LLMClient, error) { return gmi.New(o) })
	},
	"anthropic": func(raw json.RawMessage) (contract.LLMClient, error) {
		return build(raw, func(o *anth.Options) (contract.LLMClient, error) { return anth.New(o) })
	},
	"mock": func(raw json.RawMessage) (contract.LLMClient, error) {
		return build(raw, func(o *mock.Options) (contract.LLMClient, error) { return mock.New(o) })
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统（默认原子替换）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		return build(raw, func(o *wfs.Options) (contract.Writer, error) { return wfs.New(o) })
	},
	// s3: S3 兼容对象存储
	"s3": func(raw json.RawMessage) (contract.Writer, error) {
		return build(raw, func(o *ws3.Options) (contract.Writer, error) { return ws3.New(o) })
	},
}
