package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
)

// DefaultKeyEnv 为各客户端未显式配置 api_key_env 时读取的环境变量。
var DefaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GOOGLE_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// DeriveKeyFromProviderOptions 从客户端标识与其原样 Options JSON 中解析 API Key，
// 返回 client+sha256(key) 形式的限流分组键；找不到 key 时返回错误。
// mock 客户端缺省使用内置 "MOCK_DEBUG_KEY"。
func DeriveKeyFromProviderOptions(client string, raw json.RawMessage) (LimitKey, error) {
	var opts struct {
		APIKey    string `json:"api_key"`
		APIKeyEnv string `json:"api_key_env"`
	}
	// 其余字段由插件自行严格校验，这里只取两个键
	_ = json.Unmarshal(raw, &opts)

	key := opts.APIKey
	if key == "" {
		env := opts.APIKeyEnv
		if env == "" {
			env = DefaultKeyEnv[client]
		}
		if env != "" {
			key = os.Getenv(env)
		}
	}
	if key == "" && client == "mock" {
		key = "MOCK_DEBUG_KEY"
	}
	if key == "" {
		return "", fmt.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:])), nil
}
