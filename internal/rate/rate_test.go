package rate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"llmxml/pkg/contract"
)

// UT-RTE-01: 超过 RPM/TPM
func TestGateTryLimit(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1, TPM: 10, MaxTokensPerReq: 5}}, clk)
	if !g.Try(Ask{Key: "k", Requests: 1, Tokens: 3}) {
		t.Fatalf("首次应通过")
	}
	if g.Try(Ask{Key: "k", Requests: 1, Tokens: 3}) {
		t.Fatalf("应因 RPM 拒绝")
	}
	// 一分钟后回填
	now = now.Add(time.Minute)
	if !g.Try(Ask{Key: "k", Requests: 1, Tokens: 3}) {
		t.Fatalf("回填后应通过")
	}
	if r, tok := g.Available("k"); r != 0 || tok != 7 {
		t.Fatalf("可用额度不符: rpm=%d tpm=%d", r, tok)
	}
}

// UT-RTE-02: 取消上下文
func TestGateWaitCancel(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1}}, func() time.Time { return now })
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if err := g.Wait(ctx, Ask{Key: "k", Requests: 2}); !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回取消错误, got %v", err)
	}
}

// UT-RTE-03: 单请求上限与非法申请
func TestGateWaitRejects(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {MaxTokensPerReq: 5}}, nil)
	if err := g.Wait(context.Background(), Ask{Key: "k", Requests: 1, Tokens: 6}); !errors.Is(err, contract.ErrBudgetExceeded) {
		t.Fatalf("超单请求上限应为预算错误, got %v", err)
	}
	if err := g.Wait(context.Background(), Ask{Key: "k", Requests: 0}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("Requests=0 应为非法输入, got %v", err)
	}
	// 未配置的 key 不限额
	if err := g.Wait(context.Background(), Ask{Key: "other", Requests: 1, Tokens: 1 << 20}); err != nil {
		t.Fatalf("未配置 key 应直接放行: %v", err)
	}
}

func TestDeriveKeyFromProviderOptions(t *testing.T) {
	t.Setenv("TEST_KEY", "abc")
	raw, _ := json.Marshal(map[string]any{"api_key_env": "TEST_KEY", "model": "x"})
	k, err := DeriveKeyFromProviderOptions("openai", raw)
	if err != nil || !strings.HasPrefix(string(k), "openai:") {
		t.Fatalf("派生失败: %v %q", err, k)
	}
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := DeriveKeyFromProviderOptions("openai", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("缺少 key 应失败")
	}
	t.Setenv("ANTHROPIC_API_KEY", "abc")
	ka, err := DeriveKeyFromProviderOptions("anthropic", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("默认环境变量应生效: %v", err)
	}
	if strings.TrimPrefix(string(ka), "anthropic:") != strings.TrimPrefix(string(k), "openai:") {
		t.Fatalf("相同 key 的摘要应一致")
	}
	if _, err := DeriveKeyFromProviderOptions("mock", nil); err != nil {
		t.Fatalf("mock 应有内置 key: %v", err)
	}
}
