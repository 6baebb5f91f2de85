package rewrite

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmxml/internal/payload"
	"llmxml/pkg/contract"
)

func TestBuildDefault(t *testing.T) {
	b, err := New(nil)
	require.NoError(t, err)
	req := contract.RewriteRequest{FileID: "1_a.xml", Payload: `a\+\b\nc`, SpanCount: 2, Delimiter: payload.Delimiter}
	p, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	cp, ok := p.(contract.ChatPrompt)
	require.True(t, ok)
	require.Len(t, cp, 3)
	assert.Equal(t, "system", cp[0].Role)
	assert.Contains(t, cp[0].Content, payload.Delimiter)
	assert.Contains(t, cp[0].Content, "exactly 2 segments")
	// 载荷原样
	assert.Equal(t, "user", cp[1].Role)
	assert.Equal(t, req.Payload, cp[1].Content)
	assert.Equal(t, "json_schema", cp[2].Role)
	assert.True(t, json.Valid([]byte(cp[2].Content)))
}

func TestBuildEmptyPayload(t *testing.T) {
	b, _ := New(nil)
	_, err := b.Build(context.Background(), contract.RewriteRequest{Payload: "  "})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestBuildCanceled(t *testing.T) {
	b, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Build(ctx, contract.RewriteRequest{Payload: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTemplateOverrides(t *testing.T) {
	b, err := New(&Options{InlineSystemTemplate: "sep={{.Delimiter}} n={{.SpanCount}}", Guidance: "formal register"})
	require.NoError(t, err)
	p, err := b.Build(context.Background(), contract.RewriteRequest{Payload: "x", SpanCount: 1})
	require.NoError(t, err)
	sys := p.(contract.ChatPrompt)[0].Content
	assert.True(t, strings.HasPrefix(sys, `sep=\+\ n=1`))
	assert.Contains(t, sys, "<guidance>\nformal register\n</guidance>")

	path := filepath.Join(t.TempDir(), "sys.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))
	b, err = New(&Options{SystemTemplatePath: path})
	require.NoError(t, err)
	p, _ = b.Build(context.Background(), contract.RewriteRequest{Payload: "x"})
	assert.Equal(t, "from file", p.(contract.ChatPrompt)[0].Content)
}

func TestTemplateErrors(t *testing.T) {
	_, err := New(&Options{InlineSystemTemplate: "{{"})
	assert.Error(t, err)
	_, err = New(&Options{SystemTemplatePath: filepath.Join(t.TempDir(), "none")})
	assert.Error(t, err)
	// 未知字段在渲染期报错
	b, err := New(&Options{InlineSystemTemplate: "{{.Nope}}"})
	require.NoError(t, err)
	_, err = b.Build(context.Background(), contract.RewriteRequest{Payload: "x"})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestEstimateOverhead(t *testing.T) {
	b, _ := New(nil)
	assert.Equal(t, 0, b.EstimateOverheadTokens(nil))
	est := func(s string) int { return len(s) }
	got := b.EstimateOverheadTokens(est)
	assert.Greater(t, got, len(JSONSchema))
	// 固定开销不随载荷变化
	assert.Equal(t, got, b.EstimateOverheadTokens(est))
}
