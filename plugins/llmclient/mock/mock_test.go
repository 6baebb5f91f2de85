package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmxml/internal/payload"
	"llmxml/pkg/contract"
)

func invoke(t *testing.T, mode, body string) (contract.RewriteResult, error) {
	t.Helper()
	c, err := New(&Options{ResponseMode: mode})
	require.NoError(t, err)
	raw, err := c.Invoke(context.Background(), contract.RewriteRequest{Payload: body, Delimiter: payload.Delimiter}, nil)
	if err != nil {
		return contract.RewriteResult{}, err
	}
	return payload.ParseResult(raw)
}

func TestModes(t *testing.T) {
	body := `a\+\b\nc`

	res, err := invoke(t, "", body)
	require.NoError(t, err)
	assert.Equal(t, []string{"POS: a", "POS: b\nc"}, payload.Decode(res, contract.Positive))
	assert.Equal(t, []string{"NEG: a", "NEG: b\nc"}, payload.Decode(res, contract.Negative))

	res, err = invoke(t, ModeEcho, body)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b\nc"}, payload.Decode(res, contract.Negative))

	res, err = invoke(t, ModeBare, body)
	require.NoError(t, err)
	assert.False(t, res.Structured())
	assert.Equal(t, body, res.Bare)

	res, err = invoke(t, ModeDropLast, body)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, payload.Decode(res, contract.Positive))

	res, err = invoke(t, ModeExtra, body)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b\nc", "extra"}, payload.Decode(res, contract.Positive))

	_, err = invoke(t, ModeError, body)
	assert.ErrorIs(t, err, contract.ErrResponseInvalid)
}

// 片段内转义过的反斜杠与分隔符形状不改变片段数
func TestModesKeepEscapedText(t *testing.T) {
	spans := []contract.Span{{Text: payload.Escape(`a \+\ b`)}, {Text: payload.Escape(`C:\new`)}}
	res, err := invoke(t, ModePrefix, payload.Encode(spans))
	require.NoError(t, err)
	assert.Equal(t, []string{`POS: a \+\ b`, `POS: C:\new`}, payload.Decode(res, contract.Positive))
}

func TestCustomPrefixes(t *testing.T) {
	c, err := New(&Options{PositivePrefix: "+", NegativePrefix: "-"})
	require.NoError(t, err)
	assert.Equal(t, ModePrefix, c.Mode())
	raw, err := c.Invoke(context.Background(), contract.RewriteRequest{Payload: "x"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"positive":"+x","negative":"-x"}`, raw.Text)
}

func TestUnknownMode(t *testing.T) {
	_, err := New(&Options{ResponseMode: "nope"})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestCanceled(t *testing.T) {
	c, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Invoke(ctx, contract.RewriteRequest{Payload: "x"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
