package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmxml/internal/diag"
	"llmxml/pkg/contract"
)

func TestSplitChat(t *testing.T) {
	p := contract.ChatPrompt{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "payload"},
		{Role: "JSON_SCHEMA", Content: `{"type":"object"}`},
	}
	got, err := Split(p)
	require.NoError(t, err)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, "payload", got.UserText())
	assert.JSONEq(t, `{"type":"object"}`, string(got.Schema))
}

func TestSplitInvalidSchemaIgnored(t *testing.T) {
	got, err := Split(contract.ChatPrompt{{Role: "user", Content: "u"}, {Role: "json_schema", Content: "{"}})
	require.NoError(t, err)
	assert.Nil(t, got.Schema)
}

func TestSplitErrors(t *testing.T) {
	_, err := Split(contract.ChatPrompt{{Role: "system", Content: "only"}})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = Split(42)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	got, err := Split(contract.TextPrompt("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", got.UserText())
}

func TestAPIKey(t *testing.T) {
	t.Setenv("LLMXML_TEST_KEY", "from-env")
	k, err := APIKey("p", "explicit", "LLMXML_TEST_KEY", "")
	require.NoError(t, err)
	assert.Equal(t, "explicit", k)
	k, err = APIKey("p", "", "", "LLMXML_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-env", k)
	_, err = APIKey("p", "", "LLMXML_TEST_UNSET", "")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestMapStatus(t *testing.T) {
	assert.ErrorIs(t, MapStatus("x", http.StatusTooManyRequests, ""), contract.ErrRateLimited)
	assert.ErrorIs(t, MapStatus("x", http.StatusBadRequest, "bad"), contract.ErrInvalidInput)

	err := MapStatus("x", http.StatusBadGateway, "down")
	var ue contract.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 502, ue.UpstreamStatus())
	var ne net.Error
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, diag.CodeNetwork, diag.Classify(err))
	assert.True(t, MapStatus("x", http.StatusRequestTimeout, "").(*UpstreamError).Timeout())
}

func TestCtxErr(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wrapped := errors.Join(errors.New("sdk"), context.Canceled)
	assert.Equal(t, context.Canceled, CtxErr(ctx, wrapped))
	other := errors.New("x")
	assert.Equal(t, other, CtxErr(ctx, other))
}
