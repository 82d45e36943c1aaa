package codec

import (
	"editor-rpc/message"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	req := &message.Request{
		ID:        "1",
		Command:   "ping",
		Arguments: map[string]any{},
	}

	data, err := Encode(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","command":"ping","arguments":{}}`, string(data))
}

func TestEncodeNeverContainsNewline(t *testing.T) {
	req := &message.Request{
		ID:        "2",
		Command:   "echo",
		Arguments: map[string]any{"text": "line one\nline two"},
	}

	data, err := Encode(req)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "\n"), "encoded frame must not contain a raw newline")
}

func TestDecodeRequestDefaultsArguments(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"id":"x","command":"doesNotExist"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", req.ID)
	assert.Equal(t, "doesNotExist", req.Command)
	assert.NotNil(t, req.Arguments)
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"id":"1","result":"pong"}`))
	require.NoError(t, err)
	assert.Equal(t, "1", resp.ID)
	assert.False(t, resp.Failed())
	assert.JSONEq(t, `"pong"`, string(resp.Value()))

	resp, err = DecodeResponse([]byte(`{"id":"2","error":"boom"}`))
	require.NoError(t, err)
	assert.True(t, resp.Failed())
	assert.Equal(t, "boom", resp.Error)
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := DecodeResponse([]byte(`this is not json`))
	require.Error(t, err)

	var fe *FramingError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "this is not json", string(fe.Frame))

	_, err = DecodeRequest([]byte(`{"id":`))
	assert.True(t, errors.As(err, &fe))
}

func TestNilResultEncodesAsNull(t *testing.T) {
	resp, err := message.NewResult("7", nil)
	require.NoError(t, err)

	data, err := Encode(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"7","result":null}`, string(data))

	decoded, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.False(t, decoded.Failed())
	assert.Equal(t, "null", string(decoded.Value()))
}

func BenchmarkCodecJSON(b *testing.B) {
	req := &message.Request{
		ID:        "3f2a9c1e-42",
		Command:   "updateSetting",
		Arguments: map[string]any{"key": "editor.tabSize", "value": 2},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := Encode(req)
		DecodeRequest(data)
	}
}
