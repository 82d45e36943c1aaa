package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestWireFormat(t *testing.T) {
	req := &Request{
		ID:        "3f2a9c1e-1",
		Command:   "updateSetting",
		Arguments: map[string]any{"key": "editor.tabSize", "value": 2},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"3f2a9c1e-1","command":"updateSetting","arguments":{"key":"editor.tabSize","value":2}}`, string(data))
}

func TestResultOmitsError(t *testing.T) {
	resp, err := NewResult("1", map[string]int{"count": 3})
	require.NoError(t, err)
	assert.False(t, resp.Failed())

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","result":{"count":3}}`, string(data))
}

func TestNilResultIsNull(t *testing.T) {
	resp, err := NewResult("1", nil)
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","result":null}`, string(data))
}

func TestRawResultPassesThrough(t *testing.T) {
	resp, err := NewResult("1", json.RawMessage(`[1,2,3]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2,3]`, string(resp.Result))
}

func TestErrorOmitsResult(t *testing.T) {
	resp := NewError("1", "Unknown command: nope")
	assert.True(t, resp.Failed())

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","error":"Unknown command: nope"}`, string(data))

	assert.Equal(t, "unknown error", NewError("2", "").Error)
}

func TestValue(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1"}`), &resp))
	assert.Equal(t, "null", string(resp.Value()))

	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","result":"pong"}`), &resp))
	assert.Equal(t, `"pong"`, string(resp.Value()))
}
