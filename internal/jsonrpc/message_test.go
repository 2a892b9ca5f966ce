package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantType string
		wantErr  bool
	}{
		{name: "request", body: `{"jsonrpc":"2.0","id":1,"method":"ping"}`, wantType: "request"},
		{name: "string id", body: `{"jsonrpc":"2.0","id":"abc","method":"tools/list"}`, wantType: "request"},
		{name: "notification", body: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, wantType: "notification"},
		{name: "response", body: `{"jsonrpc":"2.0","id":7,"result":{}}`, wantType: "response"},
		{name: "surrounding whitespace", body: "\n  {\"jsonrpc\":\"2.0\",\"method\":\"x\"}\n", wantType: "notification"},
		{name: "empty", body: ``, wantErr: true},
		{name: "batch", body: `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, wantErr: true},
		{name: "not json", body: `hello`, wantErr: true},
		{name: "wrong version", body: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, wantErr: true},
		{name: "request with result", body: `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`, wantErr: true},
		{name: "response without result or error", body: `{"jsonrpc":"2.0","id":1}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tc.body))
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMessage), "error should wrap ErrInvalidMessage: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, msg.Kind().String())
		})
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":42,"method":"ping"}`))
	require.NoError(t, err)
	require.Equal(t, "42", msg.ID.String())

	res, err := NewResultResponse(msg.ID, map[string]any{})
	require.NoError(t, err)
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":42,"result":{}}`, string(b))
}

func TestNilRequestIDMarshalsNull(t *testing.T) {
	var id *RequestID
	b, err := id.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestNewNotification(t *testing.T) {
	n, err := NewNotification("notifications/progress", map[string]any{"progress": 1})
	require.NoError(t, err)
	b, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/progress","params":{"progress":1}}`, string(b))
}

func TestRequestIDForms(t *testing.T) {
	for body, want := range map[string]string{
		`"abc"`: "abc",
		`7`:     "7",
		`1.5`:   "1.5",
		`null`:  "",
	} {
		var id RequestID
		require.NoError(t, json.Unmarshal([]byte(body), &id), body)
		assert.Equal(t, want, id.String())
		b, err := json.Marshal(&id)
		require.NoError(t, err)
		assert.JSONEq(t, body, string(b))
	}

	var id RequestID
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &id))
	assert.Equal(t, "3", NewRequestID(3).String())
	assert.Equal(t, "", NewRequestID(struct{}{}).String())
}

func TestErrorResponse(t *testing.T) {
	res := NewErrorResponse(NewRequestID("a"), ErrorCodeMethodNotFound, "method not found", nil)
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"a","error":{"code":-32601,"message":"method not found"}}`, string(b))
	assert.EqualError(t, res.Error, "jsonrpc error -32601: method not found")
}
