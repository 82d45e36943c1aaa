// Package message defines the envelopes exchanged between the editor-side server
// and its clients.
//
// Every call is a Request answered by exactly one Response carrying the same ID:
//
//	{"id":"3f2a9c1e-1","command":"ping","arguments":{}}
//	{"id":"3f2a9c1e-1","result":"pong"}
//
// or, when the call failed:
//
//	{"id":"3f2a9c1e-1","error":"Unknown command: pong"}
package message

import (
	"encoding/json"
	"fmt"
)

// Request asks the server to run Command with Arguments.
// ID is chosen by the caller and must be unique among its in-flight requests.
type Request struct {
	ID        string         `json:"id"`
	Command   string         `json:"command"`
	Arguments map[string]any `json:"arguments"`
}

// Response answers the Request with the same ID.
//
//   - On success: Result holds the JSON encoded return value ("null" for a nil value).
//   - On failure: Error holds the message and Result is omitted.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

var nullResult = json.RawMessage("null")

// NewResult builds a success response, encoding v as the result.
func NewResult(id string, v any) (*Response, error) {
	if v == nil {
		return &Response{ID: id, Result: nullResult}, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return &Response{ID: id, Result: raw}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{ID: id, Result: b}, nil
}

// NewError builds a failure response.
func NewError(id string, msg string) *Response {
	if msg == "" {
		msg = "unknown error"
	}
	return &Response{ID: id, Error: msg}
}

// Failed reports whether the response carries an error.
func (r *Response) Failed() bool {
	return r.Error != ""
}

// Value returns the raw result, substituting null when the peer omitted it.
func (r *Response) Value() json.RawMessage {
	if len(r.Result) == 0 {
		return nullResult
	}
	return r.Result
}
