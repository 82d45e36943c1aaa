// Package codec serializes request and response envelopes.
//
// Framing (where one message ends and the next begins) is the protocol
// package's job; the codec only ever sees one complete message.
package codec

import (
	"editor-rpc/message"
	"fmt"
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// Default is the codec used on every transport.
var Default Codec = &JSONCodec{}

// FramingError reports a message that could not be decoded.
// It affects that single message only: the connection stays open.
type FramingError struct {
	Frame []byte
	Err   error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("malformed frame (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// Encode serializes an envelope with the default codec.
func Encode(v any) ([]byte, error) {
	return Default.Encode(v)
}

// DecodeRequest parses one request frame.
func DecodeRequest(data []byte) (*message.Request, error) {
	var req message.Request
	if err := Default.Decode(data, &req); err != nil {
		return nil, &FramingError{Frame: data, Err: err}
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}
	return &req, nil
}

// DecodeResponse parses one response frame.
func DecodeResponse(data []byte) (*message.Response, error) {
	var resp message.Response
	if err := Default.Decode(data, &resp); err != nil {
		return nil, &FramingError{Frame: data, Err: err}
	}
	return &resp, nil
}
