package codec

import (
	"encoding/json"
)

// JSONCodec uses encoding/json. It never emits a raw newline (newlines inside
// strings are escaped), so its output is safe for newline framing.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Name() string {
	return "json"
}
