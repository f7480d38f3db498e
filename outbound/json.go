package outbound

import (
	"encoding/json"
	"fmt"
)

// JSONSerializer renders payloads as JSON. []byte and json.RawMessage
// payloads pass through untouched so pre-rendered bodies are not
// double-encoded.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(v interface{}) ([]byte, error) {
	switch body := v.(type) {
	case []byte:
		return body, nil
	case json.RawMessage:
		return body, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("outbound: serialize payload: %w", err)
	}
	return data, nil
}

func (JSONSerializer) ContentType() string { return "application/json" }
