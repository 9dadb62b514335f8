package livesync

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// Envelope decode sits on the hot path of the read loop; jsoniter is a
// drop-in for encoding/json with less per-frame allocation.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeEnvelope parses one text frame from the push channel. A frame that
// is not a JSON object, or that carries no type discriminant, is an error;
// callers drop such frames without tearing down the connection.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var ev Envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if ev.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type discriminant")
	}
	return ev, nil
}

// EncodeFrame serializes an outbound control frame.
func EncodeFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// subscribeFrame declares interest in all topics. Sent once per successful
// open, before any envelope is read.
type subscribeFrame struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// pingFrame is the keepalive sent while the connection is open. The engine
// answers with a pong envelope.
type pingFrame struct {
	Type string `json:"type"`
}
