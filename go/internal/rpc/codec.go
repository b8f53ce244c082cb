// Package rpc holds the pieces shared by the connect services and clients:
// a JSON codec for plain Go messages and the error mapping in both directions.
package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// CodecName is registered in place of connect's protobuf-only JSON codec.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// HandlerOptions configures connect handlers for JSON messages.
func HandlerOptions(extra ...connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, extra...)
}

// ClientOptions configures connect clients for JSON messages.
func ClientOptions(extra ...connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, extra...)
}
