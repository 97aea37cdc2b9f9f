package agentrpc

import "encoding/json"

// jsonCodecName is registered as a gRPC content-subtype so the agentrpc
// message types above — plain Go structs, not protoc-generated
// proto.Message implementations — can ride over a real grpc.ClientConn.
// Wire compatibility with any specific agent implementation is not a
// goal here; what matters is that the transport boundary (dial options,
// interceptors, streaming) is real gRPC.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}
