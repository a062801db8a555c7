package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	// Client -> server.
	TypeHello    = "HELLO"
	TypeObserver = "OBSERVER"
	TypeEdit     = "EDIT"

	// Server -> client.
	TypeWelcome      = "WELCOME"
	TypeAck          = "ACK"
	TypeChunkMesh    = "CHUNK_MESH"
	TypeChunkDispose = "CHUNK_DISPOSE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Ref             string `json:"ref,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
