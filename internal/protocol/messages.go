package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ViewerName      string `json:"viewer_name,omitempty"`
	// MaxQueue bounds the outbound message queue for this session.
	MaxQueue int `json:"max_queue,omitempty"`
	// Observer optionally places the camera before the first snapshot.
	Observer *[3]float32 `json:"observer,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Palette         DigestRef   `json:"block_palette"`
}

type WorldParams struct {
	TickRateHz   int    `json:"tick_rate_hz"`
	ChunkSize    [3]int `json:"chunk_size"`
	DrawDistance int    `json:"draw_distance"`
	LoadMode     string `json:"load_mode"`
	Seed         int64  `json:"seed"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// OBSERVER (client -> server): camera position in world space.
type ObserverMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [3]float32 `json:"pos"`
}

// EDIT (client -> server): add or remove one block.
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Op              string `json:"op"` // ADD or REMOVE
	Pos             [3]int `json:"pos"`
	Block           string `json:"block,omitempty"`
}

const (
	EditOpAdd    = "ADD"
	EditOpRemove = "REMOVE"
)

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// CHUNK_MESH (server -> client): every instance batch of one loaded chunk.
// Positions are cell coordinates local to Origin.
type ChunkMeshMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	CX              int         `json:"cx"`
	CZ              int         `json:"cz"`
	Origin          [3]float32  `json:"origin"`
	Digest          string      `json:"digest"`
	Batches         []MeshBatch `json:"batches"`
}

type MeshBatch struct {
	Block     uint16       `json:"block"`
	Name      string       `json:"name"`
	Color     *uint32      `json:"color,omitempty"`
	Positions [][3]float32 `json:"positions"`
}

// CHUNK_DISPOSE (server -> client): drop a chunk's geometry.
type ChunkDisposeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CZ              int    `json:"cz"`
}

// BootstrapResponse is served over HTTP before a viewer connects.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
	Colors          []*uint32   `json:"block_colors"`
}
