package observer

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"

	"voxelterrain.dev/internal/protocol"
	"voxelterrain.dev/internal/sim/world"
	"voxelterrain.dev/internal/transport/ws"
)

// Hub is the world's render sink for remote viewers: every chunk upsert and
// dispose is encoded once and fanned out to each registered session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*ws.Session

	upserts  atomic.Uint64
	disposes atomic.Uint64
	overruns atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{sessions: map[string]*ws.Session{}}
}

var _ world.RenderSink = (*Hub)(nil)

func (h *Hub) Upsert(m world.ChunkMesh) error {
	b, err := json.Marshal(ChunkMeshMessage(m))
	if err != nil {
		return err
	}
	h.upserts.Add(1)
	h.broadcast(b)
	return nil
}

func (h *Hub) Dispose(k world.ChunkKey) error {
	b, err := json.Marshal(protocol.ChunkDisposeMsg{
		Type:            protocol.TypeChunkDispose,
		ProtocolVersion: protocol.Version,
		CX:              k.CX,
		CZ:              k.CZ,
	})
	if err != nil {
		return err
	}
	h.disposes.Add(1)
	h.broadcast(b)
	return nil
}

func (h *Hub) broadcast(b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		wasOverrun := s.Overrun()
		if !s.SendRaw(b) && !wasOverrun {
			h.overruns.Add(1)
		}
	}
}

// add must run on the world goroutine, after the session received the
// current chunk set, so no upsert or dispose falls between the two.
func (h *Hub) add(s *ws.Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *Hub) SessionIDs() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		out = append(out, id)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

type HubStats struct {
	Sessions int    `json:"sessions"`
	Upserts  uint64 `json:"upserts_total"`
	Disposes uint64 `json:"disposes_total"`
	Overruns uint64 `json:"overruns_total"`
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.sessions)
	h.mu.RUnlock()
	return HubStats{
		Sessions: n,
		Upserts:  h.upserts.Load(),
		Disposes: h.disposes.Load(),
		Overruns: h.overruns.Load(),
	}
}

// ChunkMeshMessage converts a chunk mesh to its wire form. Instance
// positions are the translation column of each transform.
func ChunkMeshMessage(m world.ChunkMesh) protocol.ChunkMeshMsg {
	msg := protocol.ChunkMeshMsg{
		Type:            protocol.TypeChunkMesh,
		ProtocolVersion: protocol.Version,
		CX:              m.Key.CX,
		CZ:              m.Key.CZ,
		Origin:          [3]float32{m.Origin.X(), m.Origin.Y(), m.Origin.Z()},
		Digest:          m.Digest,
		Batches:         make([]protocol.MeshBatch, 0, len(m.Batches)),
	}
	for _, b := range m.Batches {
		if len(b.Transforms) == 0 {
			continue
		}
		mb := protocol.MeshBatch{
			Block:     uint16(b.Block),
			Name:      b.Name,
			Positions: make([][3]float32, 0, len(b.Transforms)),
		}
		if b.HasColor {
			c := b.Color
			mb.Color = &c
		}
		for _, t := range b.Transforms {
			p := t.Col(3).Vec3()
			mb.Positions = append(mb.Positions, [3]float32{p.X(), p.Y(), p.Z()})
		}
		msg.Batches = append(msg.Batches, mb)
	}
	return msg
}
