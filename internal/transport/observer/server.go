package observer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.dev/internal/protocol"
	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world"
	"voxelterrain.dev/internal/transport/ws"
)

const editTimeout = 2 * time.Second

// Server connects remote viewers to one world: it is the ws.Handler for
// viewer sessions and serves the bootstrap, metrics and admin endpoints.
type Server struct {
	world *world.World
	hub   *Hub
	log   *log.Logger
}

// NewServer installs a Hub as the world's render sink. Call it before the
// world loads any chunk.
func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{world: w, hub: NewHub(), log: logger}
	w.SetRenderSink(s.hub)
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// Routes mounts every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/viewer/ws", ws.NewServer(s, s.log).Handler())
	mux.HandleFunc("/v1/viewer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/metrics", s.MetricsHandler())
	mux.HandleFunc("/admin/v1/regenerate", s.RegenerateHandler())
}

// worldParams must run on the world goroutine.
func worldParams(w *world.World) protocol.WorldParams {
	cfg := w.Config()
	active, _ := w.ChunkSize()
	return protocol.WorldParams{
		TickRateHz:   cfg.TickRateHz,
		ChunkSize:    [3]int{active.Width, active.Height, active.Width},
		DrawDistance: cfg.DrawDistance,
		LoadMode:     cfg.LoadMode.String(),
		Seed:         w.Params().Seed,
	}
}

// Open sends WELCOME and the current chunk set, then registers the session
// with the hub. All of it runs on the world goroutine.
func (s *Server) Open(ctx context.Context, sess *ws.Session, hello protocol.HelloMsg) error {
	if hello.Observer != nil {
		p := *hello.Observer
		s.world.SetObserverAsync(mgl32.Vec3{p[0], p[1], p[2]})
	}
	return s.world.Do(ctx, func(w *world.World) error {
		cat := w.Catalog()
		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       sess.ID,
			WorldID:         w.ID(),
			Tick:            w.CurrentTick(),
			WorldParams:     worldParams(w),
			Palette:         protocol.DigestRef{Digest: cat.Digest, Count: len(cat.Blocks())},
		}
		if !sess.Send(welcome) {
			return errors.New("session queue full")
		}
		for _, m := range w.ChunkMeshes() {
			if !sess.Send(ChunkMeshMessage(m)) {
				return errors.New("session queue full")
			}
		}
		s.hub.add(sess)
		return nil
	})
}

func (s *Server) Close(sess *ws.Session) { s.hub.remove(sess.ID) }

func (s *Server) Message(ctx context.Context, sess *ws.Session, base protocol.BaseMessage, raw []byte) {
	switch base.Type {
	case protocol.TypeObserver:
		var m protocol.ObserverMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		s.world.SetObserverAsync(mgl32.Vec3{m.Pos[0], m.Pos[1], m.Pos[2]})
	case protocol.TypeEdit:
		var m protocol.EditMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		sess.Send(s.applyEdit(ctx, sess, m))
	}
}

func (s *Server) applyEdit(ctx context.Context, sess *ws.Session, m protocol.EditMsg) protocol.AckMsg {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          m.Ref,
	}
	req := world.EditRequest{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2], Actor: sess.Name}
	switch m.Op {
	case protocol.EditOpAdd:
		def, ok := s.world.Catalog().ByName(m.Block)
		if !ok || def.ID == catalogs.Empty {
			ack.Code = protocol.ErrInvalidBlock
			ack.Message = "unknown block " + strconv.Quote(m.Block)
			return ack
		}
		req.Op = world.EditAdd
		req.Block = def.ID
	case protocol.EditOpRemove:
		req.Op = world.EditRemove
	default:
		ack.Code = protocol.ErrBadRequest
		return ack
	}

	ctx, cancel := context.WithTimeout(ctx, editTimeout)
	defer cancel()
	changed, err := s.world.RequestEdit(ctx, req)
	ack.ServerTick = s.world.CurrentTick()
	switch {
	case err == nil && changed:
		ack.Accepted = true
	case err == nil:
		ack.Code = protocol.ErrNoChange
	case errors.Is(err, world.ErrInvalidBlock):
		ack.Code = protocol.ErrInvalidBlock
	case errors.Is(err, world.ErrChunkNotReady):
		ack.Code = protocol.ErrChunkNotReady
	case errors.Is(err, world.ErrClosed):
		ack.Code = protocol.ErrWorldClosed
	case errors.Is(err, context.DeadlineExceeded):
		ack.Code = protocol.ErrWorldBusy
	default:
		ack.Code = protocol.ErrInternal
	}
	if err != nil {
		ack.Message = err.Error()
	}
	return ack
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cat := s.world.Catalog()
		blocks := cat.Blocks()
		colors := make([]*uint32, 0, len(blocks))
		for _, b := range blocks {
			colors = append(colors, b.Color)
		}
		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			WorldID:         s.world.ID(),
			BlockPalette:    cat.Palette(),
			Colors:          colors,
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		err := s.world.Do(ctx, func(w *world.World) error {
			resp.Tick = w.CurrentTick()
			resp.WorldParams = worldParams(w)
			return nil
		})
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(rw, resp)
	}
}

type metricsResponse struct {
	World  world.WorldMetrics `json:"world"`
	Viewer HubStats           `json:"viewer"`
}

func (s *Server) MetricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(rw, metricsResponse{World: s.world.Metrics(), Viewer: s.hub.Stats()})
	}
}

// RegenerateHandler discards every chunk and rebuilds around the observer.
// An optional ?seed= replaces the seed first; it is refused with 409 while
// edits are recorded. Loopback only.
func (s *Server) RegenerateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var seed *int64
		if v := r.URL.Query().Get("seed"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				http.Error(rw, "bad seed", http.StatusBadRequest)
				return
			}
			seed = &n
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		var tick uint64
		err := s.world.Do(ctx, func(w *world.World) error {
			if seed != nil {
				if err := w.SetSeed(*seed); err != nil {
					return err
				}
			}
			w.Regenerate()
			tick = w.CurrentTick()
			return nil
		})
		switch {
		case errors.Is(err, world.ErrEditsRecorded):
			http.Error(rw, err.Error(), http.StatusConflict)
			return
		case err != nil:
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(rw, map[string]any{"ok": true, "tick": tick})
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
