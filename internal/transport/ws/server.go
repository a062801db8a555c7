package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelterrain.dev/internal/protocol"
)

const (
	defaultQueue = 1024
	minQueue     = 64
	maxQueue     = 8192
)

// Session is one connected viewer. Send never blocks: a session whose queue
// overflows is closed and the viewer is expected to reconnect.
type Session struct {
	ID   string
	Name string

	out    chan []byte
	cancel context.CancelFunc

	sent    atomic.Uint64
	overrun atomic.Bool
}

// NewSession builds a session not bound to a connection, for handlers that
// are exercised without a socket.
func NewSession(name string, queue int) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Name:   name,
		out:    make(chan []byte, clampQueue(queue)),
		cancel: func() {},
	}
}

func clampQueue(n int) int {
	if n <= 0 {
		return defaultQueue
	}
	if n < minQueue {
		return minQueue
	}
	if n > maxQueue {
		return maxQueue
	}
	return n
}

// SendRaw enqueues an encoded message. It reports false when the session
// was closed for falling behind.
func (s *Session) SendRaw(b []byte) bool {
	if s.overrun.Load() {
		return false
	}
	select {
	case s.out <- b:
		s.sent.Add(1)
		return true
	default:
		s.overrun.Store(true)
		s.cancel()
		return false
	}
}

func (s *Session) Send(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return s.SendRaw(b)
}

// Out exposes the outbound queue.
func (s *Session) Out() <-chan []byte { return s.out }
func (s *Session) Sent() uint64       { return s.sent.Load() }
func (s *Session) Overrun() bool      { return s.overrun.Load() }

// Handler is the world-facing side of a viewer connection.
type Handler interface {
	// Open runs after a valid HELLO. An error closes the connection.
	Open(ctx context.Context, s *Session, hello protocol.HelloMsg) error
	// Message receives every schema-valid client message after HELLO.
	Message(ctx context.Context, s *Session, base protocol.BaseMessage, raw []byte)
	Close(s *Session)
}

type Server struct {
	h   Handler
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(h Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		h:   h,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		name := strings.TrimSpace(hello.ViewerName)
		if name == "" {
			name = "viewer"
		}
		sess := NewSession(name, hello.MaxQueue)
		sess.cancel = cancel

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		if err := s.h.Open(ctx, sess, hello); err != nil {
			s.log.Printf("viewer %s: open: %v", sess.ID, err)
			cancel()
			<-writerDone
			closeWith(conn, websocket.CloseTryAgainLater, "world unavailable")
			return
		}
		defer s.h.Close(sess)
		s.log.Printf("viewer %s (%s) connected", sess.ID, sess.Name)

		// The reader must also stop when the writer fails or the session
		// overruns, so close the socket on cancel.
		go func() {
			<-ctx.Done()
			_ = conn.SetReadDeadline(time.Now())
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				s.reject(sess, base, "bad protocol_version")
				continue
			}
			if err := protocol.ValidateClient(base.Type, msg); err != nil {
				s.reject(sess, base, err.Error())
				continue
			}
			s.h.Message(ctx, sess, base, msg)
		}

		cancel()
		<-writerDone
		if sess.Overrun() {
			s.log.Printf("viewer %s: queue overrun, closing", sess.ID)
			closeWith(conn, websocket.ClosePolicyViolation, "queue overrun")
			return
		}
		closeWith(conn, websocket.CloseNormalClosure, "bye")
	}
}

func (s *Server) reject(sess *Session, base protocol.BaseMessage, msg string) {
	sess.Send(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          base.Ref,
		Accepted:        false,
		Code:            protocol.ErrProtoBadRequest,
		Message:         msg,
	})
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.HelloMsg{}, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return protocol.HelloMsg{}, false
	}
	if err := protocol.ValidateClient(protocol.TypeHello, msg); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return protocol.HelloMsg{}, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return protocol.HelloMsg{}, false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return protocol.HelloMsg{}, false
	}
	return hello, true
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}
