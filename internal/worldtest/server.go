package worldtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxelcam.ai/internal/spectatorproto"
	"voxelcam.ai/internal/voxel"
)

// Server is a scriptable world feed. Each accepted connection is handed to
// the test through Next; the test decides what the server says.
type Server struct {
	http     *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *Conn

	mu       sync.Mutex
	accepted int
	refuse   int
}

func NewServer() *Server {
	s := &Server{
		conns: make(chan *Conn, 16),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.http = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// URL is the websocket address of the feed.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/v1/spectate"
}

func (s *Server) Close() { s.http.Close() }

// Refuse makes the next n connection attempts fail the HTTP upgrade.
func (s *Server) Refuse(n int) {
	s.mu.Lock()
	s.refuse = n
	s.mu.Unlock()
}

// Accepted counts upgraded connections that sent a valid HELLO.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Next waits for the next client to finish its HELLO.
func (s *Server) Next(timeout time.Duration) (*Conn, error) {
	select {
	case c := <-s.conns:
		return c, nil
	case <-time.After(timeout):
		return nil, errors.New("worldtest: no client connected")
	}
}

func (s *Server) serve(rw http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.refuse > 0 {
		s.refuse--
		s.mu.Unlock()
		http.Error(rw, "unavailable", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	ws, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return
	}
	var hello spectatorproto.HelloMsg
	if err := spectatorproto.Validate(msg); err != nil || json.Unmarshal(msg, &hello) != nil || hello.Type != spectatorproto.TypeHello {
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	c := &Conn{ws: ws, Hello: hello, in: make(chan []byte, 256), done: make(chan struct{})}
	s.mu.Lock()
	s.accepted++
	s.mu.Unlock()
	s.conns <- c

	defer close(c.done)
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := spectatorproto.Validate(msg); err != nil {
			c.mu.Lock()
			c.invalid = append(c.invalid, err)
			c.mu.Unlock()
		}
		select {
		case c.in <- msg:
		default:
		}
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	Hello spectatorproto.HelloMsg

	ws      *websocket.Conn
	writeMu sync.Mutex
	in      chan []byte
	done    chan struct{}

	mu      sync.Mutex
	invalid []error
}

// DefaultPalette is the palette sent by Welcome. STONE and DIRT are solid.
var DefaultPalette = []string{"AIR", "STONE", "DIRT", "WATER"}

func (c *Conn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return c.ws.WriteJSON(v)
}

// Welcome establishes the session with 16x16 chunks of the given height.
func (c *Conn) Welcome(observerID string, height int) error {
	return c.Send(spectatorproto.WelcomeMsg{
		Type:            spectatorproto.TypeWelcome,
		ProtocolVersion: spectatorproto.Version,
		ObserverID:      observerID,
		WorldParams:     spectatorproto.WorldParams{ChunkSize: [3]int{16, 16, height}, Height: height},
		BlockPalette:    DefaultPalette,
		SolidBlocks:     []string{"STONE", "DIRT"},
	})
}

func (c *Conn) AuthPending(uri, code string) error {
	return c.Send(spectatorproto.AuthPendingMsg{
		Type:            spectatorproto.TypeAuth,
		ProtocolVersion: spectatorproto.Version,
		VerificationURI: uri,
		UserCode:        code,
		Message:         fmt.Sprintf("To sign in, open %s and enter the code %s", uri, code),
	})
}

func (c *Conn) Tick(tick uint64, agents ...spectatorproto.AgentState) error {
	if agents == nil {
		agents = []spectatorproto.AgentState{}
	}
	return c.Send(spectatorproto.TickMsg{
		Type:            spectatorproto.TypeTick,
		ProtocolVersion: spectatorproto.Version,
		Tick:            tick,
		Agents:          agents,
	})
}

// Chunk sends a full chunk, RLE encoded.
func (c *Conn) Chunk(cx, cz int, ids []uint16) error {
	return c.Send(spectatorproto.ChunkVoxelsMsg{
		Type:            spectatorproto.TypeVoxels,
		ProtocolVersion: spectatorproto.Version,
		CX:              cx,
		CZ:              cz,
		Encoding:        spectatorproto.EncodingRLE,
		Data:            voxel.EncodeRLE(ids),
	})
}

func (c *Conn) Error(code, message string) error {
	return c.Send(spectatorproto.ErrorMsg{
		Type:            spectatorproto.TypeError,
		ProtocolVersion: spectatorproto.Version,
		Code:            code,
		Message:         message,
	})
}

// Read returns the next client message.
func (c *Conn) Read(timeout time.Duration) ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-time.After(timeout):
		return nil, errors.New("worldtest: no client message")
	}
}

// Invalid lists client messages that failed schema validation.
func (c *Conn) Invalid() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.invalid...)
}

// CloseNormal sends a close frame and hangs up.
func (c *Conn) CloseNormal() {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

// Drop hangs up without a close frame.
func (c *Conn) Drop() { _ = c.ws.Close() }

// Done is closed when the client side has gone away.
func (c *Conn) Done() <-chan struct{} { return c.done }
