// Package wsclient connects to the world feed over a websocket and exposes it
// as a worldstate.Adapter.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"voxelcam.ai/internal/spectatorproto"
	"voxelcam.ai/internal/voxel"
	"voxelcam.ai/internal/worldstate"
)

type Config struct {
	URL              string
	Name             string
	ChunkRadius      int
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

func (c *Config) defaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.ChunkRadius < 0 {
		c.ChunkRadius = 0
	}
}

// Dialer opens sessions. It implements worldstate.Connector.
type Dialer struct {
	cfg Config
	log *log.Logger
}

func NewDialer(cfg Config, logger *log.Logger) *Dialer {
	cfg.defaults()
	if logger == nil {
		logger = log.Default()
	}
	return &Dialer{cfg: cfg, log: logger}
}

// Connect dials the feed and sends HELLO. The session is not established
// until its EventEstablished arrives.
func (d *Dialer) Connect(ctx context.Context) (worldstate.Session, error) {
	wd := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}
	conn, resp, err := wd.DialContext(ctx, d.cfg.URL, d.cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	s := newSession(d.cfg, conn, d.log)
	if err := s.write(spectatorproto.NewHello(d.cfg.Name, d.cfg.ChunkRadius)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}
	go s.readLoop()
	return s, nil
}

// Session is one websocket connection to the feed.
type Session struct {
	cfg   Config
	log   *log.Logger
	conn  *websocket.Conn
	cache *voxel.Cache

	writeMu sync.Mutex

	mu          sync.RWMutex
	observerID  string
	established bool
	self        worldstate.Subject
	hasSelf     bool
	agents      map[string]worldstate.Subject
	synced      bool
	lastTick    uint64
	serverErr   error

	events    chan worldstate.Event
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(cfg Config, conn *websocket.Conn, logger *log.Logger) *Session {
	return &Session{
		cfg:    cfg,
		log:    logger,
		conn:   conn,
		cache:  voxel.NewCache(),
		agents: map[string]worldstate.Subject{},
		events: make(chan worldstate.Event, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Events delivers lifecycle events. EventEnded is always last and the
// channel is closed after it.
func (s *Session) Events() <-chan worldstate.Event { return s.events }

// Close ends the session and waits for the reader to exit.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	<-s.done
	return err
}

func (s *Session) ObserverID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observerID
}

func (s *Session) LastTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// RosterSynced reports whether a TICK has filled the roster yet.
func (s *Session) RosterSynced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Voxels exposes the chunk cache backing QuerySolid.
func (s *Session) Voxels() *voxel.Cache { return s.cache }

func (s *Session) Self() (worldstate.Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self, s.hasSelf
}

func (s *Session) Subjects() []worldstate.Subject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]worldstate.Subject, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out
}

func (s *Session) Subject(id string) (worldstate.Subject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	return a, ok
}

func (s *Session) QuerySolid(p worldstate.Vec3) worldstate.Solidity {
	return s.cache.QuerySolid(p)
}

func (s *Session) SetTransform(t worldstate.Transform) error {
	return s.write(spectatorproto.NewCamera([3]float64{t.Position.X(), t.Position.Y(), t.Position.Z()}, t.Yaw, t.Pitch))
}

func (s *Session) Attach(subjectID string) error {
	return s.write(spectatorproto.NewSpectate(subjectID))
}

// Focus asks the feed to stream chunks around a subject.
func (s *Session) Focus(subjectID string) error {
	return s.write(spectatorproto.NewSubscribe(s.cfg.ChunkRadius, subjectID))
}

var errClosed = errors.New("session closed")

func (s *Session) write(v any) error {
	select {
	case <-s.stop:
		return errClosed
	default:
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) emit(ev worldstate.Event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	err := s.read()
	ended := worldstate.Event{Kind: worldstate.EventEnded}
	select {
	case <-s.stop:
		ended.Reason = "closed"
	default:
		s.mu.RLock()
		serverErr := s.serverErr
		s.mu.RUnlock()
		switch {
		case serverErr != nil:
			ended.Reason = "server error"
			ended.Err = serverErr
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			ended.Reason = "server closed"
		default:
			ended.Reason = "connection lost"
			ended.Err = err
		}
	}
	_ = s.conn.Close()
	s.emit(ended)
}

func (s *Session) read() error {
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := spectatorproto.DecodeBase(msg)
		if err != nil {
			s.log.Debug("dropping undecodable message", "err", err)
			continue
		}
		if err := s.handle(base.Type, msg); err != nil {
			s.log.Debug("dropping message", "type", base.Type, "err", err)
		}
	}
}

func (s *Session) handle(msgType string, msg []byte) error {
	switch msgType {
	case spectatorproto.TypeWelcome:
		var w spectatorproto.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return err
		}
		if err := s.cache.Configure(w.WorldParams.ChunkSize[0], w.WorldParams.ChunkSize[1], w.WorldParams.Height, w.BlockPalette, w.SolidBlocks); err != nil {
			return err
		}
		s.mu.Lock()
		first := !s.established
		s.established = true
		s.observerID = w.ObserverID
		s.mu.Unlock()
		if first {
			s.emit(worldstate.Event{Kind: worldstate.EventEstablished})
		}

	case spectatorproto.TypeAuth:
		var a spectatorproto.AuthPendingMsg
		if err := json.Unmarshal(msg, &a); err != nil {
			return err
		}
		s.emit(worldstate.Event{Kind: worldstate.EventAuthPending, Auth: &worldstate.AuthPrompt{
			VerificationURI: a.VerificationURI,
			UserCode:        a.UserCode,
			Message:         a.Message,
		}})

	case spectatorproto.TypeTick:
		var t spectatorproto.TickMsg
		if err := json.Unmarshal(msg, &t); err != nil {
			return err
		}
		s.applyTick(t)

	case spectatorproto.TypeVoxels:
		var c spectatorproto.ChunkVoxelsMsg
		if err := json.Unmarshal(msg, &c); err != nil {
			return err
		}
		return s.cache.SetChunk(c.CX, c.CZ, c.Encoding, c.Data)

	case spectatorproto.TypeVoxelPatch:
		var p spectatorproto.ChunkVoxelPatchMsg
		if err := json.Unmarshal(msg, &p); err != nil {
			return err
		}
		cells := make([]voxel.Cell, 0, len(p.Cells))
		for _, c := range p.Cells {
			cells = append(cells, voxel.Cell{X: c.X, Y: c.Y, Z: c.Z, Block: c.Block})
		}
		s.cache.Patch(p.CX, p.CZ, cells)

	case spectatorproto.TypeVoxelEvict:
		var e spectatorproto.ChunkVoxelsEvictMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return err
		}
		s.cache.Evict(e.CX, e.CZ)

	case spectatorproto.TypeError:
		var e spectatorproto.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return err
		}
		serr := &spectatorproto.ServerError{Code: e.Code, Message: e.Message}
		if spectatorproto.IsFatalCode(e.Code) {
			s.mu.Lock()
			s.serverErr = serr
			s.mu.Unlock()
		}
		s.emit(worldstate.Event{Kind: worldstate.EventError, Err: serr})
	}
	return nil
}

func (s *Session) applyTick(t spectatorproto.TickMsg) {
	agents := make(map[string]worldstate.Subject, len(t.Agents))
	for _, a := range t.Agents {
		agents[a.ID] = subjectOf(a)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = t.Tick
	s.agents = agents
	s.synced = true
	switch {
	case t.Self != nil:
		s.self = subjectOf(*t.Self)
		s.hasSelf = true
	case s.observerID != "":
		if me, ok := agents[s.observerID]; ok {
			s.self = me
			s.hasSelf = true
		}
	}
}

func subjectOf(a spectatorproto.AgentState) worldstate.Subject {
	return worldstate.Subject{
		ID:       a.ID,
		Name:     a.Name,
		Position: worldstate.Vec3{a.Pos[0], a.Pos[1], a.Pos[2]},
		Yaw:      a.Yaw,
		Pitch:    a.Pitch,
		Velocity: worldstate.Vec3{a.Vel[0], a.Vel[1], a.Vel[2]},
	}
}
