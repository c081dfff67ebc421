package web

import (
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/overlay"
	"ViewfinderOverlay/pipeline"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrBadViewport     = errors.New("viewport must have a positive width and height")
)

// Session is one client view: a render surface of the client's viewport and
// the controller that feeds it.
type Session struct {
	ID         string
	Surface    *overlay.Surface
	Controller *pipeline.Controller

	lastActive  atomic.Int64
	writeMu     sync.Mutex
	conn        *websocket.Conn
	closeOnce   sync.Once
	cancelTimer chan struct{}
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActive.Load()))
}

// OnFrame stamps the session active and hands frame to its controller.
func (s *Session) OnFrame(frame iface.Frame) uint64 {
	s.touch()
	return s.Controller.OnFrame(frame)
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteJSON(v)
}

func (s *Session) writeText(msg string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(msg))
	}
}

// CreateSession registers a session rendering into viewport and starts its
// idle monitor.
func (s *Server) CreateSession(viewport iface.Size) (*Session, error) {
	if viewport.Degenerate() {
		return nil, ErrBadViewport
	}
	surface := overlay.NewSurface(viewport)
	sess := &Session{
		ID:          uuid.NewString(),
		Surface:     surface,
		Controller:  pipeline.New(s.detector, s.projector, surface, s.opts.pipelineOptions()...),
		cancelTimer: make(chan struct{}),
	}
	sess.touch()

	s.sessionMu.Lock()
	s.sessions[sess.ID] = sess
	s.sessionMu.Unlock()
	s.startIdleMonitor(sess)
	s.log.Info("Session created", zap.String("Session", sess.ID),
		zap.Float64("Width", viewport.Width), zap.Float64("Height", viewport.Height))
	return sess, nil
}

func (s *Server) Session(id string) (*Session, bool) {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) Sessions() int {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return len(s.sessions)
}

// ReleaseSession removes the session, closes its websocket and subscribers
// and waits for its outstanding detections. It reports whether id existed.
func (s *Server) ReleaseSession(id string, reason string) bool {
	s.sessionMu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.sessionMu.Unlock()
	if !ok {
		return false
	}

	sess.closeOnce.Do(func() {
		close(sess.cancelTimer)
		sess.writeMu.Lock()
		if sess.conn != nil {
			_ = sess.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
			_ = sess.conn.Close()
		}
		sess.writeMu.Unlock()
	})
	sess.Controller.Close()
	sess.Surface.Unsubscribe(wsSubscriber)
	s.watchMu.Lock()
	for _, watcher := range s.watchers[id] {
		sess.Surface.Unsubscribe(watcher)
	}
	delete(s.watchers, id)
	s.watchMu.Unlock()
	s.log.Info("Session released", zap.String("Session", id), zap.String("Reason", reason))
	return true
}

// Watch subscribes to the overlay sets of session id. The channel is closed
// when the session is released or cancel is called.
func (s *Server) Watch(id string) (<-chan overlay.Snapshot, func(), error) {
	sess, ok := s.Session(id)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	watcher := uuid.NewString()
	ch := sess.Surface.Subscribe(watcher)
	s.watchMu.Lock()
	s.watchers[id] = append(s.watchers[id], watcher)
	s.watchMu.Unlock()
	cancel := func() {
		sess.Surface.Unsubscribe(watcher)
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		list := s.watchers[id]
		for i, w := range list {
			if w == watcher {
				s.watchers[id] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return ch, cancel, nil
}

func (s *Server) startIdleMonitor(sess *Session) {
	tick := min(s.opts.SessionIdle/10, time.Second)
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-sess.cancelTimer:
				return
			case <-ticker.C:
				if sess.idleFor() > s.opts.SessionIdle {
					s.ReleaseSession(sess.ID, "idle timeout")
					return
				}
			}
		}
	}()
}

// Close releases every session.
func (s *Server) Close() {
	s.sessionMu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.sessionMu.RUnlock()
	for _, id := range ids {
		s.ReleaseSession(id, "server shutdown")
	}
}
