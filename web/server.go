// Package web serves the HTTP and websocket surfaces: clients open a session
// with their viewport size, stream camera frames into it and receive every
// overlay set installed on the session's render surface.
package web

import (
	"ViewfinderOverlay/engine"
	"ViewfinderOverlay/imageio"
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/logger"
	"ViewfinderOverlay/monitor"
	"ViewfinderOverlay/overlay"
	"ViewfinderOverlay/pipeline"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	wsSubscriber = "ws"
	maxImageSize = 20 * 1024 * 1024
)

var ErrDegraded = errors.New("no detector available")

type Options struct {
	NodeID      string
	Backend     string
	SessionIdle time.Duration
	Ordering    pipeline.Ordering
	MaxInFlight int
}

func (o Options) pipelineOptions() []pipeline.Option {
	return []pipeline.Option{pipeline.WithOrdering(o.Ordering), pipeline.WithMaxInFlight(o.MaxInFlight)}
}

type Server struct {
	opts      Options
	detector  *engine.Detector
	projector *overlay.Projector
	upgrader  websocket.Upgrader
	log       *zap.Logger

	sessionMu sync.RWMutex
	sessions  map[string]*Session
	watchMu   sync.Mutex
	watchers  map[string][]string
}

type CreateSessionRequest struct {
	ViewportWidth  float64 `json:"viewportWidth"`
	ViewportHeight float64 `json:"viewportHeight"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionID"`
	WsURL     string `json:"wsURL"`
	TimeoutMs int64  `json:"timeoutMs"`
}

type SessionStatus struct {
	ID          string         `json:"id"`
	Viewport    iface.Size     `json:"viewport"`
	Version     uint64         `json:"version"`
	Subscribers int            `json:"subscribers"`
	Stats       pipeline.Stats `json:"stats"`
}

type Status struct {
	NodeID   string          `json:"nodeID"`
	Backend  string          `json:"backend"`
	Degraded bool            `json:"degraded"`
	Sessions []SessionStatus `json:"sessions"`
}

// NewServer builds the surfaces around a shared detector. detector may be
// nil, in which case sessions accept frames and never show overlays.
func NewServer(detector *engine.Detector, opts Options) *Server {
	if opts.SessionIdle <= 0 {
		opts.SessionIdle = 5 * time.Second
	}
	return &Server{
		opts:      opts,
		detector:  detector,
		projector: overlay.NewProjector(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:      logger.Named("web"),
		sessions: make(map[string]*Session),
		watchers: make(map[string][]string),
	}
}

func (s *Server) Degraded() bool {
	return s.detector == nil
}

func (s *Server) Status() Status {
	st := Status{
		NodeID:   s.opts.NodeID,
		Backend:  s.opts.Backend,
		Degraded: s.Degraded(),
		Sessions: []SessionStatus{},
	}
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	for id, sess := range s.sessions {
		st.Sessions = append(st.Sessions, SessionStatus{
			ID:          id,
			Viewport:    sess.Surface.Viewport(),
			Version:     sess.Surface.Version(),
			Subscribers: sess.Surface.Subscribers(),
			Stats:       sess.Controller.Stats(),
		})
	}
	return st
}

// DetectOverlays runs one encoded image through detection and projection
// synchronously. It also returns the decoded frame.
func (s *Server) DetectOverlays(ctx context.Context, data []byte, viewport iface.Size) (iface.Frame, []iface.OverlayPrimitive, error) {
	if s.detector == nil {
		return iface.Frame{}, nil, ErrDegraded
	}
	frame, err := imageio.DecodeFrame(data)
	if err != nil {
		return iface.Frame{}, nil, err
	}
	objs, err := s.detector.Detect(ctx, frame)
	if errors.Is(err, engine.ErrNoDetections) {
		objs, err = []iface.DetectedObject{}, nil
	}
	if err != nil {
		return frame, nil, err
	}
	overlays, err := s.projector.Project(objs, frame.Size(), viewport)
	return frame, overlays, err
}

// Annotate returns a PNG of the image resized to viewport with its overlays
// drawn on top.
func (s *Server) Annotate(ctx context.Context, data []byte, viewport iface.Size) ([]byte, error) {
	frame, overlays, err := s.DetectOverlays(ctx, data, viewport)
	if err != nil {
		return nil, err
	}
	img, err := imageio.FrameToImage(frame)
	if err != nil {
		return nil, err
	}
	return imageio.EncodeImage(gocv.PNGFileExt, overlay.AnnotateFrame(img, viewport, overlays))
}

func count(c *gin.Context) {
	monitor.APIRequests.WithLabelValues("http").Inc()
	c.Next()
}

// Router wires the HTTP API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), count)
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": s.Status()})
	})
	r.POST("/api/sessions", s.createSession)
	r.POST("/api/sessions/:sessionID/frames", s.postFrame)
	r.GET("/api/sessions/:sessionID/overlays", func(c *gin.Context) {
		sess, ok := s.Session(c.Param("sessionID"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrSessionNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, sess.Surface.Current())
	})
	r.POST("/api/sessions/:sessionID/release", func(c *gin.Context) {
		if !s.ReleaseSession(c.Param("sessionID"), "released by client") {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrSessionNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": "Session released"})
	})
	r.POST("/api/annotate", s.annotate)
	r.GET("/ws/:sessionID", s.serveWS)
	return r
}

func (s *Server) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := s.CreateSession(iface.Size{Width: req.ViewportWidth, Height: req.ViewportHeight})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, CreateSessionResponse{
		SessionID: sess.ID,
		WsURL:     fmt.Sprintf("ws://%s/ws/%s", c.Request.Host, sess.ID),
		TimeoutMs: s.opts.SessionIdle.Milliseconds(),
	})
}

func (s *Server) postFrame(c *gin.Context) {
	sess, ok := s.Session(c.Param("sessionID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrSessionNotFound.Error()})
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	frame, err := imageio.DecodeFrame(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"seq": sess.OnFrame(frame)})
}

func (s *Server) annotate(c *gin.Context) {
	w, errW := strconv.ParseFloat(c.Query("viewportWidth"), 64)
	h, errH := strconv.ParseFloat(c.Query("viewportHeight"), 64)
	viewport := iface.Size{Width: w, Height: h}
	if errW != nil || errH != nil || viewport.Degenerate() {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrBadViewport.Error()})
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	png, err := s.Annotate(c.Request.Context(), data, viewport)
	switch {
	case errors.Is(err, ErrDegraded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrDetection), errors.Is(err, engine.ErrDetectorClosed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image: " + err.Error()})
	default:
		c.Data(http.StatusOK, "image/png", png)
	}
}

func (s *Server) serveWS(c *gin.Context) {
	sessionID := c.Param("sessionID")
	sess, ok := s.Session(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrSessionNotFound.Error()})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxImageSize)
	sess.setConn(conn)
	sess.touch()

	updates := sess.Surface.Subscribe(wsSubscriber)
	go func() {
		for snap := range updates {
			if err := sess.writeJSON(snap); err != nil {
				s.log.Debug("Overlay push failed", zap.String("Session", sessionID), zap.Error(err))
				return
			}
		}
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			s.ReleaseSession(sessionID, "connection closed")
			s.log.Debug("Connection closed", zap.String("Session", sessionID), zap.Error(err))
			return
		}
		sess.touch()
		var frame iface.Frame
		switch mt {
		case websocket.TextMessage:
			frame, err = imageio.Base64ToFrame(string(msg))
		case websocket.BinaryMessage:
			frame, err = imageio.DecodeFrame(msg)
		default:
			continue
		}
		if err != nil {
			sess.writeText(fmt.Sprintf("invalid image: %v", err))
			continue
		}
		sess.OnFrame(frame)
	}
}
