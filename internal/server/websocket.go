package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/Indy1131/kotoba/internal/metrics"
	"github.com/Indy1131/kotoba/internal/protocol"
	"github.com/Indy1131/kotoba/internal/stream"
)

// WebSocketConfig contains streaming channel configuration
type WebSocketConfig struct {
	AllowedOrigins []string
	ReadLimit      int64
	SendBuffer     int
	WriteTimeout   time.Duration
	Encoding       protocol.Encoding // until the client sends its first frame
}

// WebSocketServer accepts streaming connections and binds each one to a
// stream session. It is mounted on the HTTP server's mux.
type WebSocketServer struct {
	config    WebSocketConfig
	logger    *slog.Logger
	streamMgr *stream.Manager
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	conns   map[string]*wsConn
	connsMu sync.Mutex

	connectionsTotal atomic.Uint64
	framesReceived   atomic.Uint64
	decodeErrors     atomic.Uint64
	unknownEvents    atomic.Uint64
	sendDrops        atomic.Uint64
}

// WebSocketStatistics represents streaming transport counters
type WebSocketStatistics struct {
	ActiveConnections int    `json:"active_connections"`
	ConnectionsTotal  uint64 `json:"connections_total"`
	FramesReceived    uint64 `json:"frames_received"`
	DecodeErrors      uint64 `json:"decode_errors"`
	UnknownEvents     uint64 `json:"unknown_events"`
	SendDrops         uint64 `json:"send_drops"`
}

type outboundMessage struct {
	messageType websocket.MessageType
	payload     []byte
}

// wsConn is one accepted connection. It implements stream.Emitter so the
// session worker can queue events without touching the socket.
type wsConn struct {
	conn     *websocket.Conn
	send     chan outboundMessage
	encoding atomic.Int32
	server   *WebSocketServer

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewWebSocketServer creates the streaming endpoint handler
func NewWebSocketServer(cfg WebSocketConfig, logger *slog.Logger, streamMgr *stream.Manager, m *metrics.Metrics) *WebSocketServer {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketServer{
		config:    cfg,
		logger:    logger,
		streamMgr: streamMgr,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		conns:     make(map[string]*wsConn),
	}
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes it or its session is removed.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.track() {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		s.logger.Warn("WebSocket accept failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	if s.config.ReadLimit > 0 {
		conn.SetReadLimit(s.config.ReadLimit)
	}

	wc := &wsConn{
		conn:   conn,
		send:   make(chan outboundMessage, s.config.SendBuffer),
		server: s,
	}
	wc.encoding.Store(int32(s.config.Encoding))

	session, err := s.streamMgr.CreateSession(r.RemoteAddr, wc)
	if err != nil {
		s.logger.Warn("Rejected streaming connection",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		_ = conn.Close(websocket.StatusTryAgainLater, "session unavailable")
		return
	}

	s.addConn(session.ID, wc)
	defer s.dropConn(session.ID)
	s.connectionsTotal.Add(1)

	s.runConn(wc, session)
}

func (s *WebSocketServer) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, origin := range s.config.AllowedOrigins {
		if origin == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		opts.OriginPatterns = append(opts.OriginPatterns, originHost(origin))
	}
	return opts
}

// originHost reduces a configured origin URL to the host pattern the
// websocket library matches against.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

func (s *WebSocketServer) runConn(wc *wsConn, session *stream.Session) {
	connCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	logger := s.logger.With(slog.String("session_id", session.ID))
	logger.Info("Streaming connection accepted",
		slog.String("remote_addr", session.RemoteAddr),
	)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		if err := s.writeLoop(connCtx, wc); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("WriteLoop error", slog.String("error", err.Error()))
		}
	}()

	// Idle cleanup removes the session out from under the connection.
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-connCtx.Done():
		}
	}()

	if err := wc.Emit(protocol.EventConnectionStatus, protocol.ConnectionStatus{
		Status:    "connected",
		SessionID: session.ID,
	}); err != nil {
		logger.Warn("Failed to queue connection status", slog.String("error", err.Error()))
	}

	if err := s.readLoop(connCtx, wc, session, logger); err != nil {
		logger.Warn("ReadLoop error", slog.String("error", err.Error()))
	}

	s.streamMgr.RemoveSession(session.ID)
	wc.close(websocket.StatusNormalClosure, "connection closed")
	cancel()
	<-writeDone

	logger.Info("Streaming connection closed",
		slog.String("remote_addr", session.RemoteAddr),
	)
}

func (s *WebSocketServer) readLoop(ctx context.Context, wc *wsConn, session *stream.Session, logger *slog.Logger) error {
	for {
		msgType, payload, err := wc.conn.Read(ctx)
		if err != nil {
			return s.handleReadError(err)
		}
		s.framesReceived.Add(1)

		enc := protocol.EncodingJSON
		if msgType == websocket.MessageBinary {
			enc = protocol.EncodingMsgpack
		}
		// Reply in whatever encoding the client last used.
		wc.encoding.Store(int32(enc))

		env, err := protocol.DecodeFrame(enc, payload)
		if err != nil {
			s.decodeErrors.Add(1)
			s.metrics.RecordFrameError("decode")
			logger.Debug("Ignoring undecodable frame",
				slog.String("encoding", enc.String()),
				slog.Int("size", len(payload)),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch env.Event {
		case protocol.EventAudioChunk:
			s.metrics.RecordFrame(enc.String(), env.Event)
			if err := session.Submit(env.Data); err != nil {
				if errors.Is(err, stream.ErrSessionClosed) {
					return nil
				}
				logger.Debug("Chunk not queued", slog.String("error", err.Error()))
			}

		default:
			s.unknownEvents.Add(1)
			s.metrics.RecordFrame(enc.String(), "unknown")
			logger.Debug("Ignoring unknown event",
				slog.String("event", env.Event),
			)
		}
	}
}

func (s *WebSocketServer) handleReadError(err error) error {
	if err == nil {
		return nil
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *WebSocketServer) writeLoop(ctx context.Context, wc *wsConn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-wc.send:
			if !ok {
				return nil
			}
			writeCtx := ctx
			var cancel context.CancelFunc
			if s.config.WriteTimeout > 0 {
				writeCtx, cancel = context.WithTimeout(ctx, s.config.WriteTimeout)
			}
			err := wc.conn.Write(writeCtx, msg.messageType, msg.payload)
			if cancel != nil {
				cancel()
			}
			if err != nil {
				return err
			}
		}
	}
}

// Emit encodes an event in the connection's current encoding and queues it.
// A full send buffer drops the event rather than stalling the session.
func (c *wsConn) Emit(event string, data any) error {
	enc := protocol.Encoding(c.encoding.Load())
	payload, err := protocol.EncodeFrame(enc, event, data)
	if err != nil {
		return err
	}

	msgType := websocket.MessageText
	if enc == protocol.EncodingMsgpack {
		msgType = websocket.MessageBinary
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- outboundMessage{messageType: msgType, payload: payload}:
		return nil
	default:
		c.server.sendDrops.Add(1)
		return fmt.Errorf("send buffer full, dropped %s event", event)
	}
}

func (c *wsConn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		_ = c.conn.Close(code, reason)
	})
}

// track counts a handler in the shutdown wait group. It reports false once
// Stop has started. The check and the Add share connsMu with Stop, so no Add
// can race the final Wait.
func (s *WebSocketServer) track() bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *WebSocketServer) addConn(id string, wc *wsConn) {
	s.connsMu.Lock()
	s.conns[id] = wc
	s.connsMu.Unlock()
}

func (s *WebSocketServer) dropConn(id string) {
	s.connsMu.Lock()
	delete(s.conns, id)
	s.connsMu.Unlock()
}

func (s *WebSocketServer) connectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// GetStatistics returns current transport counters
func (s *WebSocketServer) GetStatistics() WebSocketStatistics {
	return WebSocketStatistics{
		ActiveConnections: s.connectionCount(),
		ConnectionsTotal:  s.connectionsTotal.Load(),
		FramesReceived:    s.framesReceived.Load(),
		DecodeErrors:      s.decodeErrors.Load(),
		UnknownEvents:     s.unknownEvents.Load(),
		SendDrops:         s.sendDrops.Load(),
	}
}

// Stop closes every connection and waits for their handlers to return.
func (s *WebSocketServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping WebSocket server...")

	s.connsMu.Lock()
	s.cancel()
	conns := make([]*wsConn, 0, len(s.conns))
	for _, wc := range s.conns {
		conns = append(conns, wc)
	}
	s.connsMu.Unlock()

	for _, wc := range conns {
		wc.close(websocket.StatusGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	stats := s.GetStatistics()
	s.logger.Info("WebSocket server stopped",
		slog.Uint64("connections_total", stats.ConnectionsTotal),
		slog.Uint64("frames_received", stats.FramesReceived),
		slog.Uint64("decode_errors", stats.DecodeErrors),
	)
	return nil
}
