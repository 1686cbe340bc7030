package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Indy1131/kotoba/internal/formant"
	"github.com/Indy1131/kotoba/internal/protocol"
)

var (
	// ErrSessionClosed is returned when submitting to a removed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrInboxFull is returned when a chunk is discarded because the
	// session worker has fallen behind.
	ErrInboxFull = errors.New("session inbox full")
	// ErrTooManySessions is returned by CreateSession at capacity.
	ErrTooManySessions = errors.New("too many sessions")
)

// Emitter delivers outbound events to the client owning a session.
type Emitter interface {
	Emit(event string, data any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(event string, data any) error

// Emit calls f(event, data).
func (f EmitterFunc) Emit(event string, data any) error {
	return f(event, data)
}

// Session is one streaming connection. Chunks submitted to it are processed
// by a single worker in arrival order.
type Session struct {
	ID         string
	RemoteAddr string
	StartTime  time.Time

	lastActivity time.Time
	lastEstimate *formant.Estimate

	chunksReceived uint64
	chunksEmitted  uint64
	chunksFailed   uint64
	inboxOverflows uint64
	dropped        map[formant.Reason]uint64

	inbox    chan any
	emitter  Emitter
	pipeline *Pipeline
	logger   *slog.Logger
	manager  *Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu sync.RWMutex
}

// SessionInfo is a snapshot of a session for monitoring APIs
type SessionInfo struct {
	SessionID      string            `json:"session_id"`
	RemoteAddr     string            `json:"remote_addr"`
	StartTime      time.Time         `json:"start_time"`
	LastActivity   time.Time         `json:"last_activity"`
	Duration       time.Duration     `json:"duration"`
	QueueDepth     int               `json:"queue_depth"`
	ChunksReceived uint64            `json:"chunks_received"`
	ChunksEmitted  uint64            `json:"chunks_emitted"`
	ChunksFailed   uint64            `json:"chunks_failed"`
	ChunksDropped  map[string]uint64 `json:"chunks_dropped"`
	InboxOverflows uint64            `json:"inbox_overflows"`
	LastEstimate   *formant.Estimate `json:"last_estimate,omitempty"`
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	InboxSize       int
	MaxSessions     int
	SessionTimeout  time.Duration
	CleanupInterval time.Duration
}

// Stats aggregates counters over every session the manager has run.
type Stats struct {
	ActiveSessions  int    `json:"active_sessions"`
	SessionsCreated uint64 `json:"sessions_created"`
	ChunksReceived  uint64 `json:"chunks_received"`
	ChunksEmitted   uint64 `json:"chunks_emitted"`
	ChunksDropped   uint64 `json:"chunks_dropped"`
	ChunksFailed    uint64 `json:"chunks_failed"`
	InboxOverflows  uint64 `json:"inbox_overflows"`
}

// Manager owns all live sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	pipeline *Pipeline
	recorder Recorder
	config   ManagerConfig

	sessionsCreated atomic.Uint64
	chunksReceived  atomic.Uint64
	chunksEmitted   atomic.Uint64
	chunksDropped   atomic.Uint64
	chunksFailed    atomic.Uint64
	inboxOverflows  atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
	stopped atomic.Bool
}

// NewManager creates a session manager and starts its cleanup routine.
// recorder may be nil.
func NewManager(logger *slog.Logger, pipeline *Pipeline, recorder Recorder, config ManagerConfig) (*Manager, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}
	if config.InboxSize < 1 {
		return nil, fmt.Errorf("inbox size must be at least 1, got %d", config.InboxSize)
	}
	if config.SessionTimeout <= 0 {
		return nil, fmt.Errorf("session timeout must be positive, got %v", config.SessionTimeout)
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		pipeline: pipeline,
		recorder: recorder,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// CreateSession registers a new session and starts its worker.
func (m *Manager) CreateSession(remoteAddr string, emitter Emitter) (*Session, error) {
	if emitter == nil {
		return nil, errors.New("emitter cannot be nil")
	}
	if m.stopped.Load() {
		return nil, ErrSessionClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, m.config.MaxSessions)
	}

	id := uuid.NewString()
	logger := m.logger.With(slog.String("session_id", id))
	ctx, cancel := context.WithCancel(m.ctx)

	now := time.Now()
	session := &Session{
		ID:           id,
		RemoteAddr:   remoteAddr,
		StartTime:    now,
		lastActivity: now,
		dropped:      make(map[formant.Reason]uint64),
		inbox:        make(chan any, m.config.InboxSize),
		emitter:      emitter,
		pipeline:     m.pipeline.WithLogger(logger),
		logger:       logger,
		manager:      m,
		ctx:          ctx,
		cancel:       cancel,
	}

	m.sessions[id] = session
	m.sessionsCreated.Add(1)
	m.recorder.RecordSessionCreated()
	m.recorder.SetActiveSessions(len(m.sessions))

	session.wg.Add(1)
	go func() {
		defer session.wg.Done()
		session.run()
	}()

	logger.Info("Created new stream session",
		slog.String("remote_addr", remoteAddr),
	)

	return session, nil
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// RemoveSession stops a session's worker and forgets it. The chunk in
// flight, if any, completes first; queued chunks are discarded.
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.stop()

	duration := time.Since(session.StartTime)
	m.recorder.RecordSessionDestroyed(duration.Seconds())
	m.recorder.SetActiveSessions(remaining)

	info := session.GetSessionInfo()
	session.logger.Info("Stream session removed",
		slog.Duration("duration", duration),
		slog.Uint64("chunks_received", info.ChunksReceived),
		slog.Uint64("chunks_emitted", info.ChunksEmitted),
		slog.Uint64("chunks_failed", info.ChunksFailed),
	)

	return true
}

// Pipeline returns the pipeline sessions are created with.
func (m *Manager) Pipeline() *Pipeline {
	return m.pipeline
}

// Stats returns aggregate counters.
func (m *Manager) Stats() Stats {
	return Stats{
		ActiveSessions:  m.GetActiveSessionCount(),
		SessionsCreated: m.sessionsCreated.Load(),
		ChunksReceived:  m.chunksReceived.Load(),
		ChunksEmitted:   m.chunksEmitted.Load(),
		ChunksDropped:   m.chunksDropped.Load(),
		ChunksFailed:    m.chunksFailed.Load(),
		InboxOverflows:  m.inboxOverflows.Load(),
	}
}

// Stop removes every session and stops the cleanup routine
func (m *Manager) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	m.logger.Info("Stopping stream manager...")

	for _, session := range m.GetAllSessions() {
		m.RemoveSession(session.ID)
	}

	m.cancel()
	<-m.cleanup

	stats := m.Stats()
	m.logger.Info("Stream manager stopped",
		slog.Uint64("sessions_created", stats.SessionsCreated),
		slog.Uint64("chunks_received", stats.ChunksReceived),
		slog.Uint64("chunks_emitted", stats.ChunksEmitted),
	)
}

func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Stream cleanup routine started",
		slog.Duration("timeout", m.config.SessionTimeout),
		slog.Duration("check_interval", m.config.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Stream cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that have been idle for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for id, session := range m.sessions {
		if now.Sub(session.LastActivity()) > m.config.SessionTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up expired sessions",
			slog.Int("expired_count", len(expired)),
		)

		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
}

// Submit queues a payload for processing. It never blocks: when the inbox
// is full the payload is discarded and ErrInboxFull returned.
func (s *Session) Submit(payload any) error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	select {
	case s.inbox <- payload:
		return nil
	default:
	}

	s.mu.Lock()
	s.inboxOverflows++
	s.mu.Unlock()
	s.manager.inboxOverflows.Add(1)
	s.manager.recorder.RecordInboxOverflow()
	s.manager.recorder.RecordChunkDropped("inbox_full")

	s.logger.Debug("Chunk dropped",
		slog.String("reason", "inbox_full"),
		slog.Int("inbox_size", cap(s.inbox)),
	)
	return ErrInboxFull
}

// Done is closed when the session has been removed.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// LastActivity returns the time of the last submitted chunk.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// GetSessionInfo returns a snapshot of the session counters
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dropped := make(map[string]uint64, len(s.dropped))
	for reason, n := range s.dropped {
		dropped[string(reason)] = n
	}

	var last *formant.Estimate
	if s.lastEstimate != nil {
		e := *s.lastEstimate
		last = &e
	}

	return SessionInfo{
		SessionID:      s.ID,
		RemoteAddr:     s.RemoteAddr,
		StartTime:      s.StartTime,
		LastActivity:   s.lastActivity,
		Duration:       time.Since(s.StartTime),
		QueueDepth:     len(s.inbox),
		ChunksReceived: s.chunksReceived,
		ChunksEmitted:  s.chunksEmitted,
		ChunksFailed:   s.chunksFailed,
		ChunksDropped:  dropped,
		InboxOverflows: s.inboxOverflows,
		LastEstimate:   last,
	}
}

func (s *Session) stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Session) run() {
	s.logger.Debug("Session worker started")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Session worker stopping")
			return
		case payload := <-s.inbox:
			s.handle(payload)
		}
	}
}

func (s *Session) handle(payload any) {
	outcome := s.pipeline.Process(payload)

	s.mu.Lock()
	s.chunksReceived++
	switch outcome.State {
	case StateEmitted:
		s.chunksEmitted++
		e := outcome.Estimate
		s.lastEstimate = &e
	case StateDropped:
		s.dropped[outcome.Reason]++
	case StateFailed:
		s.chunksFailed++
	}
	s.mu.Unlock()

	s.manager.chunksReceived.Add(1)

	switch outcome.State {
	case StateEmitted:
		s.manager.chunksEmitted.Add(1)
		s.emit(protocol.EventFormantData, protocol.FormantData{
			F1: outcome.Estimate.F1,
			F2: outcome.Estimate.F2,
		})

	case StateDropped:
		s.manager.chunksDropped.Add(1)

	case StateFailed:
		s.manager.chunksFailed.Add(1)
		if data, ok := outcome.ClientError(); ok {
			s.emit(protocol.EventError, data)
		}
	}
}

func (s *Session) emit(event string, data any) {
	if err := s.emitter.Emit(event, data); err != nil {
		s.logger.Warn("Failed to emit event",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
