package http

import (
	"sync"
	"time"
)

// SessionManager manages MCP sessions for Streamable HTTP
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// Session represents an MCP session
type Session struct {
	ID              string
	Created         time.Time
	LastSeen        time.Time
	Initialized     bool
	ProtocolVersion string
	Transport       *StreamableHTTPTransport
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// CreateSession creates a session if one does not exist yet.
func (sm *SessionManager) CreateSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[sessionID]; exists {
		sm.sessions[sessionID].LastSeen = time.Now()
		return
	}
	sm.sessions[sessionID] = &Session{
		ID:       sessionID,
		Created:  time.Now(),
		LastSeen: time.Now(),
	}
}

// HasSession reports whether a session exists without touching it.
func (sm *SessionManager) HasSession(sessionID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, exists := sm.sessions[sessionID]
	return exists
}

// TouchSession refreshes a session's last-seen time and reports existence.
func (sm *SessionManager) TouchSession(sessionID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return false
	}
	session.LastSeen = time.Now()
	return true
}

// MarkInitialized records that the client completed the initialize handshake.
func (sm *SessionManager) MarkInitialized(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[sessionID]; exists {
		session.Initialized = true
		session.LastSeen = time.Now()
	}
}

// SetProtocolVersion pins the negotiated protocol version for a session.
func (sm *SessionManager) SetProtocolVersion(sessionID, version string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[sessionID]; exists {
		session.ProtocolVersion = version
	}
}

// GetProtocolVersion returns the negotiated protocol version for a session.
func (sm *SessionManager) GetProtocolVersion(sessionID string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return "", false
	}
	return session.ProtocolVersion, true
}

// SetTransport binds an SSE transport to a session. It fails when the
// session no longer exists.
func (sm *SessionManager) SetTransport(sessionID string, transport *StreamableHTTPTransport) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return false
	}
	if session.Transport != nil {
		session.Transport.Close()
	}
	session.Transport = transport
	session.LastSeen = time.Now()
	return true
}

// ClearTransportIfMatch detaches the transport only if it is still the one
// bound to the session, so a newer stream is never torn down by an older
// handler returning.
func (sm *SessionManager) ClearTransportIfMatch(sessionID string, transport *StreamableHTTPTransport) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[sessionID]
	if !exists || session.Transport != transport {
		return
	}
	session.Transport = nil
}

// RemoveSession removes a session
func (sm *SessionManager) RemoveSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[sessionID]; exists {
		if session.Transport != nil {
			session.Transport.Close()
		}
		delete(sm.sessions, sessionID)
	}
}

// CleanupSessions removes expired sessions
func (sm *SessionManager) CleanupSessions(timeout time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for sessionID, session := range sm.sessions {
		if now.Sub(session.LastSeen) > timeout {
			if session.Transport != nil {
				session.Transport.Close()
			}
			delete(sm.sessions, sessionID)
		}
	}
}
