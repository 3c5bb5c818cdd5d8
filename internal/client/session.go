package client

import (
	"context"
	"sync"

	"botbridge/internal/domain"
)

// Session is a transient view binding one platform user id to the client
// that received their message. A fresh one is constructed for every inbound
// event; the context bag behind it lives in the client and survives across
// sessions for the same user.
type Session struct {
	client *Client
	userID string

	// Conn is the live connection handle on connection-oriented adapters,
	// nil everywhere else.
	Conn any
}

// Session constructs a session for a user id.
func (c *Client) Session(userID string) *Session {
	return &Session{client: c, userID: userID}
}

func (s *Session) UserID() string { return s.userID }

// Client exposes the owning client.
func (s *Session) Client() *Client { return s.client }

// Reply sends text to the session's user.
func (s *Session) Reply(ctx context.Context, text string) (*domain.SendResult, error) {
	return s.client.SendTextTo(ctx, text, s.userID)
}

// SendText is an alias of Reply kept for symmetry with the client API.
func (s *Session) SendText(ctx context.Context, text string) (*domain.SendResult, error) {
	return s.client.SendTextTo(ctx, text, s.userID)
}

// Context returns the user's context merged over defaults. Absent an
// intervening UpdateContext the result is stable; defaults are never
// written back to the store.
func (s *Session) Context(defaults map[string]any) map[string]any {
	return s.client.UserContext(s.userID, defaults)
}

// UpdateContext merges patch into the user's context.
func (s *Session) UpdateContext(patch map[string]any) {
	s.client.UpdateUserContext(s.userID, patch)
}

// contextStore is the process-wide per-client user context. Entries are
// created on first write per user and never evicted; ClearUserContext is
// the only removal path. The mutex makes single reads and writes safe under
// concurrent dispatch, but a handler that suspends between reading and
// writing context owns that race itself.
type contextStore struct {
	mu    sync.RWMutex
	users map[string]map[string]any
}

func newContextStore() *contextStore {
	return &contextStore{users: make(map[string]map[string]any)}
}

// UserContext returns a copy of the stored context for userID with defaults
// filled in for absent keys. The store itself is not modified.
func (c *Client) UserContext(userID string, defaults map[string]any) map[string]any {
	c.contexts.mu.RLock()
	stored := c.contexts.users[userID]
	out := make(map[string]any, len(stored)+len(defaults))
	for k, v := range stored {
		out[k] = v
	}
	c.contexts.mu.RUnlock()

	for k, v := range defaults {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// UpdateUserContext merges patch into the stored context for userID,
// creating the entry on first write.
func (c *Client) UpdateUserContext(userID string, patch map[string]any) {
	c.contexts.mu.Lock()
	defer c.contexts.mu.Unlock()
	stored := c.contexts.users[userID]
	if stored == nil {
		stored = make(map[string]any, len(patch))
		c.contexts.users[userID] = stored
	}
	for k, v := range patch {
		stored[k] = v
	}
}

// ClearUserContext drops the stored context for userID.
func (c *Client) ClearUserContext(userID string) {
	c.contexts.mu.Lock()
	defer c.contexts.mu.Unlock()
	delete(c.contexts.users, userID)
}
