// Package session owns the authenticated identity and the event
// channel lifecycle: the channel is open exactly while a non-expired
// credential and a resolved identity are both present.
package session

import (
	"context"
	"log"
	"sync"

	"github.com/unclebandit/smsleopard-dashboard/internal/auth"
	"github.com/unclebandit/smsleopard-dashboard/internal/channel"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating" // transient, startup only
	StateAuthenticated  State = "authenticated"
)

// Dialer opens the event channel for an identity. The credential token
// authenticates the transport.
type Dialer func(token string, user model.User) (channel.Channel, error)

// Validator resolves the identity behind a token against the backend.
type Validator func(ctx context.Context, token string) (model.User, error)

type Manager struct {
	store *TokenStore
	dial  Dialer

	mu       sync.Mutex
	state    State
	token    string
	user     *model.User
	ch       channel.Channel
	redirect string // one-shot post-login target
}

func NewManager(store *TokenStore, dial Dialer) *Manager {
	return &Manager{store: store, dial: dial, state: StateAnonymous}
}

// Login persists the token, decodes the identity claims locally (no
// server round trip) and establishes the event channel.
func (m *Manager) Login(credentialToken string) error {
	claims, err := auth.Decode(credentialToken)
	if err != nil {
		// An expired or malformed token leaves us anonymous; drop any
		// stale stored credential so the next start comes up clean.
		_ = m.store.Clear()
		return err
	}

	if err := m.store.Save(credentialToken); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	user := claims.User()
	m.token = credentialToken
	m.user = &user
	if err := m.openChannelLocked(); err != nil {
		// A login either completes or leaves no trace: no identity in
		// memory, no credential on disk.
		m.teardownLocked()
		_ = m.store.Clear()
		return err
	}
	m.state = StateAuthenticated
	log.Println("✅ Logged in as", user.Email)
	return nil
}

// Resume checks the stored credential once at startup. An expired
// credential is treated identically to no credential. The identity is
// validated against the backend before the channel opens.
func (m *Manager) Resume(ctx context.Context, validate Validator) error {
	token, err := m.store.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	if _, err := auth.Decode(token); err != nil {
		// Expired or malformed: identical to having no credential.
		_ = m.store.Clear()
		return nil
	}

	m.mu.Lock()
	m.state = StateAuthenticating
	m.mu.Unlock()

	user, err := validate(ctx, token)
	if err != nil {
		log.Println("⚠️ Stored credential rejected:", err)
		_ = m.store.Clear()
		m.mu.Lock()
		m.state = StateAnonymous
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.user = &user
	if err := m.openChannelLocked(); err != nil {
		// The credential itself is fine, keep it stored for the next
		// start; only the in-memory session resets.
		m.token = ""
		m.user = nil
		m.state = StateAnonymous
		return err
	}
	m.state = StateAuthenticated
	log.Println("✅ Session resumed for", user.Email)
	return nil
}

// Logout clears the persisted credential and tears down the channel.
func (m *Manager) Logout() {
	_ = m.store.Clear()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	log.Println("✅ Logged out")
}

// Invalidate reacts to a rejected authenticated request: same teardown
// as logout.
func (m *Manager) Invalidate() {
	_ = m.store.Clear()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Manager) teardownLocked() {
	if m.ch != nil {
		m.ch.Close()
		m.ch = nil
	}
	m.token = ""
	m.user = nil
	m.state = StateAnonymous
}

// openChannelLocked opens the channel only when both credential and
// identity are present; callers hold m.mu.
func (m *Manager) openChannelLocked() error {
	if m.token == "" || m.user == nil {
		return nil
	}
	ch, err := m.dial(m.token, *m.user)
	if err != nil {
		return err
	}
	m.ch = ch
	// Join the per-user room so the backend routes our events.
	if err := ch.Emit("joinUserRoom", nil); err != nil {
		log.Println("⚠️ joinUserRoom emit failed:", err)
	}
	return nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

func (m *Manager) User() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Channel returns the open event channel, or nil when anonymous.
func (m *Manager) Channel() channel.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch
}

// SetRedirect stores a one-shot post-login redirect target.
func (m *Manager) SetRedirect(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirect = path
}

// TakeRedirect returns and clears the stored redirect target.
func (m *Manager) TakeRedirect() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := m.redirect
	m.redirect = ""
	return path
}
