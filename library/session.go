package library

import (
	"fmt"
	"sync"
	"time"
)

// Storage keys, kept identical to what the web client persisted.
const (
	KeyToken        = "token"
	KeyRole         = "perfil"
	KeyUser         = "user"
	KeyUserID       = "userId"
	KeySelectedMenu = "selectedMenu"
)

// SessionHolder owns the one session of this process. It is read from the
// store once at startup, replaced on login and cleared on logout; everything
// else receives it explicitly.
type SessionHolder struct {
	store *Database
	now   func() time.Time

	mu      sync.RWMutex
	session Session
	menu    string
}

// NewSessionHolder restores the persisted session. An expired JWT is
// discarded and its keys removed.
func NewSessionHolder(store *Database) (*SessionHolder, error) {
	return newSessionHolder(store, time.Now)
}

func newSessionHolder(store *Database, now func() time.Time) (*SessionHolder, error) {
	h := &SessionHolder{store: store, now: now}
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *SessionHolder) load() error {
	values := make(map[string]string, 5)
	for _, k := range []string{KeyToken, KeyRole, KeyUser, KeyUserID, KeySelectedMenu} {
		v, _, err := h.store.Get(k)
		if err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
		values[k] = v
	}

	role, _ := ParseRole(values[KeyRole])
	s := Session{
		Token:       values[KeyToken],
		Role:        role,
		DisplayName: values[KeyUser],
		UserID:      values[KeyUserID],
	}
	if s.Expired(h.now()) {
		if err := h.store.Delete(KeyToken, KeyRole, KeyUser, KeyUserID); err != nil {
			return fmt.Errorf("drop expired session: %w", err)
		}
		s = Session{}
	}

	h.mu.Lock()
	h.session = s
	h.menu = values[KeySelectedMenu]
	h.mu.Unlock()
	return nil
}

// Session returns a copy of the current session.
func (h *SessionHolder) Session() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

// BearerToken satisfies the API client's token source.
func (h *SessionHolder) BearerToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session.Token
}

// Login persists s and makes it current.
func (h *SessionHolder) Login(s Session) error {
	if !s.Authenticated() {
		return ErrNotLoggedIn
	}
	err := h.store.SetMany(map[string]string{
		KeyToken:  s.Token,
		KeyRole:   string(s.Role),
		KeyUser:   s.DisplayName,
		KeyUserID: s.UserID,
	})
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	h.mu.Lock()
	h.session = s
	h.mu.Unlock()
	return nil
}

// Logout forgets the identity. The last selected section is kept.
func (h *SessionHolder) Logout() error {
	if err := h.store.Delete(KeyToken, KeyRole, KeyUser, KeyUserID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	h.mu.Lock()
	h.session = Session{}
	h.mu.Unlock()
	return nil
}

// SelectedMenu is the last section viewed, filtered by what the role may see.
func (h *SessionHolder) SelectedMenu() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return ResolveMenu(h.session, h.menu)
}

// SelectMenu switches section and persists the choice.
func (h *SessionHolder) SelectMenu(name string) error {
	s := h.Session()
	if ResolveMenu(s, name) != name {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	if err := h.store.Set(KeySelectedMenu, name); err != nil {
		return fmt.Errorf("persist menu: %w", err)
	}
	h.mu.Lock()
	h.menu = name
	h.mu.Unlock()
	return nil
}
