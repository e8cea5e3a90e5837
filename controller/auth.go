package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"sgb-web/api"
	"sgb-web/library"
	"sgb-web/logger"
)

const (
	msgLoginInvalid = "Login inválido."
	msgConnection   = "Erro ao conectar com o servidor."
)

// SessionStore persists the session across runs.
type SessionStore interface {
	SessionSource
	Login(s library.Session) error
	Logout() error
}

// AuthController handles login, logout and public registration.
type AuthController struct {
	env   Env
	store SessionStore
	log   *logger.Logger

	mu   sync.Mutex
	busy bool
	err  string
}

// NewAuthController wires env to store. env.Session is replaced by store.
func NewAuthController(env Env, store SessionStore) *AuthController {
	env.Session = store
	return &AuthController{env: env, store: store, log: env.logger("auth")}
}

// Err is the message of the last failed login.
func (a *AuthController) Err() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Login exchanges credentials for a session and persists it. Any response
// other than status "success" with a token is rejected.
func (a *AuthController) Login(ctx context.Context, email, password string) (library.Session, error) {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return library.Session{}, ErrBusy
	}
	a.busy = true
	a.err = ""
	a.mu.Unlock()

	s, msg, err := a.login(ctx, strings.TrimSpace(email), password)

	a.mu.Lock()
	a.busy = false
	a.err = msg
	a.mu.Unlock()
	return s, err
}

func (a *AuthController) login(ctx context.Context, email, password string) (library.Session, string, error) {
	resp, err := a.env.Backend.Login(ctx, email, password)
	if err != nil {
		var te *api.TransportError
		var de *api.DecodeError
		if errors.As(err, &te) || errors.As(err, &de) {
			a.log.Warn().Err(err).Msg("login transport failure")
			return library.Session{}, msgConnection, err
		}
		return library.Session{}, msgLoginInvalid, fmt.Errorf("%w: %v", ErrLoginRejected, err)
	}
	if !resp.OK() {
		return library.Session{}, msgLoginInvalid, ErrLoginRejected
	}
	role, ok := library.ParseRole(resp.Perfil)
	if !ok {
		a.log.Warn().Str("perfil", resp.Perfil).Msg("login returned unknown role")
		return library.Session{}, msgLoginInvalid, fmt.Errorf("%w: perfil %q", ErrLoginRejected, resp.Perfil)
	}

	s := library.Session{Token: resp.Token, Role: role, DisplayName: resp.User, UserID: resp.UserID}
	if err := a.store.Login(s); err != nil {
		return library.Session{}, "Erro ao salvar a sessão.", err
	}
	a.log.Info().Str("user", s.DisplayName).Str("perfil", string(s.Role)).Msg("logged in")
	return s, "", nil
}

// Logout clears the stored identity.
func (a *AuthController) Logout() error {
	if err := a.store.Logout(); err != nil {
		return err
	}
	a.log.Info().Msg("logged out")
	return nil
}

// Registration opens the public sign-up form.
func (a *AuthController) Registration() *CreateController {
	return NewCreateController(a.env, library.Registration)
}
