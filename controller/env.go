// Package controller holds the generic list, modal and creation-form
// controllers. Each one is parameterized by a library.Entity and talks to the
// backend only through the Backend interface.
package controller

import (
	"context"
	"errors"
	"net/url"
	"time"

	"sgb-web/api"
	"sgb-web/library"
	"sgb-web/logger"
)

var (
	ErrBusy          = errors.New("operação em andamento")
	ErrModalClosed   = errors.New("janela já fechada")
	ErrInvalidState  = errors.New("ação indisponível neste estado")
	ErrUnknownFilter = errors.New("filtro desconhecido")
	ErrUnknownField  = errors.New("campo desconhecido")
	ErrFieldLocked   = errors.New("campo não pode ser alterado")
	ErrLoginRejected = errors.New("login rejeitado")
)

// Backend is the subset of api.Client the controllers use.
type Backend interface {
	Login(ctx context.Context, email, password string) (api.LoginResponse, error)
	List(ctx context.Context, endpoint string, query url.Values) ([]library.Record, error)
	Create(ctx context.Context, endpoint string, payload any) (library.Record, error)
	CreatePublic(ctx context.Context, endpoint string, payload any) (library.Record, error)
	Update(ctx context.Context, endpoint, id string, payload any) (library.Record, error)
	Delete(ctx context.Context, endpoint, id string) error
}

var _ Backend = (*api.Client)(nil)

// SessionSource yields the current session.
type SessionSource interface {
	Session() library.Session
}

// Env is what every controller needs from the outside.
type Env struct {
	Backend Backend
	Session SessionSource
	Log     *logger.Logger
	Now     func() time.Time

	// FlashTTL is how long a success message stays up. Zero keeps it.
	FlashTTL time.Duration
	// CloseDelay separates a successful delete from the modal closing.
	CloseDelay time.Duration
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) session() library.Session {
	if e.Session == nil {
		return library.Session{}
	}
	return e.Session.Session()
}

func (e Env) logger(component string) *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log.Component(component)
}

// userMessage turns a failure into the text shown to the user: the
// operation's base message, followed by the server's explanation when the
// response carried one.
func userMessage(base string, err error) string {
	var ve *library.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var se *api.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return base + " " + se.Message
	}
	return base
}
