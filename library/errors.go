package library

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("registro não encontrado")
	ErrForbidden     = errors.New("ação não permitida para o perfil")
	ErrValidation    = errors.New("dados inválidos")
	ErrNotLoggedIn   = errors.New("sessão não autenticada")
	ErrUnknownEntity = errors.New("seção desconhecida")
)

// ValidationError is a client-side check that failed before any request was sent.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + " (" + strings.Join(e.Fields, ", ") + ")"
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
