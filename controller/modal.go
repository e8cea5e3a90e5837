package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sgb-web/library"
	"sgb-web/logger"
)

// Mode is the modal's lifecycle state.
type Mode int

const (
	Viewing Mode = iota
	Editing
	ConfirmingDelete
	Lending
	Closed
)

func (m Mode) String() string {
	switch m {
	case Viewing:
		return "visualizando"
	case Editing:
		return "editando"
	case ConfirmingDelete:
		return "confirmando exclusão"
	case Lending:
		return "emprestando"
	case Closed:
		return "fechado"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ModalController drives the view/edit/delete lifecycle of one record.
// Edits go to a draft; the canonical record only changes after a save
// succeeds.
type ModalController struct {
	env     Env
	entity  *library.Entity
	log     *logger.Logger
	onClose func(refresh bool)
	flash   Flash

	mu         sync.Mutex
	mode       Mode
	record     library.Record
	draft      library.Record
	deleted    bool
	refresh    bool
	busy       bool
	loan       *CreateController
	closeTimer *time.Timer
}

// NewModalController opens rec in Viewing mode. created shows the one-shot
// "just created" banner. onClose, if set, is called exactly once with
// whether the parent list must re-fetch.
func NewModalController(env Env, e *library.Entity, rec library.Record, created bool, onClose func(refresh bool)) *ModalController {
	m := &ModalController{
		env:     env,
		entity:  e,
		log:     env.logger("modal").WithStr("entity", e.Name).WithStr("id", e.ID(rec)),
		onClose: onClose,
		record:  rec.Clone(),
		refresh: created,
	}
	if created {
		m.flash.Show(Message{Kind: KindSuccess, Text: e.Messages.Created}, env.FlashTTL)
	}
	return m
}

// Entity is the type of the record on display.
func (m *ModalController) Entity() *library.Entity { return m.entity }

// Mode returns the current state.
func (m *ModalController) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Record returns a copy of the canonical record.
func (m *ModalController) Record() library.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Clone()
}

// Draft returns a copy of the draft, or nil outside Editing.
func (m *ModalController) Draft() library.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		return nil
	}
	return m.draft.Clone()
}

// LoanForm is the nested loan form while Lending.
func (m *ModalController) LoanForm() *CreateController {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loan
}

// Message is the feedback line on display.
func (m *ModalController) Message() Message { return m.flash.Current() }

// Busy reports a request in flight.
func (m *ModalController) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

func (m *ModalController) CanEdit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowedLocked(library.ActionEdit)
}

func (m *ModalController) CanDelete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowedLocked(library.ActionDelete)
}

// CanLend reports whether the "initiate loan" action is offered.
func (m *ModalController) CanLend() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entity == library.Books && m.allowedLocked(library.ActionLend)
}

func (m *ModalController) allowedLocked(a library.Action) bool {
	if m.mode == Closed || m.deleted {
		return false
	}
	return library.Can(m.env.session(), m.entity, a, m.record)
}

// Edit enters Editing with a draft seeded from the record.
func (m *ModalController) Edit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(Viewing); err != nil {
		return err
	}
	if !m.allowedLocked(library.ActionEdit) {
		return library.ErrForbidden
	}
	if m.entity.Draft != nil {
		m.draft = m.entity.Draft(m.record, m.env.now())
	} else {
		m.draft = m.record.Pick(m.entity.Editable...)
	}
	m.mode = Editing
	return nil
}

// SetField changes one draft field.
func (m *ModalController) SetField(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(Editing); err != nil {
		return err
	}
	if !m.entity.IsEditable(key) {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	if !m.entity.CanEditField(m.env.session().Role, key) {
		return fmt.Errorf("%w: %s", ErrFieldLocked, key)
	}
	m.draft[key] = value
	return nil
}

// Cancel backs out of Editing, ConfirmingDelete or Lending without any
// request. The draft is discarded.
func (m *ModalController) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == Closed {
		return ErrModalClosed
	}
	if m.busy {
		return ErrBusy
	}
	if m.mode == ConfirmingDelete {
		m.flash.Clear()
	}
	m.mode = Viewing
	m.draft = nil
	m.loan = nil
	return nil
}

// Save PUTs the draft. On success the modal returns to Viewing and the
// parent is marked for refresh; on failure it stays in Editing with a
// persistent error.
func (m *ModalController) Save(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkLocked(Editing); err != nil {
		m.mu.Unlock()
		return err
	}
	id := m.entity.ID(m.record)
	payload := m.draft.Clone()
	if m.entity.UpdatePayload != nil {
		payload = m.entity.UpdatePayload(m.draft)
	}
	draft := m.draft.Clone()
	m.busy = true
	m.mu.Unlock()

	resp, err := m.env.Backend.Update(ctx, m.entity.Endpoint, id, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if m.mode == Closed {
		return ErrModalClosed
	}
	if err != nil {
		m.flash.Show(Message{Kind: KindError, Text: userMessage(m.entity.Messages.Update, err)}, 0)
		m.log.Warn().Err(err).Msg("update failed")
		return err
	}

	if resp != nil && m.entity.ID(resp) == id {
		m.record = resp
	} else {
		for k, v := range draft {
			switch m.record[k].(type) {
			case map[string]any, library.Record:
				continue
			}
			m.record[k] = v
		}
	}
	m.mode = Viewing
	m.draft = nil
	m.refresh = true
	m.flash.Show(Message{Kind: KindSuccess, Text: m.entity.Messages.Updated}, m.env.FlashTTL)
	return nil
}

// RequestDelete asks for confirmation and returns the question to show.
func (m *ModalController) RequestDelete() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(Viewing); err != nil {
		return "", err
	}
	if !m.allowedLocked(library.ActionDelete) {
		return "", library.ErrForbidden
	}
	m.mode = ConfirmingDelete
	m.flash.Show(Message{Kind: KindInfo, Text: m.entity.Messages.ConfirmDelete}, 0)
	return m.entity.Messages.ConfirmDelete, nil
}

// ConfirmDelete answers the confirmation. "No" returns to Viewing. "Yes"
// issues the DELETE: on success the modal shows the success message and
// closes itself after the close delay; on failure it stays open with a
// persistent error.
func (m *ModalController) ConfirmDelete(ctx context.Context, yes bool) error {
	m.mu.Lock()
	if err := m.checkLocked(ConfirmingDelete); err != nil {
		m.mu.Unlock()
		return err
	}
	if !yes {
		m.mode = Viewing
		m.mu.Unlock()
		m.flash.Clear()
		return nil
	}
	id := m.entity.ID(m.record)
	m.busy = true
	m.mu.Unlock()

	err := m.env.Backend.Delete(ctx, m.entity.Endpoint, id)

	m.mu.Lock()
	m.busy = false
	if m.mode == Closed {
		m.mu.Unlock()
		return ErrModalClosed
	}
	m.mode = Viewing
	if err != nil {
		m.mu.Unlock()
		m.flash.Show(Message{Kind: KindError, Text: userMessage(m.entity.Messages.Delete, err)}, 0)
		m.log.Warn().Err(err).Msg("delete failed")
		return err
	}
	m.deleted = true
	m.refresh = true
	m.flash.Show(Message{Kind: KindSuccess, Text: m.entity.Messages.Deleted}, 0)
	delay := m.env.CloseDelay
	if delay > 0 {
		m.closeTimer = time.AfterFunc(delay, func() { _ = m.Close() })
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.Close()
}

// StartLoan suspends the book view and opens a loan form for this book.
// Patrons borrow for themselves; staff pick the borrower.
func (m *ModalController) StartLoan() (*CreateController, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(Viewing); err != nil {
		return nil, err
	}
	if m.entity != library.Books || !m.allowedLocked(library.ActionLend) {
		return nil, library.ErrForbidden
	}
	form := NewCreateController(m.env, library.Loans)
	form.lock("livro", m.entity.ID(m.record))
	m.loan = form
	m.mode = Lending
	return form, nil
}

// FinishLoan submits the loan form. On success the book is shown as
// unavailable and the modal returns to Viewing.
func (m *ModalController) FinishLoan(ctx context.Context) (library.Record, error) {
	m.mu.Lock()
	if err := m.checkLocked(Lending); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	form := m.loan
	m.busy = true
	m.mu.Unlock()

	loan, err := form.Submit(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if m.mode == Closed {
		return nil, ErrModalClosed
	}
	if err != nil {
		m.flash.Show(Message{Kind: KindError, Text: form.Err()}, 0)
		return nil, err
	}
	m.record["disponibilidade"] = library.Unavailable
	m.mode = Viewing
	m.loan = nil
	m.refresh = true
	m.flash.Show(Message{Kind: KindSuccess, Text: library.Loans.Messages.Created}, m.env.FlashTTL)
	return loan, nil
}

// Close ends the modal and notifies the parent once. Closing twice is a no-op.
func (m *ModalController) Close() error {
	m.mu.Lock()
	if m.mode == Closed {
		m.mu.Unlock()
		return nil
	}
	m.mode = Closed
	m.draft = nil
	m.loan = nil
	if m.closeTimer != nil {
		m.closeTimer.Stop()
	}
	refresh := m.refresh
	onClose := m.onClose
	m.mu.Unlock()

	m.flash.Clear()
	if onClose != nil {
		onClose(refresh)
	}
	return nil
}

func (m *ModalController) checkLocked(want Mode) error {
	if m.mode == Closed {
		return ErrModalClosed
	}
	if m.busy {
		return ErrBusy
	}
	if m.deleted || m.mode != want {
		return ErrInvalidState
	}
	return nil
}
