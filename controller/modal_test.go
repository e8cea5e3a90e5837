package controller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sgb-web/api"
	"sgb-web/library"
)

func book() library.Record {
	return library.Record{
		"codigoLivro":     3,
		"nome":            "Iracema",
		"autor":           "José de Alencar",
		"disponibilidade": "DISPONIVEL",
		"genero":          map[string]any{"id": 2, "nome": "Romance"},
	}
}

func TestEditRequiresStaff(t *testing.T) {
	m := NewModalController(newEnv(&stubBackend{}, library.RolePatron), library.Books, book(), false, nil)
	assert.False(t, m.CanEdit())
	assert.False(t, m.CanDelete())
	assert.ErrorIs(t, m.Edit(), library.ErrForbidden)
	assert.Equal(t, Viewing, m.Mode())
}

func TestDraftIsolatedUntilSave(t *testing.T) {
	m := NewModalController(newEnv(&stubBackend{}, library.RoleAdmin), library.Books, book(), false, nil)
	require.NoError(t, m.Edit())
	assert.Equal(t, "2", m.Draft().String("genero"))

	require.NoError(t, m.SetField("nome", "Ubirajara"))
	assert.Equal(t, "Ubirajara", m.Draft().String("nome"))
	assert.Equal(t, "Iracema", m.Record().String("nome"))

	require.NoError(t, m.Cancel())
	assert.Equal(t, Viewing, m.Mode())
	assert.Nil(t, m.Draft())
	assert.Equal(t, "Iracema", m.Record().String("nome"))
}

func TestSetFieldChecks(t *testing.T) {
	user := library.Record{"codigoLogin": 4, "nome": "Bia", "perfil": "USUARIO", "dataDeNascimento": "2000-05-01T00:00:00"}
	m := NewModalController(newEnv(&stubBackend{}, library.RoleLibrarian), library.Users, user, false, nil)

	assert.ErrorIs(t, m.SetField("nome", "x"), ErrInvalidState)
	require.NoError(t, m.Edit())
	assert.Equal(t, "2000-05-01", m.Draft().String("dataDeNascimento"))
	assert.ErrorIs(t, m.SetField("perfil", "ADMIN"), ErrFieldLocked)
	assert.ErrorIs(t, m.SetField("codigoLogin", "9"), ErrUnknownField)
	assert.NoError(t, m.SetField("telefone", "1133334444"))
}

func TestSaveSuccess(t *testing.T) {
	b := &stubBackend{}
	env := newEnv(b, library.RoleLibrarian)
	env.FlashTTL = 20 * time.Millisecond
	var refreshed atomic.Bool
	m := NewModalController(env, library.Books, book(), false, func(r bool) { refreshed.Store(r) })

	require.NoError(t, m.Edit())
	require.NoError(t, m.SetField("nome", "Iracema (ed. crítica)"))
	require.NoError(t, m.Save(context.Background()))

	calls := b.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "PUT", calls[0].Method)
	assert.Equal(t, "3", calls[0].ID)
	payload := calls[0].Payload.(library.Record)
	assert.Equal(t, "Iracema (ed. crítica)", payload.String("nome"))
	assert.Equal(t, int64(2), payload["genero"].(library.Record)["id"])

	assert.Equal(t, Viewing, m.Mode())
	assert.Equal(t, "Iracema (ed. crítica)", m.Record().String("nome"))
	assert.Equal(t, "Romance", m.Record().String("genero.nome"), "nested fields survive a save")
	assert.Equal(t, Message{Kind: KindSuccess, Text: "Livro atualizado com sucesso!"}, m.Message())
	assert.Eventually(t, func() bool { return m.Message().Empty() }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	assert.True(t, refreshed.Load())
}

func TestSaveFailureStaysEditing(t *testing.T) {
	b := &stubBackend{updateErr: &api.StatusError{Status: 400, Message: "Nome duplicado"}}
	env := newEnv(b, library.RoleAdmin)
	env.FlashTTL = 10 * time.Millisecond
	m := NewModalController(env, library.Genres, library.Record{"id": 1, "nome": "Drama"}, false, nil)

	require.NoError(t, m.Edit())
	require.NoError(t, m.SetField("nome", "Comédia"))
	require.Error(t, m.Save(context.Background()))

	assert.Equal(t, Editing, m.Mode())
	assert.Equal(t, "Comédia", m.Draft().String("nome"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Message{Kind: KindError, Text: "Erro ao atualizar gênero. Nome duplicado"}, m.Message())
}

func TestSecondSaveWhileBusy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	b := &stubBackend{updateFn: func(context.Context) (library.Record, error) {
		close(entered)
		<-release
		return nil, nil
	}}
	m := NewModalController(newEnv(b, library.RoleAdmin), library.Genres, library.Record{"id": 1, "nome": "Drama"}, false, nil)
	require.NoError(t, m.Edit())

	done := make(chan error, 1)
	go func() { done <- m.Save(context.Background()) }()
	<-entered

	assert.True(t, m.Busy())
	assert.ErrorIs(t, m.Save(context.Background()), ErrBusy)
	_, err := m.RequestDelete()
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, b.count("PUT"))
}

func TestDeleteDeclined(t *testing.T) {
	b := &stubBackend{}
	m := NewModalController(newEnv(b, library.RoleAdmin), library.Books, book(), false, nil)

	q, err := m.RequestDelete()
	require.NoError(t, err)
	assert.Equal(t, "Tem certeza que deseja excluir este livro?", q)
	assert.Equal(t, Message{Kind: KindInfo, Text: q}, m.Message())
	require.NoError(t, m.ConfirmDelete(context.Background(), false))
	assert.Equal(t, Viewing, m.Mode())
	assert.True(t, m.Message().Empty())
	assert.Empty(t, b.Calls())
}

func TestDeleteFailureKeepsModalOpen(t *testing.T) {
	b := &stubBackend{deleteErr: &api.StatusError{Status: 500}}
	closed := false
	m := NewModalController(newEnv(b, library.RoleAdmin), library.Books, book(), false, func(bool) { closed = true })

	_, err := m.RequestDelete()
	require.NoError(t, err)
	require.Error(t, m.ConfirmDelete(context.Background(), true))

	assert.Equal(t, Viewing, m.Mode())
	assert.False(t, closed)
	assert.Equal(t, Message{Kind: KindError, Text: "Erro ao excluir livro."}, m.Message())
	assert.NotContains(t, m.Message().Text, "excluído")
	assert.True(t, m.CanDelete(), "the user may retry")
}

func TestDeleteSuccessClosesAfterDelay(t *testing.T) {
	b := &stubBackend{}
	env := newEnv(b, library.RoleAdmin)
	env.CloseDelay = 30 * time.Millisecond
	refresh := make(chan bool, 1)
	m := NewModalController(env, library.Books, book(), false, func(r bool) { refresh <- r })

	_, err := m.RequestDelete()
	require.NoError(t, err)
	require.NoError(t, m.ConfirmDelete(context.Background(), true))

	assert.Equal(t, "Livro excluído com sucesso!", m.Message().Text)
	assert.NotEqual(t, Closed, m.Mode())
	assert.False(t, m.CanEdit())
	assert.ErrorIs(t, m.Edit(), ErrInvalidState)

	select {
	case r := <-refresh:
		assert.True(t, r)
	case <-time.After(time.Second):
		t.Fatal("modal did not close")
	}
	assert.Equal(t, Closed, m.Mode())
}

func TestClosedModalRejectsEverything(t *testing.T) {
	calls := 0
	m := NewModalController(newEnv(&stubBackend{}, library.RoleAdmin), library.Books, book(), false, func(bool) { calls++ })
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, calls)

	assert.ErrorIs(t, m.Edit(), ErrModalClosed)
	assert.ErrorIs(t, m.SetField("nome", "x"), ErrModalClosed)
	assert.ErrorIs(t, m.Save(context.Background()), ErrModalClosed)
	assert.ErrorIs(t, m.Cancel(), ErrModalClosed)
	_, err := m.RequestDelete()
	assert.ErrorIs(t, err, ErrModalClosed)
	assert.ErrorIs(t, m.ConfirmDelete(context.Background(), true), ErrModalClosed)
	_, err = m.StartLoan()
	assert.ErrorIs(t, err, ErrModalClosed)
	assert.False(t, m.CanEdit())
}

func TestReturnLoanSeedsToday(t *testing.T) {
	b := &stubBackend{}
	loan := library.Record{"codigoEmprestimo": 8, "dataPrevista": "2026-03-01"}
	m := NewModalController(newEnv(b, library.RoleLibrarian), library.Loans, loan, false, nil)

	require.NoError(t, m.Edit())
	assert.Equal(t, "2026-03-10", m.Draft().String("dataDeEntrega"))
	require.NoError(t, m.Save(context.Background()))
	assert.Equal(t, library.Record{"dataDeEntrega": "2026-03-10"}, b.Calls()[0].Payload)

	returned := NewModalController(newEnv(b, library.RoleLibrarian), library.Loans, m.Record(), false, nil)
	assert.False(t, returned.CanEdit(), "a returned loan cannot be edited again")
}

func TestCreatedBanner(t *testing.T) {
	m := NewModalController(newEnv(&stubBackend{}, library.RoleAdmin), library.Genres, library.Record{"id": 9, "nome": "Sátira"}, true, nil)
	assert.Equal(t, Message{Kind: KindSuccess, Text: "Gênero criado com sucesso!"}, m.Message())
}

func TestLendFromBookModal(t *testing.T) {
	b := &stubBackend{created: library.Record{"codigoEmprestimo": 50}}
	m := NewModalController(newEnv(b, library.RolePatron), library.Books, book(), false, nil)
	require.True(t, m.CanLend())

	form, err := m.StartLoan()
	require.NoError(t, err)
	assert.Equal(t, Lending, m.Mode())
	assert.Empty(t, form.Fields(), "a patron fills nothing in")
	assert.Equal(t, []string{"usuario", "livro", "dataRetirada", "dataPrevista"}, form.Locked())

	loan, err := m.FinishLoan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "50", loan.String("codigoEmprestimo"))
	assert.Equal(t, Viewing, m.Mode())
	assert.Equal(t, "INDISPONIVEL", m.Record().String("disponibilidade"))
	assert.False(t, m.CanLend())

	payload := b.Calls()[0].Payload.(library.Record)
	assert.Equal(t, int64(7), payload["usuario"].(library.Record)["codigoLogin"])
	assert.Equal(t, int64(3), payload["livro"].(library.Record)["codigoLivro"])
	assert.Equal(t, "2026-03-10", payload["dataRetirada"])
	assert.Equal(t, "2026-03-24", payload["dataPrevista"])
}

func TestLendFailureStaysLending(t *testing.T) {
	b := &stubBackend{createErr: &api.StatusError{Status: 409, Message: "Livro indisponível para empréstimo"}}
	m := NewModalController(newEnv(b, library.RoleLibrarian), library.Books, book(), false, nil)

	form, err := m.StartLoan()
	require.NoError(t, err)
	assert.Equal(t, []string{"usuario"}, form.Fields())

	_, err = m.FinishLoan(context.Background())
	var ve *library.ValidationError
	require.True(t, errors.As(err, &ve), "borrower not chosen yet")
	assert.Empty(t, b.Calls())

	require.NoError(t, form.Set("usuario", "12"))
	_, err = m.FinishLoan(context.Background())
	require.Error(t, err)
	assert.Equal(t, Lending, m.Mode())
	assert.Equal(t, "Erro ao realizar empréstimo. Livro indisponível para empréstimo", m.Message().Text)
}
