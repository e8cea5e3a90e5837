package ui

import (
	"bytes"
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sgb-web/api"
	"sgb-web/controller"
	"sgb-web/library"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.Local)

func renderer() Renderer {
	var buf bytes.Buffer
	return Renderer{S: NewStyles(&buf), Now: func() time.Time { return now }}
}

func TestDate(t *testing.T) {
	assert.Equal(t, "05/06/2026", Date("2026-06-05"))
	assert.Equal(t, "05/06/2026", Date("2026-06-05T00:00:00Z"))
	assert.Equal(t, "-", Date(""))
	assert.Equal(t, "amanhã", Date("amanhã"))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "R$ 4,50", Money(4.5))
	assert.Equal(t, "R$ 0,00", Money(0))
}

func TestLoanStatus(t *testing.T) {
	s, debt := LoanStatus(library.Record{"dataPrevista": "2026-06-10", "emAtraso": true, "valorDevendo": 7.5}, now)
	assert.Equal(t, "Em atraso (5 dias)", s)
	assert.Equal(t, "Saldo devedor: R$ 7,50", debt)

	s, debt = LoanStatus(library.Record{"dataPrevista": "2026-06-14"}, now)
	assert.Equal(t, "Em atraso (1 dia)", s)
	assert.Empty(t, debt)

	s, _ = LoanStatus(library.Record{"dataPrevista": "2026-06-20"}, now)
	assert.Equal(t, "Em dia", s)

	s, _ = LoanStatus(library.Record{"dataPrevista": "2026-06-15", "emAtraso": true}, now)
	assert.Equal(t, "Em atraso", s, "flagged on the due date itself")

	s, _ = LoanStatus(library.Record{"dataPrevista": "2026-06-01", "dataDeEntrega": "2026-06-03"}, now)
	assert.Equal(t, "Entregue em 03/06/2026", s)
}

func TestCards(t *testing.T) {
	r := renderer()
	out := r.Card(library.Books, library.Record{
		"codigoLivro": 1, "nome": "Quincas Borba", "autor": "Machado de Assis",
		"genero": map[string]any{"id": 2, "nome": "Romance"}, "disponibilidade": "DISPONIVEL",
	})
	assert.Contains(t, out, "#1 Quincas Borba")
	assert.Contains(t, out, "Romance")
	assert.Contains(t, out, "Disponível")

	out = r.Card(library.Loans, library.Record{
		"codigoEmprestimo": 4, "livro": map[string]any{"nome": "Iracema"},
		"usuario": map[string]any{"nome": "Bia"}, "dataRetirada": "2026-05-01", "dataPrevista": "2026-05-15",
	})
	assert.Contains(t, out, "01/05/2026")
	assert.Contains(t, out, "Em atraso (31 dias)")
}

type nopBackend struct{}

func (nopBackend) Login(context.Context, string, string) (api.LoginResponse, error) {
	return api.LoginResponse{}, nil
}
func (nopBackend) List(context.Context, string, url.Values) ([]library.Record, error) {
	return []library.Record{{"id": 1, "nome": "Drama"}}, nil
}
func (nopBackend) Create(context.Context, string, any) (library.Record, error) { return nil, nil }
func (nopBackend) CreatePublic(context.Context, string, any) (library.Record, error) {
	return nil, nil
}
func (nopBackend) Update(context.Context, string, string, any) (library.Record, error) {
	return nil, nil
}
func (nopBackend) Delete(context.Context, string, string) error { return nil }

type roleSession library.Role

func (r roleSession) Session() library.Session {
	return library.Session{Token: "t", Role: library.Role(r), UserID: "1"}
}

func TestModalActionsFollowRole(t *testing.T) {
	r := renderer()
	rec := library.Record{"codigoLivro": 9, "nome": "Senhora", "disponibilidade": "DISPONIVEL"}

	patron := controller.NewModalController(controller.Env{Backend: nopBackend{}, Session: roleSession(library.RolePatron)}, library.Books, rec, false, nil)
	out := r.Modal(patron)
	assert.Contains(t, out, "emprestar")
	assert.NotContains(t, out, "editar")

	admin := controller.NewModalController(controller.Env{Backend: nopBackend{}, Session: roleSession(library.RoleAdmin)}, library.Books, rec, false, nil)
	require.NoError(t, admin.Edit())
	out = r.Modal(admin)
	assert.Contains(t, out, "salvar")
	assert.Contains(t, out, "Senhora")
}

func TestFormMasksPasswords(t *testing.T) {
	env := controller.Env{Backend: nopBackend{}, Session: roleSession(library.RoleLibrarian)}
	c := controller.NewCreateController(env, library.Users)
	require.NoError(t, c.Set("senha", "segredo"))

	out := renderer().Form(c)
	assert.NotContains(t, out, "segredo")
	assert.Contains(t, out, "(fixo)")
}

func TestListEmptyAndCounts(t *testing.T) {
	env := controller.Env{Backend: nopBackend{}, Session: roleSession(library.RoleAdmin)}
	l := controller.NewListController(env, library.Genres)
	require.NoError(t, l.Mount(context.Background()))
	require.NoError(t, l.SetFilter(context.Background(), "nome", "comédia"))

	out := renderer().List(l)
	assert.Contains(t, out, "Nenhum gênero encontrado.")
	assert.Contains(t, out, "filtros: nome=comédia")
}
