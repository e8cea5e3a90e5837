package controller_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sgb-web/api"
	"sgb-web/apitest"
	"sgb-web/controller"
	"sgb-web/library"
)

var today = time.Date(2026, 5, 4, 9, 30, 0, 0, time.Local)

type world struct {
	backend *apitest.Backend
	holder  *library.SessionHolder
	env     controller.Env
	auth    *controller.AuthController
}

func newWorld(t *testing.T) *world {
	t.Helper()
	b := apitest.New()
	b.Now = func() time.Time { return today }

	db, err := library.NewDatabase(filepath.Join(t.TempDir(), "sgb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	holder, err := library.NewSessionHolder(db)
	require.NoError(t, err)

	client := api.New(apitest.BaseURL, holder, api.WithHTTPClient(b.HTTPClient()))
	env := controller.Env{
		Backend:  client,
		Session:  holder,
		Now:      func() time.Time { return today },
		FlashTTL: time.Hour,
	}
	return &world{backend: b, holder: holder, env: env, auth: controller.NewAuthController(env, holder)}
}

func (w *world) loginAs(t *testing.T, nome string, role library.Role) library.Record {
	t.Helper()
	email := nome + "@sgb.br"
	u := w.backend.AddUser(nome, email, "senha", role)
	_, err := w.auth.Login(context.Background(), email, "senha")
	require.NoError(t, err)
	return u
}

func visibleIDs(l *controller.ListController) []string {
	var out []string
	for _, r := range l.Visible() {
		out = append(out, l.Entity().ID(r))
	}
	return out
}

func TestScenarioRepeatedServerFilter(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "ana", library.RoleAdmin)
	g := w.backend.AddGenre("Romance")
	w.backend.AddBook("Dom Casmurro", "Machado de Assis", g, library.Available)
	w.backend.AddBook("Helena", "Machado de Assis", g, library.Unavailable)

	ctx := context.Background()
	l := controller.NewListController(w.env, library.Books)
	require.NoError(t, l.Mount(ctx))
	require.NoError(t, l.SetFilter(ctx, "disponibilidade", library.Available))
	first := visibleIDs(l)
	require.NoError(t, l.SetFilter(ctx, "disponibilidade", library.Available))

	assert.Equal(t, 3, w.backend.Count(http.MethodGet, "/livros"))
	assert.Equal(t, first, visibleIDs(l))
	assert.Len(t, first, 1)
}

func TestScenarioSaveThenReopen(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "bruno", library.RoleLibrarian)
	g := w.backend.AddGenre("Drama")

	ctx := context.Background()
	l := controller.NewListController(w.env, library.Genres)
	require.NoError(t, l.Mount(ctx))

	m, err := l.Open(g.String("id"))
	require.NoError(t, err)
	require.NoError(t, m.Edit())
	require.NoError(t, m.SetField("nome", "Tragédia"))
	require.NoError(t, m.Save(ctx))
	require.NoError(t, m.Close())

	again, err := l.Open(g.String("id"))
	require.NoError(t, err)
	assert.Equal(t, "Tragédia", again.Record().String("nome"))
}

func TestScenarioDeleteIsFinal(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "ana", library.RoleAdmin)
	g := w.backend.AddGenre("Poesia")
	book := w.backend.AddBook("Lira dos Vinte Anos", "Álvares de Azevedo", g, library.Available)
	id := book.String("codigoLivro")

	ctx := context.Background()
	l := controller.NewListController(w.env, library.Books)
	require.NoError(t, l.Mount(ctx))

	m, err := l.Open(id)
	require.NoError(t, err)
	_, err = m.RequestDelete()
	require.NoError(t, err)
	require.NoError(t, m.ConfirmDelete(ctx, true))
	assert.Equal(t, controller.Closed, m.Mode())

	assert.Empty(t, visibleIDs(l), "closing with refresh re-fetched the list")
	_, err = l.Open(id)
	assert.ErrorIs(t, err, library.ErrNotFound)
	assert.ErrorIs(t, m.Edit(), controller.ErrModalClosed)
	_, err = m.RequestDelete()
	assert.ErrorIs(t, err, controller.ErrModalClosed)
}

func TestScenarioFailedDeleteLeavesEverything(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "ana", library.RoleAdmin)
	g := w.backend.AddGenre("Poesia")
	book := w.backend.AddBook("Espumas Flutuantes", "Castro Alves", g, library.Available)
	id := book.String("codigoLivro")
	w.backend.Fail(http.MethodDelete, "/livros/"+id, http.StatusInternalServerError, "")

	ctx := context.Background()
	l := controller.NewListController(w.env, library.Books)
	require.NoError(t, l.Mount(ctx))
	m, err := l.Open(id)
	require.NoError(t, err)

	_, err = m.RequestDelete()
	require.NoError(t, err)
	require.Error(t, m.ConfirmDelete(ctx, true))

	assert.NotEqual(t, controller.Closed, m.Mode())
	assert.Equal(t, controller.KindError, m.Message().Kind)
	assert.NotContains(t, m.Message().Text, "excluído")

	require.NoError(t, l.Refresh(ctx))
	assert.Equal(t, []string{id}, visibleIDs(l))
}

func TestScenarioPatronBorrowsForThemself(t *testing.T) {
	w := newWorld(t)
	patron := w.loginAs(t, "caio", library.RolePatron)
	g := w.backend.AddGenre("Aventura")
	w.backend.AddBook("O Guarani", "José de Alencar", g, library.Unavailable)
	book := w.backend.AddBook("Ubirajara", "José de Alencar", g, library.Available)

	ctx := context.Background()
	l := controller.NewListController(w.env, library.Books)
	require.NoError(t, l.SetFilter(ctx, "disponibilidade", library.Available))
	require.Equal(t, []string{book.String("codigoLivro")}, visibleIDs(l))

	m, err := l.Open(book.String("codigoLivro"))
	require.NoError(t, err)
	assert.False(t, m.CanEdit())
	require.True(t, m.CanLend())

	form, err := m.StartLoan()
	require.NoError(t, err)
	assert.Empty(t, form.Fields(), "no borrower selection for patrons")

	loan, err := m.FinishLoan(ctx)
	require.NoError(t, err)
	assert.Equal(t, patron.String("codigoLogin"), loan.String("usuario.codigoLogin"))
	assert.Equal(t, "2026-05-04", loan.String("dataRetirada"))
	assert.Equal(t, "2026-05-18", loan.String("dataPrevista"))

	stored, ok := w.backend.Find("livros", book.String("codigoLivro"))
	require.True(t, ok)
	assert.Equal(t, library.Unavailable, stored.String("disponibilidade"))

	require.NoError(t, m.Close())
	assert.Empty(t, visibleIDs(l), "the borrowed book left the available list")
}

func TestScenarioLibrarianNeverListsAdmins(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "bruno", library.RoleLibrarian)
	w.backend.AddUser("Diretora", "dir@sgb.br", "x", library.RoleAdmin)
	w.backend.AddUser("Leitor", "leitor@sgb.br", "x", library.RolePatron)

	ctx := context.Background()
	l := controller.NewListController(w.env, library.Users)
	require.NoError(t, l.Mount(ctx))
	for _, r := range l.Visible() {
		assert.NotEqual(t, "ADMIN", r.String("perfil"))
	}
	assert.Len(t, l.Visible(), 2)

	require.NoError(t, l.SetFilter(ctx, "perfil", "ADMIN"))
	assert.Empty(t, l.Visible())
}

func TestScenarioCreateThenOpen(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "ana", library.RoleAdmin)
	g := w.backend.AddGenre("Crônica")

	ctx := context.Background()
	l := controller.NewListController(w.env, library.Books)
	require.NoError(t, l.Mount(ctx))

	form, err := l.NewCreateForm()
	require.NoError(t, err)
	require.NoError(t, form.Set("nome", "A Cidade e as Serras"))
	require.NoError(t, form.Set("autor", "Eça de Queirós"))
	require.NoError(t, form.Set("genero", g.String("id")))
	rec, err := form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, library.Available, rec.String("disponibilidade"), "filled in because the backend omitted it")

	requests := len(w.backend.Requests())
	m := l.OpenRecord(rec, true)
	assert.Equal(t, "Livro criado com sucesso!", m.Message().Text)
	assert.Len(t, w.backend.Requests(), requests, "opening a created record needs no fetch")

	require.NoError(t, m.Close())
	assert.Len(t, l.Visible(), 1)
}

func TestScenarioMismatchedPasswordsStayLocal(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "ana", library.RoleAdmin)
	w.backend.ResetRequests()

	form := controller.NewCreateController(w.env, library.Users)
	for k, v := range map[string]string{
		"nome": "Eva", "email": "eva@sgb.br", "telefone": "1", "dataDeNascimento": "1980-02-02",
		"perfil": "USUARIO", "senha": "um", "senha2": "dois",
	} {
		require.NoError(t, form.Set(k, v))
	}
	_, err := form.Submit(context.Background())
	assert.ErrorIs(t, err, library.ErrValidation)
	assert.Empty(t, w.backend.Requests())
}

func TestScenarioLogoutKeepsMenu(t *testing.T) {
	w := newWorld(t)
	w.loginAs(t, "ana", library.RoleAdmin)
	require.NoError(t, w.holder.SelectMenu("generos"))

	require.NoError(t, w.auth.Logout())
	assert.False(t, w.holder.Session().Authenticated())
	assert.Equal(t, "generos", w.holder.SelectedMenu())

	w.backend.ResetRequests()
	err := controller.NewListController(w.env, library.Books).Mount(context.Background())
	assert.ErrorIs(t, err, library.ErrNotLoggedIn)
	assert.Empty(t, w.backend.Requests())
}
