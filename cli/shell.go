package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sgb-web/api"
	"sgb-web/controller"
	"sgb-web/library"
	"sgb-web/ui"
)

// Shell is the interactive mode: one section list at a time, at most one
// open record and at most one creation form.
type Shell struct {
	app   *App
	list  *controller.ListController
	modal *controller.ModalController
	form  *controller.CreateController
}

// NewShell returns a shell over app.
func NewShell(app *App) *Shell {
	return &Shell{app: app}
}

// Run reads commands until "sair" or end of input.
func (sh *Shell) Run(ctx context.Context) error {
	a := sh.app
	a.println(a.Render.S.Title.Render("SGB · Sistema de Gerenciamento de Biblioteca"))
	a.println("Digite 'ajuda' para ver os comandos.")

	if a.Session.Session().Authenticated() {
		a.println(a.Render.Session(a.Session.Session()))
		sh.section(ctx, a.Session.SelectedMenu())
	} else {
		a.println("Faça login para continuar.")
		sh.login(ctx)
	}

	for {
		sh.reap()
		line, ok := a.prompt(sh.promptText())
		if !ok {
			a.println()
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if quit := sh.dispatch(ctx, fields[0], fields[1:]); quit {
			a.println("Até logo!")
			return nil
		}
	}
}

func (sh *Shell) promptText() string {
	if sh.list == nil {
		return "\nsgb> "
	}
	return fmt.Sprintf("\nsgb:%s> ", sh.list.Entity().Name)
}

// reap drops a modal that closed itself, e.g. after a delete.
func (sh *Shell) reap() {
	if sh.modal != nil && sh.modal.Mode() == controller.Closed {
		sh.modal = nil
	}
}

func (sh *Shell) dispatch(ctx context.Context, cmd string, args []string) (quit bool) {
	a := sh.app

	switch cmd {
	case "sair", "exit":
		return true
	case "ajuda", "help":
		sh.help()
		return false
	case "login":
		sh.login(ctx)
		return false
	case "cadastro":
		sh.register(ctx)
		return false
	}

	if err := a.requireSession(); err != nil {
		a.println(a.Render.S.Error.Render("Faça login primeiro."))
		return false
	}

	switch cmd {
	case "livros", "generos", "emprestimos", "usuarios":
		sh.section(ctx, cmd)
	case "menu":
		sh.menu()
	case "whoami":
		a.println(a.Render.Session(a.Session.Session()))
	case "logout":
		sh.logout()
	case "filtro":
		sh.filter(ctx, args)
	case "limpar":
		sh.withList(func(l *controller.ListController) error { return l.ClearFilters(ctx) })
	case "atualizar":
		sh.withList(func(l *controller.ListController) error { return l.Refresh(ctx) })
	case "abrir":
		sh.open(args)
	case "editar":
		sh.withModal(func(m *controller.ModalController) error { return m.Edit() })
	case "campo":
		sh.setField(args)
	case "salvar":
		sh.save(ctx)
	case "cancelar":
		sh.cancel()
	case "excluir":
		sh.delete(ctx)
	case "emprestar":
		sh.lend(ctx)
	case "fechar":
		sh.close()
	case "novo":
		sh.newForm(ctx)
	default:
		a.println("Comando desconhecido. Digite 'ajuda'.")
	}
	return false
}

func (sh *Shell) help() {
	a := sh.app
	a.println("Comandos:")
	a.println("  Sessão:     login, cadastro, logout, whoami, sair")
	a.println("  Seções:     livros, generos, emprestimos, usuarios, menu")
	a.println("  Lista:      filtro <chave> [valor], limpar, atualizar, abrir <id>, novo")
	a.println("  Registro:   editar, campo <chave> [valor], salvar, cancelar, excluir, emprestar, fechar")
	a.println()
	a.println("Dicas:")
	a.println("  • 'filtro' sem valor remove aquele filtro")
	a.println("  • 'campo senha' sem valor pede a senha sem exibi-la")
}

func (sh *Shell) login(ctx context.Context) {
	a := sh.app
	if err := a.login(ctx, ""); err != nil {
		a.println(a.Render.S.Error.Render(err.Error()))
		return
	}
	sh.reset()
	sh.section(ctx, a.Session.SelectedMenu())
}

func (sh *Shell) register(ctx context.Context) {
	a := sh.app
	form := a.Auth.Registration()
	if !a.fillForm(form) {
		return
	}
	if _, err := form.Submit(ctx); err != nil {
		a.println(a.Render.S.Error.Render(form.Err()))
		return
	}
	a.println(a.Render.S.Success.Render(library.Registration.Messages.Created))
}

func (sh *Shell) logout() {
	a := sh.app
	if err := a.Auth.Logout(); err != nil {
		a.println(a.Render.S.Error.Render(err.Error()))
		return
	}
	sh.reset()
	a.println("Sessão encerrada.")
}

func (sh *Shell) reset() {
	if sh.modal != nil {
		_ = sh.modal.Close()
	}
	sh.modal, sh.form, sh.list = nil, nil, nil
}

func (sh *Shell) section(ctx context.Context, name string) {
	a := sh.app
	if err := a.Session.SelectMenu(name); err != nil {
		a.println(a.Render.S.Error.Render("Seção indisponível: " + name))
		return
	}
	e, err := library.Lookup(name)
	if err != nil {
		a.println(a.Render.S.Error.Render(err.Error()))
		return
	}
	sh.reset()
	sh.list = controller.NewListController(a.Env, e)
	err = sh.list.Mount(ctx)
	if err != nil {
		a.Log.Debug().Err(err).Str("section", name).Msg("mount failed")
	}
	a.printf("%s", a.Render.List(sh.list))
	sh.sessionHint(err)
}

func (sh *Shell) menu() {
	a := sh.app
	current := a.Session.SelectedMenu()
	for _, e := range library.Menus(a.Session.Session()) {
		mark := "  "
		if e.Name == current {
			mark = "> "
		}
		a.printf("%s%s\n", mark, e.Name)
	}
}

func (sh *Shell) withList(fn func(*controller.ListController) error) {
	a := sh.app
	if sh.list == nil {
		a.println("Escolha uma seção primeiro.")
		return
	}
	err := fn(sh.list)
	if err != nil && sh.list.Err() == "" {
		a.println(a.Render.S.Error.Render(err.Error()))
		return
	}
	a.printf("%s", a.Render.List(sh.list))
	sh.sessionHint(err)
}

func (sh *Shell) filter(ctx context.Context, args []string) {
	if len(args) == 0 {
		sh.app.println("Uso: filtro <chave> [valor]")
		return
	}
	key, value := args[0], strings.Join(args[1:], " ")
	sh.withList(func(l *controller.ListController) error {
		err := l.SetFilter(ctx, key, value)
		if errors.Is(err, controller.ErrUnknownFilter) {
			return fmt.Errorf("filtro desconhecido: %s", key)
		}
		return err
	})
}

func (sh *Shell) open(args []string) {
	a := sh.app
	if sh.list == nil {
		a.println("Escolha uma seção primeiro.")
		return
	}
	if len(args) != 1 {
		a.println("Uso: abrir <id>")
		return
	}
	if sh.modal != nil {
		_ = sh.modal.Close()
	}
	m, err := sh.list.Open(args[0])
	switch {
	case errors.Is(err, library.ErrNotFound):
		a.println(a.Render.S.Error.Render("Registro não encontrado: " + args[0]))
		return
	case errors.Is(err, library.ErrForbidden):
		a.println(a.Render.S.Error.Render("Sem permissão para abrir este registro."))
		return
	case err != nil:
		a.println(a.Render.S.Error.Render(err.Error()))
		return
	}
	sh.form = nil
	sh.modal = m
	a.println(a.Render.Modal(m))
}

func (sh *Shell) withModal(fn func(*controller.ModalController) error) {
	a := sh.app
	if sh.modal == nil {
		a.println("Nenhum registro aberto. Use 'abrir <id>'.")
		return
	}
	if err := fn(sh.modal); err != nil {
		sh.printErr(err)
	}
	if sh.modal.Mode() != controller.Closed {
		a.println(a.Render.Modal(sh.modal))
	}
}

func (sh *Shell) setField(args []string) {
	a := sh.app
	if len(args) == 0 {
		a.println("Uso: campo <chave> [valor]")
		return
	}
	key, value := args[0], strings.Join(args[1:], " ")
	if value == "" && ui.Secret(key) {
		v, ok := a.readPassword(ui.Label(key) + ": ")
		if !ok {
			return
		}
		value = v
	}

	if sh.form != nil {
		if err := sh.form.Set(key, value); err != nil {
			sh.printErr(err)
		}
		a.println(a.Render.Form(sh.form))
		return
	}
	sh.withModal(func(m *controller.ModalController) error {
		if m.Mode() == controller.Lending {
			return m.LoanForm().Set(key, value)
		}
		return m.SetField(key, value)
	})
}

func (sh *Shell) save(ctx context.Context) {
	a := sh.app
	if sh.form != nil {
		rec, err := sh.form.Submit(ctx)
		if err != nil {
			a.println(a.Render.Form(sh.form))
			return
		}
		sh.form = nil
		sh.modal = sh.list.OpenRecord(rec, true)
		a.println(a.Render.Modal(sh.modal))
		return
	}
	sh.withModal(func(m *controller.ModalController) error {
		if m.Mode() == controller.Lending {
			_, err := m.FinishLoan(ctx)
			return quiet(err)
		}
		return quiet(m.Save(ctx))
	})
}

func (sh *Shell) cancel() {
	if sh.form != nil {
		sh.form = nil
		sh.app.println("Cadastro descartado.")
		return
	}
	sh.withModal(func(m *controller.ModalController) error { return m.Cancel() })
}

func (sh *Shell) delete(ctx context.Context) {
	a := sh.app
	if sh.modal == nil {
		a.println("Nenhum registro aberto. Use 'abrir <id>'.")
		return
	}
	question, err := sh.modal.RequestDelete()
	if err != nil {
		sh.printErr(err)
		return
	}
	answer, ok := a.prompt(question + " (s/n) ")
	if !ok {
		answer = "n"
	}
	yes := strings.EqualFold(answer, "s") || strings.EqualFold(answer, "sim")
	sh.withModal(func(m *controller.ModalController) error { return quiet(m.ConfirmDelete(ctx, yes)) })
	if sh.modal.Mode() == controller.Closed {
		a.println(a.Render.S.Success.Render(sh.list.Entity().Messages.Deleted))
		sh.modal = nil
		a.printf("%s", a.Render.List(sh.list))
	}
}

func (sh *Shell) lend(ctx context.Context) {
	a := sh.app
	if sh.modal == nil {
		a.println("Nenhum registro aberto. Use 'abrir <id>'.")
		return
	}
	if _, err := sh.modal.StartLoan(); err != nil {
		sh.printErr(err)
		return
	}
	if a.Session.Session().Role.Staff() {
		sh.choices("Usuários:", library.Users, "nome", func() ([]library.Record, error) { return controller.Borrowers(ctx, a.Env) })
	}
	a.println(a.Render.Modal(sh.modal))
}

func (sh *Shell) close() {
	a := sh.app
	if sh.form != nil {
		sh.form = nil
		return
	}
	if sh.modal == nil {
		return
	}
	_ = sh.modal.Close()
	sh.modal = nil
	if sh.list != nil {
		a.printf("%s", a.Render.List(sh.list))
	}
}

// choices prints id and label of each record fetch returns.
func (sh *Shell) choices(title string, e *library.Entity, label string, fetch func() ([]library.Record, error)) {
	a := sh.app
	items, err := fetch()
	if err != nil {
		a.Log.Warn().Err(err).Str("entity", e.Name).Msg("list choices failed")
		return
	}
	if len(items) == 0 {
		return
	}
	a.println(a.Render.S.Muted.Render(title))
	for _, r := range items {
		a.printf("  %s  %s\n", e.ID(r), r.String(label))
	}
}

func (sh *Shell) newForm(ctx context.Context) {
	a := sh.app
	if sh.list == nil {
		a.println("Escolha uma seção primeiro.")
		return
	}
	form, err := sh.list.NewCreateForm()
	if err != nil {
		sh.printErr(err)
		return
	}
	if sh.modal != nil {
		_ = sh.modal.Close()
		sh.modal = nil
	}
	sh.form = form
	if form.Entity() == library.Loans {
		sh.choices("Livros disponíveis:", library.Books, "nome", func() ([]library.Record, error) { return controller.AvailableBooks(ctx, a.Env) })
		if a.Session.Session().Role.Staff() {
			sh.choices("Usuários:", library.Users, "nome", func() ([]library.Record, error) { return controller.Borrowers(ctx, a.Env) })
		}
	}
	a.println(a.Render.Form(form))
}

// sessionHint suggests logging in again when the backend refused the token.
func (sh *Shell) sessionHint(err error) {
	var se *api.StatusError
	if errors.As(err, &se) && se.Forbidden() {
		sh.app.println(sh.app.Render.S.Warning.Render("Sessão expirada ou sem permissão. Use 'login' para entrar novamente."))
	}
}

func (sh *Shell) printErr(err error) {
	a := sh.app
	var msg string
	switch {
	case errors.Is(err, library.ErrForbidden):
		msg = "Sem permissão para esta ação."
	case errors.Is(err, controller.ErrBusy):
		msg = "Aguarde a operação em andamento."
	case errors.Is(err, controller.ErrInvalidState):
		msg = "Ação indisponível neste momento."
	case errors.Is(err, controller.ErrModalClosed):
		msg = "O registro já foi fechado."
	case errors.Is(err, controller.ErrFieldLocked):
		msg = "Campo não pode ser alterado."
	case errors.Is(err, controller.ErrUnknownField):
		msg = "Campo desconhecido."
	default:
		msg = err.Error()
	}
	a.println(a.Render.S.Error.Render(msg))
}

// quiet drops request errors whose message the modal already shows.
func quiet(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{library.ErrForbidden, controller.ErrBusy, controller.ErrInvalidState, controller.ErrModalClosed, library.ErrNotLoggedIn} {
		if errors.Is(err, known) {
			return err
		}
	}
	return nil
}
