package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sgb-web/api"
	"sgb-web/config"
	"sgb-web/controller"
	"sgb-web/library"
	"sgb-web/ui"
)

// NewRootCmd builds the sgb command tree. clientOpts are passed to every
// API client the commands create.
func NewRootCmd(clientOpts ...api.Option) *cobra.Command {
	var (
		cfgFile string
		app     *App
	)

	root := &cobra.Command{
		Use:           "sgb",
		Short:         "Cliente de terminal do Sistema de Gerenciamento de Biblioteca",
		Long:          "sgb consulta e administra livros, gêneros, empréstimos e usuários do SGB.\nSem subcomando, abre o modo interativo.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			app, err = NewApp(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), clientOpts...)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return NewShell(app).Run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "arquivo de configuração (padrão ~/.sgb/config.yaml)")

	current := func() *App { return app }
	root.AddCommand(
		newShellCmd(current),
		newLoginCmd(current),
		newLogoutCmd(current),
		newWhoamiCmd(current),
		newRegisterCmd(current),
		newListCmd(current),
	)
	return root
}

func newShellCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Abre o modo interativo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return NewShell(app()).Run(cmd.Context())
		},
	}
}

func newLoginCmd(app func() *App) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Autentica no SGB e guarda a sessão",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app().login(cmd.Context(), email)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "e-mail da conta")
	return cmd
}

func newLogoutCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Encerra a sessão guardada",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := app()
			if err := a.Auth.Logout(); err != nil {
				return err
			}
			a.println("Sessão encerrada.")
			return nil
		},
	}
}

func newWhoamiCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Mostra a sessão atual",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := app()
			a.println(a.Render.Session(a.Session.Session()))
			return nil
		},
	}
}

func newRegisterCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cadastro",
		Short: "Cria uma conta de usuário (sem login)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			form := a.Auth.Registration()
			if !a.fillForm(form) {
				return errors.New("entrada encerrada")
			}
			if _, err := form.Submit(cmd.Context()); err != nil {
				return errors.New(form.Err())
			}
			a.println(a.Render.S.Success.Render(library.Registration.Messages.Created))
			return nil
		},
	}
}

func newListCmd(app func() *App) *cobra.Command {
	var filters []string
	cmd := &cobra.Command{
		Use:       "listar <secao>",
		Short:     "Lista livros, gêneros, empréstimos ou usuários",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"livros", "generos", "emprestimos", "usuarios"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.requireSession(); err != nil {
				return err
			}
			e, err := library.Lookup(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", err, args[0])
			}
			if library.ResolveMenu(a.Session.Session(), e.Name) != e.Name {
				return fmt.Errorf("%w: %s", library.ErrForbidden, e.Name)
			}
			parsed, err := parseFilters(filters)
			if err != nil {
				return err
			}

			l := controller.NewListController(a.Env, e)
			if err := l.Apply(cmd.Context(), parsed); err != nil && l.Err() == "" {
				return err
			}
			a.printf("%s", a.Render.List(l))
			if msg := l.Err(); msg != "" {
				return errors.New(msg)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filtro", "f", nil, "filtro chave=valor (repetível)")
	return cmd
}

func parseFilters(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("filtro inválido %q: use chave=valor", kv)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

// login prompts for whatever is missing and stores the session.
func (a *App) login(ctx context.Context, email string) error {
	if email == "" {
		var ok bool
		if email, ok = a.prompt("E-mail: "); !ok {
			return errors.New("entrada encerrada")
		}
	}
	password, ok := a.readPassword("Senha: ")
	if !ok {
		return errors.New("entrada encerrada")
	}
	s, err := a.Auth.Login(ctx, email, password)
	if err != nil {
		return errors.New(a.Auth.Err())
	}
	a.printf("Bem-vindo(a), %s!\n", s.DisplayName)
	return nil
}

// fillForm prompts for every user-editable field. Returns false at end of input.
func (a *App) fillForm(form *controller.CreateController) bool {
	for _, f := range form.Fields() {
		var (
			v  string
			ok bool
		)
		if ui.Secret(f) {
			v, ok = a.readPassword(ui.Label(f) + ": ")
		} else {
			v, ok = a.prompt(ui.Label(f) + ": ")
		}
		if !ok {
			return false
		}
		if err := form.Set(f, v); err != nil {
			a.println(err)
		}
	}
	return true
}
