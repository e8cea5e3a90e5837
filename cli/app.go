// Package cli is the sgb command line: one-shot cobra commands plus the
// interactive shell.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"sgb-web/api"
	"sgb-web/config"
	"sgb-web/controller"
	"sgb-web/library"
	"sgb-web/logger"
	"sgb-web/ui"
)

// App wires configuration, storage, session, API client and controllers.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	DB      *library.Database
	Session *library.SessionHolder
	Client  *api.Client
	Env     controller.Env
	Auth    *controller.AuthController
	Render  ui.Renderer

	in  io.Reader
	out io.Writer
	sc  *bufio.Scanner
}

// NewApp opens the local store and restores the session. opts are applied
// to the API client after the configured ones.
func NewApp(cfg *config.Config, in io.Reader, out io.Writer, opts ...api.Option) (*App, error) {
	log := logger.New(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})

	db, err := library.NewDatabase(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("abrir armazenamento local: %w", err)
	}
	holder, err := library.NewSessionHolder(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	clientOpts := append([]api.Option{api.WithLogger(log), api.WithTimeout(cfg.HTTP.Timeout)}, opts...)
	client := api.New(cfg.API.BaseURL, holder, clientOpts...)

	env := controller.Env{
		Backend:    client,
		Session:    holder,
		Log:        log,
		FlashTTL:   cfg.UI.FlashTTL,
		CloseDelay: cfg.UI.CloseDelay,
	}
	return &App{
		Config:  cfg,
		Log:     log,
		DB:      db,
		Session: holder,
		Client:  client,
		Env:     env,
		Auth:    controller.NewAuthController(env, holder),
		Render:  ui.Renderer{S: ui.NewStyles(out)},
		in:      in,
		out:     out,
		sc:      bufio.NewScanner(in),
	}, nil
}

// Close releases the local store.
func (a *App) Close() error {
	return a.DB.Close()
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// prompt prints label and reads one trimmed line. ok is false at end of input.
func (a *App) prompt(label string) (string, bool) {
	fmt.Fprint(a.out, label)
	if !a.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.sc.Text()), true
}

// readPassword reads without echo when input is a terminal, and a plain
// line otherwise.
func (a *App) readPassword(label string) (string, bool) {
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	fmt.Fprint(a.out, label)
	if !a.sc.Scan() {
		return "", false
	}
	return a.sc.Text(), true
}

// requireSession fails unless someone is logged in.
func (a *App) requireSession() error {
	if !a.Session.Session().Authenticated() {
		return fmt.Errorf("%w: execute 'sgb login'", library.ErrNotLoggedIn)
	}
	return nil
}
