// Package apitest is an in-memory SGB backend for tests. It runs a fiber app
// in-process and plugs it into api.Client as an http.RoundTripper, so the
// real client code runs end to end without opening sockets.
package apitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"sgb-web/library"
)

// BaseURL is the host the fake answers for.
const BaseURL = "http://sgb.test"

// Request is one call as the backend saw it.
type Request struct {
	Method string
	Path   string
	Query  string
	Auth   string
}

type failure struct {
	status  int
	message string
}

type collection struct {
	idField string
	items   []library.Record
	next    int64
}

// Backend holds the fake's state. All exported methods are safe for
// concurrent use.
type Backend struct {
	App *fiber.App
	Now func() time.Time

	mu       sync.Mutex
	data     map[string]*collection
	sessions map[string]library.Record
	requests []Request
	failures map[string]failure
}

// New returns an empty backend.
func New() *Backend {
	b := &Backend{
		Now: time.Now,
		data: map[string]*collection{
			"usuarios":    {idField: "codigoLogin"},
			"livros":      {idField: "codigoLivro"},
			"generos":     {idField: "id"},
			"emprestimos": {idField: "codigoEmprestimo"},
		},
		sessions: make(map[string]library.Record),
		failures: make(map[string]failure),
	}
	b.App = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
		},
	})
	b.routes()
	return b
}

// HTTPClient returns a client whose requests are served by the fake.
func (b *Backend) HTTPClient() *http.Client {
	return &http.Client{Transport: roundTripper{app: b.App}}
}

type roundTripper struct {
	app *fiber.App
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.app.Test(req.Clone(req.Context()), -1)
}

// Fail makes every request matching method and exact path answer status
// with message until Recover is called.
func (b *Backend) Fail(method, path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = failure{status: status, message: message}
}

// Recover removes an injected failure.
func (b *Backend) Recover(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, method+" "+path)
}

// Requests returns a copy of the request log.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count counts logged requests with the given method and path.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (b *Backend) ResetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

// Find returns a copy of the stored record, if present.
func (b *Backend) Find(name, id string) (library.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	col := b.data[name]
	if i := col.index(id); i >= 0 {
		return col.items[i].Clone(), true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Seeding
// ---------------------------------------------------------------------------

// AddUser stores an account and returns it.
func (b *Backend) AddUser(nome, email, senha string, perfil library.Role) library.Record {
	return b.insert("usuarios", library.Record{
		"nome":             nome,
		"email":            email,
		"senha":            senha,
		"telefone":         "11999990000",
		"dataDeNascimento": "1990-01-01",
		"perfil":           string(perfil),
	})
}

// AddGenre stores a genre and returns it.
func (b *Backend) AddGenre(nome string) library.Record {
	return b.insert("generos", library.Record{"nome": nome})
}

// AddBook stores a book in the given genre.
func (b *Backend) AddBook(nome, autor string, genre library.Record, disponibilidade string) library.Record {
	return b.insert("livros", library.Record{
		"nome":            nome,
		"autor":           autor,
		"genero":          genre.Pick("id", "nome"),
		"disponibilidade": disponibilidade,
	})
}

// AddLoan stores a loan of book to user. Pass an empty returned date for an
// open loan.
func (b *Backend) AddLoan(book, user library.Record, retirada, prevista, entrega string) library.Record {
	rec := library.Record{
		"livro":        book.Pick("codigoLivro", "nome"),
		"usuario":      user.Pick("codigoLogin", "nome"),
		"dataRetirada": retirada,
		"dataPrevista": prevista,
	}
	if entrega != "" {
		rec["dataDeEntrega"] = entrega
	}
	return b.insert("emprestimos", rec)
}

// Token logs user in directly and returns a bearer token.
func (b *Backend) Token(user library.Record) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok := uuid.NewString()
	b.sessions[tok] = user.Clone()
	return tok
}

func (b *Backend) insert(name string, rec library.Record) library.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data[name].add(rec).Clone()
}

func (c *collection) add(rec library.Record) library.Record {
	c.next++
	rec[c.idField] = c.next
	c.items = append(c.items, rec)
	return rec
}

func (c *collection) index(id string) int {
	for i, r := range c.items {
		if r.String(c.idField) == id {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// HTTP surface
// ---------------------------------------------------------------------------

func (b *Backend) routes() {
	b.App.Use(b.record)
	b.App.Post("/login", b.login)
	b.App.Post("/usuarios/publico", b.register)

	for name := range b.data {
		name := name
		path := "/" + name
		b.App.Get(path, b.auth, b.list(name))
		b.App.Post(path, b.auth, b.create(name))
		b.App.Put(path+"/:id", b.auth, b.update(name))
		b.App.Delete(path+"/:id", b.auth, b.remove(name))
	}
}

// record logs the call and applies any injected failure. Strings are
// copied because fiber reuses request buffers after the handler returns.
func (b *Backend) record(c *fiber.Ctx) error {
	b.mu.Lock()
	b.requests = append(b.requests, Request{
		Method: utils.CopyString(c.Method()),
		Path:   utils.CopyString(c.Path()),
		Query:  string(c.Request().URI().QueryString()),
		Auth:   utils.CopyString(c.Get(fiber.HeaderAuthorization)),
	})
	f, failing := b.failures[c.Method()+" "+c.Path()]
	b.mu.Unlock()

	if failing {
		return c.Status(f.status).JSON(fiber.Map{"message": f.message})
	}
	return c.Next()
}

func (b *Backend) auth(c *fiber.Ctx) error {
	tok := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	b.mu.Lock()
	user, ok := b.sessions[tok]
	b.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Token inválido"})
	}
	c.Locals("user", user)
	return c.Next()
}

func caller(c *fiber.Ctx) library.Record {
	u, _ := c.Locals("user").(library.Record)
	return u
}

func (b *Backend) login(c *fiber.Ctx) error {
	body, err := parse(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "JSON inválido"})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.data["usuarios"].items {
		if u.String("email") == body.String("email") && u.String("senha") == body.String("password") {
			tok := uuid.NewString()
			b.sessions[tok] = u.Clone()
			return c.JSON(fiber.Map{
				"status": "success",
				"token":  tok,
				"perfil": u.String("perfil"),
				"user":   u.String("email"),
				"userId": u["codigoLogin"],
			})
		}
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"status": "error", "message": "Credenciais inválidas"})
}

func (b *Backend) register(c *fiber.Ctx) error {
	body, err := parse(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "JSON inválido"})
	}
	body["perfil"] = string(library.RolePatron)

	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.data["usuarios"].add(body)
	return c.Status(fiber.StatusCreated).JSON(public(rec))
}

func (b *Backend) list(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := caller(c)

		b.mu.Lock()
		defer b.mu.Unlock()
		out := make([]library.Record, 0)
		for _, r := range b.data[name].items {
			view := b.view(name, r)
			if b.matches(name, view, c, user) {
				out = append(out, public(view))
			}
		}
		return c.JSON(out)
	}
}

func (b *Backend) create(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := caller(c)
		body, err := parse(c.Body())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "JSON inválido"})
		}
		role := library.Role(user.String("perfil"))
		if name != "emprestimos" && !role.Staff() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "Acesso negado"})
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		switch name {
		case "livros":
			body["genero"] = b.genreRef(body.String("genero.id"))
			rec := b.data[name].add(body.Clone())
			rec["disponibilidade"] = library.Available
			echo := rec.Clone()
			delete(echo, "disponibilidade")
			return c.Status(fiber.StatusCreated).JSON(echo)
		case "emprestimos":
			return b.lend(c, body, user)
		}
		rec := b.data[name].add(body)
		return c.Status(fiber.StatusCreated).JSON(public(rec))
	}
}

func (b *Backend) lend(c *fiber.Ctx, body, user library.Record) error {
	books := b.data["livros"]
	bi := books.index(body.String("livro.codigoLivro"))
	if bi < 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Livro não encontrado"})
	}
	if books.items[bi].String("disponibilidade") != library.Available {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "Livro indisponível para empréstimo"})
	}
	users := b.data["usuarios"]
	ui := users.index(body.String("usuario.codigoLogin"))
	if ui < 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Usuário não encontrado"})
	}
	if library.Role(user.String("perfil")) == library.RolePatron && user.String("codigoLogin") != users.items[ui].String("codigoLogin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "Acesso negado"})
	}

	books.items[bi]["disponibilidade"] = library.Unavailable
	rec := b.data["emprestimos"].add(library.Record{
		"livro":        books.items[bi].Pick("codigoLivro", "nome"),
		"usuario":      users.items[ui].Pick("codigoLogin", "nome"),
		"dataRetirada": body.String("dataRetirada"),
		"dataPrevista": body.String("dataPrevista"),
	})
	return c.Status(fiber.StatusCreated).JSON(b.view("emprestimos", rec))
}

func (b *Backend) update(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, err := parse(c.Body())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "JSON inválido"})
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		col := b.data[name]
		i := col.index(c.Params("id"))
		if i < 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Registro não encontrado"})
		}
		rec := col.items[i]
		for k, v := range body {
			if k == col.idField {
				continue
			}
			rec[k] = v
		}
		if name == "livros" && body.Has("genero") {
			rec["genero"] = b.genreRef(body.String("genero.id"))
		}
		if name == "emprestimos" && body.String("dataDeEntrega") != "" {
			if bi := b.data["livros"].index(rec.String("livro.codigoLivro")); bi >= 0 {
				b.data["livros"].items[bi]["disponibilidade"] = library.Available
			}
		}
		return c.JSON(public(b.view(name, rec)))
	}
}

func (b *Backend) remove(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		col := b.data[name]
		i := col.index(c.Params("id"))
		if i < 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Registro não encontrado"})
		}
		col.items = append(col.items[:i], col.items[i+1:]...)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// view adds the fields the backend derives at read time.
func (b *Backend) view(name string, r library.Record) library.Record {
	if name != "emprestimos" {
		return r
	}
	v := r.Clone()
	overdue := false
	days := 0
	if !r.Has("dataDeEntrega") {
		if due, ok := library.ParseDate(r.String("dataPrevista")); ok {
			today, _ := library.ParseDate(b.Now().Format(library.DateLayout))
			if today.After(due) {
				overdue = true
				days = int(today.Sub(due).Hours() / 24)
			}
		}
	}
	v["emAtraso"] = overdue
	v["valorDevendo"] = float64(days) * 1.5
	return v
}

func (b *Backend) matches(name string, r library.Record, c *fiber.Ctx, user library.Record) bool {
	eq := func(param, path string) bool {
		want := c.Query(param)
		return want == "" || r.String(path) == want
	}
	switch name {
	case "livros":
		return eq("generoId", "genero.id") && eq("disponibilidade", "disponibilidade")
	case "usuarios":
		return eq("perfil", "perfil")
	case "emprestimos":
		if library.Role(user.String("perfil")) == library.RolePatron &&
			r.String("usuario.codigoLogin") != user.String("codigoLogin") {
			return false
		}
		returned := r.Has("dataDeEntrega")
		switch c.Query("emAtraso") {
		case "true":
			if !r.Bool("emAtraso") {
				return false
			}
		case "false":
			if r.Bool("emAtraso") || returned {
				return false
			}
		}
		if c.Query("entregue") == "true" && !returned {
			return false
		}
		return eq("usuario", "usuario.codigoLogin") && eq("codigoLivro", "livro.codigoLivro")
	}
	return true
}

func (b *Backend) genreRef(id string) library.Record {
	col := b.data["generos"]
	if i := col.index(id); i >= 0 {
		return col.items[i].Pick("id", "nome")
	}
	n, _ := strconv.ParseInt(id, 10, 64)
	return library.Record{"id": n}
}

// public strips credentials from a user record.
func public(r library.Record) library.Record {
	if _, ok := r["senha"]; !ok {
		return r
	}
	out := r.Clone()
	delete(out, "senha")
	return out
}

func parse(body []byte) (library.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rec library.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("empty body")
	}
	return rec, nil
}
