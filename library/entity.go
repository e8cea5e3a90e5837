package library

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// FilterField is a client-side substring filter over one (possibly nested) field.
type FilterField struct {
	Key  string
	Path string
}

// Messages are the user-facing texts of one entity's CRUD operations.
type Messages struct {
	Fetch         string
	Create        string
	Update        string
	Delete        string
	Created       string
	Updated       string
	Deleted       string
	ConfirmDelete string
	Empty         string
}

// Entity describes one backend collection and how the generic controllers
// list, edit and create it.
type Entity struct {
	Name     string
	Singular string
	Endpoint string
	IDField  string

	ServerFilters  []string
	ClientFilters  []FilterField
	DefaultFilters map[string]string

	CreateFields []string
	Required     []string
	// Confirm maps a field to its confirmation twin. Twins are checked for
	// equality and never sent.
	Confirm  map[string]string
	Editable []string
	// FieldRoles restricts editing of individual fields to the listed roles.
	FieldRoles map[string][]Role
	// Defaults fill a created record only for keys the backend did not echo.
	Defaults Record
	// Public entities are created without a session.
	Public bool

	Query         func(s Session, filters map[string]string) url.Values
	Scope         func(s Session, r Record) bool
	Sort          func(items []Record)
	Draft         func(r Record, now time.Time) Record
	CreatePayload func(values Record) Record
	UpdatePayload func(draft Record) Record
	Prepare       func(s Session, now time.Time) (values Record, locked []string)

	Messages Messages
}

// ID returns the record's identifier as text.
func (e *Entity) ID(r Record) string { return r.String(e.IDField) }

// IsServerFilter reports whether key triggers a re-fetch.
func (e *Entity) IsServerFilter(key string) bool {
	for _, k := range e.ServerFilters {
		if k == key {
			return true
		}
	}
	return false
}

// ClientFilter looks up a client-side filter by key.
func (e *Entity) ClientFilter(key string) (FilterField, bool) {
	for _, f := range e.ClientFilters {
		if f.Key == key {
			return f, true
		}
	}
	return FilterField{}, false
}

// BuildQuery serializes the non-empty server filters.
func (e *Entity) BuildQuery(s Session, filters map[string]string) url.Values {
	if e.Query != nil {
		return e.Query(s, filters)
	}
	q := url.Values{}
	for _, k := range e.ServerFilters {
		if v := strings.TrimSpace(filters[k]); v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// IsEditable reports whether field appears in the edit form at all.
func (e *Entity) IsEditable(field string) bool {
	for _, f := range e.Editable {
		if f == field {
			return true
		}
	}
	return false
}

// CanEditField applies FieldRoles on top of the Editable list.
func (e *Entity) CanEditField(role Role, field string) bool {
	if !e.IsEditable(field) {
		return false
	}
	roles, restricted := e.FieldRoles[field]
	if !restricted {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Number converts numeric text into an int64 so it is sent as a JSON number.
func Number(v any) any {
	switch n := v.(type) {
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
	}
	return v
}

func sortByName(path string) func([]Record) {
	return func(items []Record) {
		c := collate.New(language.BrazilianPortuguese, collate.Loose)
		sort.SliceStable(items, func(i, j int) bool {
			return c.CompareString(items[i].String(path), items[j].String(path)) < 0
		})
	}
}

func sortByNumber(path string) func([]Record) {
	return func(items []Record) {
		sort.SliceStable(items, func(i, j int) bool {
			a, _ := items[i].Float(path)
			b, _ := items[j].Float(path)
			return a < b
		})
	}
}

// ---------------------------------------------------------------------------
// Entity catalogue
// ---------------------------------------------------------------------------

const (
	Available   = "DISPONIVEL"
	Unavailable = "INDISPONIVEL"
)

var Books = &Entity{
	Name:          "livros",
	Singular:      "Livro",
	Endpoint:      "/livros",
	IDField:       "codigoLivro",
	ServerFilters: []string{"generoId", "disponibilidade"},
	ClientFilters: []FilterField{{Key: "nome", Path: "nome"}, {Key: "autor", Path: "autor"}},
	CreateFields:  []string{"nome", "autor", "genero"},
	Required:      []string{"nome", "autor", "genero"},
	Editable:      []string{"nome", "autor", "genero", "disponibilidade"},
	Defaults:      Record{"disponibilidade": Available},
	Draft: func(r Record, _ time.Time) Record {
		return Record{
			"nome":            r.String("nome"),
			"autor":           r.String("autor"),
			"genero":          r.String("genero.id"),
			"disponibilidade": r.String("disponibilidade"),
		}
	},
	CreatePayload: func(v Record) Record {
		return Record{
			"nome":   v.String("nome"),
			"autor":  v.String("autor"),
			"genero": Record{"id": Number(v.String("genero"))},
		}
	},
	UpdatePayload: func(d Record) Record {
		disp := d.String("disponibilidade")
		if disp == "" {
			disp = Available
		}
		return Record{
			"nome":            d.String("nome"),
			"autor":           d.String("autor"),
			"disponibilidade": disp,
			"genero":          Record{"id": Number(d.String("genero"))},
		}
	},
	Messages: Messages{
		Fetch:         "Erro ao buscar livros.",
		Create:        "Erro ao criar livro.",
		Update:        "Erro ao atualizar livro.",
		Delete:        "Erro ao excluir livro.",
		Created:       "Livro criado com sucesso!",
		Updated:       "Livro atualizado com sucesso!",
		Deleted:       "Livro excluído com sucesso!",
		ConfirmDelete: "Tem certeza que deseja excluir este livro?",
		Empty:         "Nenhum livro encontrado.",
	},
}

var Genres = &Entity{
	Name:          "generos",
	Singular:      "Gênero",
	Endpoint:      "/generos",
	IDField:       "id",
	ClientFilters: []FilterField{{Key: "nome", Path: "nome"}},
	CreateFields:  []string{"nome"},
	Required:      []string{"nome"},
	Editable:      []string{"nome"},
	Sort:          sortByName("nome"),
	Messages: Messages{
		Fetch:         "Erro ao buscar gêneros.",
		Create:        "Erro ao criar gênero.",
		Update:        "Erro ao atualizar gênero.",
		Delete:        "Erro ao excluir gênero.",
		Created:       "Gênero criado com sucesso!",
		Updated:       "Gênero atualizado com sucesso!",
		Deleted:       "Gênero excluído com sucesso!",
		ConfirmDelete: "Tem certeza que deseja excluir este gênero?",
		Empty:         "Nenhum gênero encontrado.",
	},
}

// Loan status filter values for the "situacao" key.
const (
	LoanOverdue  = "atraso"
	LoanOnTime   = "emdia"
	LoanReturned = "entregue"
)

var Loans = &Entity{
	Name:          "emprestimos",
	Singular:      "Empréstimo",
	Endpoint:      "/emprestimos",
	IDField:       "codigoEmprestimo",
	ServerFilters: []string{"situacao", "usuario", "codigoLivro"},
	ClientFilters: []FilterField{
		{Key: "nomeLivro", Path: "livro.nome"},
		{Key: "nomeUsuario", Path: "usuario.nome"},
	},
	CreateFields: []string{"usuario", "livro", "dataRetirada", "dataPrevista"},
	Required:     []string{"usuario", "livro", "dataRetirada", "dataPrevista"},
	Editable:     []string{"dataDeEntrega"},
	Sort:         sortByNumber("codigoEmprestimo"),
	Query: func(s Session, f map[string]string) url.Values {
		q := url.Values{}
		switch strings.TrimSpace(f["situacao"]) {
		case LoanOverdue:
			q.Set("emAtraso", "true")
		case LoanOnTime:
			q.Set("emAtraso", "false")
		case LoanReturned:
			q.Set("entregue", "true")
		}
		if v := strings.TrimSpace(f["usuario"]); v != "" && s.Role != RolePatron {
			q.Set("usuario", v)
		}
		if v := strings.TrimSpace(f["codigoLivro"]); v != "" {
			q.Set("codigoLivro", v)
		}
		return q
	},
	Draft: func(r Record, now time.Time) Record {
		d := r.String("dataDeEntrega")
		if len(d) > len(DateLayout) {
			d = d[:len(DateLayout)]
		}
		if d == "" {
			d = now.Format(DateLayout)
		}
		return Record{"dataDeEntrega": d}
	},
	UpdatePayload: func(d Record) Record {
		return Record{"dataDeEntrega": d.String("dataDeEntrega")}
	},
	CreatePayload: func(v Record) Record {
		return Record{
			"usuario":      Record{"codigoLogin": Number(v.String("usuario"))},
			"livro":        Record{"codigoLivro": Number(v.String("livro"))},
			"dataRetirada": v.String("dataRetirada"),
			"dataPrevista": v.String("dataPrevista"),
		}
	},
	Prepare: func(s Session, now time.Time) (Record, []string) {
		retrieval, due := LoanDates(now)
		values := Record{"dataRetirada": retrieval, "dataPrevista": due}
		locked := []string{"dataRetirada", "dataPrevista"}
		if s.Role == RolePatron {
			values["usuario"] = s.UserID
			locked = append(locked, "usuario")
		}
		return values, locked
	},
	Messages: Messages{
		Fetch:         "Erro ao buscar empréstimos.",
		Create:        "Erro ao realizar empréstimo.",
		Update:        "Erro ao salvar entrega.",
		Delete:        "Erro ao excluir empréstimo.",
		Created:       "Empréstimo realizado com sucesso!",
		Updated:       "Empréstimo recebido com sucesso!",
		Deleted:       "Empréstimo excluído com sucesso!",
		ConfirmDelete: "Tem certeza que deseja excluir este empréstimo?",
		Empty:         "Nenhum empréstimo encontrado.",
	},
}

var Users = &Entity{
	Name:          "usuarios",
	Singular:      "Usuário",
	Endpoint:      "/usuarios",
	IDField:       "codigoLogin",
	ServerFilters: []string{"perfil"},
	ClientFilters: []FilterField{{Key: "nome", Path: "nome"}},
	CreateFields:  []string{"nome", "email", "telefone", "dataDeNascimento", "perfil", "senha", "senha2"},
	Required:      []string{"nome", "email", "telefone", "dataDeNascimento", "perfil", "senha", "senha2"},
	Confirm:       map[string]string{"senha": "senha2"},
	Editable:      []string{"nome", "email", "telefone", "dataDeNascimento", "perfil"},
	FieldRoles:    map[string][]Role{"perfil": {RoleAdmin}},
	Sort:          sortByName("nome"),
	CreatePayload: func(v Record) Record {
		out := v.Clone()
		if r, ok := ParseRole(v.String("perfil")); ok {
			out["perfil"] = string(r)
		}
		return out
	},
	Scope: func(s Session, r Record) bool {
		return s.Role != RoleLibrarian || r.String("perfil") != string(RoleAdmin)
	},
	Draft: func(r Record, _ time.Time) Record {
		d := r.Pick("nome", "email", "telefone", "perfil")
		birth := r.String("dataDeNascimento")
		if i := strings.IndexByte(birth, 'T'); i >= 0 {
			birth = birth[:i]
		}
		d["dataDeNascimento"] = birth
		return d
	},
	Prepare: func(s Session, _ time.Time) (Record, []string) {
		if s.Role == RoleLibrarian {
			return Record{"perfil": string(RolePatron)}, []string{"perfil"}
		}
		return Record{}, nil
	},
	Messages: Messages{
		Fetch:         "Erro ao buscar usuários.",
		Create:        "Erro ao criar usuário.",
		Update:        "Erro ao atualizar usuário.",
		Delete:        "Erro ao excluir usuário.",
		Created:       "Usuário criado com sucesso!",
		Updated:       "Usuário atualizado com sucesso!",
		Deleted:       "Usuário excluído com sucesso!",
		ConfirmDelete: "Tem certeza que deseja excluir este usuário?",
		Empty:         "Nenhum usuário encontrado.",
	},
}

// Registration is the public self-service sign-up form.
var Registration = &Entity{
	Name:         "cadastro",
	Singular:     "Cadastro",
	Endpoint:     "/usuarios/publico",
	IDField:      "codigoLogin",
	CreateFields: []string{"nome", "email", "telefone", "dataDeNascimento", "senha"},
	Required:     []string{"nome", "email", "telefone", "dataDeNascimento", "senha"},
	Public:       true,
	Messages: Messages{
		Create:  "Erro ao cadastrar usuário.",
		Created: "Cadastro realizado com sucesso!",
	},
}

// Sections is the navigation order of the listable entities.
var Sections = []*Entity{Books, Genres, Loans, Users}

// Lookup finds a section entity by name.
func Lookup(name string) (*Entity, error) {
	for _, e := range Sections {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, ErrUnknownEntity
}
