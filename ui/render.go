package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"sgb-web/controller"
	"sgb-web/library"
)

// Renderer turns controller state into text.
type Renderer struct {
	S   Styles
	Now func() time.Time
}

func (r Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Renderer) field(label, value string) string {
	return r.S.Label.Render(label+":") + " " + r.S.Value.Render(value)
}

// Card renders the summary of one record as shown in a list.
func (r Renderer) Card(e *library.Entity, rec library.Record) string {
	id := e.ID(rec)
	var lines []string
	switch e {
	case library.Books:
		lines = []string{
			r.S.Title.Render(fmt.Sprintf("#%s %s", id, rec.String("nome"))),
			r.field("Autor", rec.String("autor")),
			r.field("Gênero", orDash(rec.String("genero.nome"))),
			r.field("Disponibilidade", Availability(rec.String("disponibilidade"))),
		}
	case library.Genres:
		lines = []string{r.S.Title.Render(fmt.Sprintf("#%s %s", id, rec.String("nome")))}
	case library.Loans:
		status, debt := LoanStatus(rec, r.now())
		lines = []string{
			r.S.Title.Render(fmt.Sprintf("#%s %s", id, orDash(rec.String("livro.nome")))),
			r.field("Usuário", orDash(rec.String("usuario.nome"))),
			r.field("Retirada", Date(rec.String("dataRetirada"))),
			r.field("Previsão", Date(rec.String("dataPrevista"))),
			r.status(status),
		}
		if debt != "" {
			lines = append(lines, r.S.Warning.Render(debt))
		}
	case library.Users:
		lines = []string{
			r.S.Title.Render(fmt.Sprintf("#%s %s", id, rec.String("nome"))),
			r.field("E-mail", rec.String("email")),
			r.field("Telefone", orDash(rec.String("telefone"))),
			r.field("Perfil", Role(rec.String("perfil"))),
		}
	default:
		lines = []string{r.S.Title.Render("#" + id)}
	}
	return r.S.Card.Render(strings.Join(lines, "\n"))
}

func (r Renderer) status(s string) string {
	switch {
	case strings.HasPrefix(s, "Em atraso"):
		return r.S.Error.Render(s)
	case strings.HasPrefix(s, "Entregue"):
		return r.S.Muted.Render(s)
	}
	return r.S.Success.Render(s)
}

// List renders the section header, its filters and the visible cards.
func (r Renderer) List(l *controller.ListController) string {
	e := l.Entity()
	var b strings.Builder
	b.WriteString(r.S.Section.Render(sectionTitle(e)))
	if f := filterLine(l.Filters()); f != "" {
		b.WriteString("  " + r.S.Muted.Render(f))
	}
	b.WriteString("\n")
	if msg := l.Err(); msg != "" {
		b.WriteString(r.S.Error.Render(msg) + "\n")
	}
	if l.Loading() {
		b.WriteString(r.S.Muted.Render("Carregando...") + "\n")
	}

	items := l.Visible()
	if len(items) == 0 {
		b.WriteString(r.S.Muted.Render(e.Messages.Empty) + "\n")
		return b.String()
	}
	cards := make([]string, 0, len(items))
	for _, rec := range items {
		cards = append(cards, r.Card(e, rec))
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, cards...))
	b.WriteString("\n")
	b.WriteString(r.S.Muted.Render(fmt.Sprintf("%d de %d", len(items), len(l.Items()))) + "\n")
	return b.String()
}

// Modal renders the open record, or its draft while editing, plus the
// actions available in the current mode.
func (r Renderer) Modal(m *controller.ModalController) string {
	e := m.Entity()
	rec := m.Record()
	mode := m.Mode()

	var lines []string
	lines = append(lines, r.S.Title.Render(fmt.Sprintf("%s #%s", e.Singular, e.ID(rec))))
	if mode == controller.Editing {
		draft := m.Draft()
		keys := make([]string, 0, len(draft))
		for k := range draft {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, r.field(Label(k), draft.String(k)))
		}
	} else {
		lines = append(lines, r.details(e, rec)...)
	}

	if form := m.LoanForm(); mode == controller.Lending && form != nil {
		lines = append(lines, "", r.Form(form))
	}
	if msg := m.Message(); !msg.Empty() {
		lines = append(lines, "", r.message(msg))
	}
	if acts := r.actions(m, mode); acts != "" {
		lines = append(lines, "", r.S.Action.Render(acts))
	}
	return r.S.Modal.Render(strings.Join(lines, "\n"))
}

func (r Renderer) details(e *library.Entity, rec library.Record) []string {
	switch e {
	case library.Books:
		return []string{
			r.field("Autor", rec.String("autor")),
			r.field("Gênero", orDash(rec.String("genero.nome"))+" ("+orDash(rec.String("genero.id"))+")"),
			r.field("Disponibilidade", Availability(rec.String("disponibilidade"))),
		}
	case library.Genres:
		return []string{r.field("Nome", rec.String("nome"))}
	case library.Loans:
		status, debt := LoanStatus(rec, r.now())
		out := []string{
			r.field("Livro", fmt.Sprintf("%s (#%s)", orDash(rec.String("livro.nome")), orDash(rec.String("livro.codigoLivro")))),
			r.field("Usuário", fmt.Sprintf("%s (#%s)", orDash(rec.String("usuario.nome")), orDash(rec.String("usuario.codigoLogin")))),
			r.field("Retirada", Date(rec.String("dataRetirada"))),
			r.field("Previsão", Date(rec.String("dataPrevista"))),
			r.field("Entrega", Date(rec.String("dataDeEntrega"))),
			r.status(status),
		}
		if debt != "" {
			out = append(out, r.S.Warning.Render(debt))
		}
		return out
	case library.Users:
		return []string{
			r.field("Nome", rec.String("nome")),
			r.field("E-mail", rec.String("email")),
			r.field("Telefone", orDash(rec.String("telefone"))),
			r.field("Nascimento", Date(rec.String("dataDeNascimento"))),
			r.field("Perfil", Role(rec.String("perfil"))),
		}
	}
	return nil
}

func (r Renderer) actions(m *controller.ModalController, mode controller.Mode) string {
	var acts []string
	switch mode {
	case controller.Viewing:
		if m.CanEdit() {
			acts = append(acts, "editar")
		}
		if m.CanDelete() {
			acts = append(acts, "excluir")
		}
		if m.CanLend() {
			acts = append(acts, "emprestar")
		}
		acts = append(acts, "fechar")
	case controller.Editing:
		acts = []string{"campo <chave> <valor>", "salvar", "cancelar"}
	case controller.ConfirmingDelete:
		acts = []string{"s", "n"}
	case controller.Lending:
		acts = []string{"campo <chave> <valor>", "salvar", "cancelar"}
	}
	return strings.Join(acts, " · ")
}

// Form renders a creation form with its current values.
func (r Renderer) Form(c *controller.CreateController) string {
	values := c.Values()
	var lines []string
	lines = append(lines, r.S.Title.Render("Novo "+strings.ToLower(c.Entity().Singular)))
	for _, k := range c.Fields() {
		v := values.String(k)
		if Secret(k) && v != "" {
			v = strings.Repeat("•", 6)
		}
		lines = append(lines, r.field(Label(k), orDash(v)))
	}
	for _, k := range c.Locked() {
		lines = append(lines, r.field(Label(k), values.String(k))+" "+r.S.Muted.Render("(fixo)"))
	}
	if msg := c.Err(); msg != "" {
		lines = append(lines, r.S.Error.Render(msg))
	}
	return strings.Join(lines, "\n")
}

func (r Renderer) message(m controller.Message) string {
	switch m.Kind {
	case controller.KindSuccess:
		return r.S.Success.Render(m.Text)
	case controller.KindError:
		return r.S.Error.Render(m.Text)
	case controller.KindInfo:
		return r.S.Info.Render(m.Text)
	}
	return m.Text
}

// Session renders the "who am I" line.
func (r Renderer) Session(s library.Session) string {
	if !s.Authenticated() {
		return r.S.Muted.Render("Não autenticado.")
	}
	return fmt.Sprintf("%s %s %s",
		r.S.Title.Render(s.DisplayName),
		r.S.Muted.Render("·"),
		r.field("Perfil", Role(string(s.Role)))+"  "+r.field("Id", orDash(s.UserID)))
}

func sectionTitle(e *library.Entity) string {
	switch e {
	case library.Books:
		return "Livros"
	case library.Genres:
		return "Gêneros"
	case library.Loans:
		return "Empréstimos"
	case library.Users:
		return "Usuários"
	}
	return e.Name
}

func filterLine(f map[string]string) string {
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return "filtros: " + strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
