package ui

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"sgb-web/library"
)

const displayDate = "02/01/2006"

// Date renders a backend date as dd/mm/yyyy. Unparseable text is returned
// unchanged and empty text becomes "-".
func Date(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	t, ok := library.ParseDate(s)
	if !ok {
		return s
	}
	return t.Format(displayDate)
}

// Money renders v as Brazilian reais, e.g. "R$ 1.234,50".
func Money(v float64) string {
	return message.NewPrinter(language.BrazilianPortuguese).Sprintf("R$ %.2f", v)
}

// DaysOverdue counts whole calendar days from the due date to now's date.
func DaysOverdue(due string, now time.Time) int {
	d, ok := library.ParseDate(due)
	if !ok {
		return 0
	}
	today, _ := library.ParseDate(now.Format(library.DateLayout))
	days := int(today.Sub(d).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// LoanStatus describes where a loan stands, and its debt when there is one.
func LoanStatus(r library.Record, now time.Time) (status string, debt string) {
	if r.String("dataDeEntrega") != "" {
		status = "Entregue em " + Date(r.String("dataDeEntrega"))
	} else if days := DaysOverdue(r.String("dataPrevista"), now); r.Bool("emAtraso") || days > 0 {
		switch days {
		case 0:
			status = "Em atraso"
		case 1:
			status = "Em atraso (1 dia)"
		default:
			status = message.NewPrinter(language.BrazilianPortuguese).Sprintf("Em atraso (%d dias)", days)
		}
	} else {
		status = "Em dia"
	}
	if v, ok := r.Float("valorDevendo"); ok && v > 0 {
		debt = "Saldo devedor: " + Money(v)
	}
	return status, debt
}

// Availability renders a book's disponibilidade.
func Availability(s string) string {
	switch s {
	case library.Available:
		return "Disponível"
	case library.Unavailable:
		return "Indisponível"
	case "":
		return "-"
	}
	return s
}

// Role renders a perfil.
func Role(s string) string {
	switch library.Role(s) {
	case library.RoleAdmin:
		return "Administrador"
	case library.RoleLibrarian:
		return "Bibliotecário"
	case library.RolePatron:
		return "Usuário"
	}
	return s
}

var labels = map[string]string{
	"nome":             "Nome",
	"autor":            "Autor",
	"genero":           "Gênero (id)",
	"disponibilidade":  "Disponibilidade",
	"email":            "E-mail",
	"telefone":         "Telefone",
	"dataDeNascimento": "Data de nascimento",
	"perfil":           "Perfil",
	"senha":            "Senha",
	"senha2":           "Confirmar senha",
	"usuario":          "Usuário (id)",
	"livro":            "Livro (id)",
	"dataRetirada":     "Data de retirada",
	"dataPrevista":     "Data prevista",
	"dataDeEntrega":    "Data de entrega",
}

// Label is the display name of a field key.
func Label(key string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	return key
}

// Secret reports fields whose values are never echoed.
func Secret(key string) bool {
	return key == "senha" || key == "senha2"
}
