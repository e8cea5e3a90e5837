package library

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the backend "perfil" of the logged-in account.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleLibrarian Role = "BIBLIOTECARIO"
	RolePatron    Role = "USUARIO"
)

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleLibrarian, RolePatron:
		return r, true
	}
	return "", false
}

// Staff reports whether the role manages the catalogue (ADMIN or BIBLIOTECARIO).
func (r Role) Staff() bool { return r == RoleAdmin || r == RoleLibrarian }

// Session is the authenticated identity kept in local storage between runs.
type Session struct {
	Token       string
	Role        Role
	DisplayName string
	UserID      string
}

// Authenticated is true only when both token and role are present.
func (s Session) Authenticated() bool { return s.Token != "" && s.Role != "" }

// Expired reports whether the token is a JWT whose exp claim has passed.
// Opaque (non-JWT) tokens never expire client-side.
func (s Session) Expired(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// Record is a loosely-typed entity as returned by the backend.
type Record map[string]any

// Get resolves a dotted path such as "livro.nome".
func (r Record) Get(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String renders the value at path as text; missing or structured values yield "".
func (r Record) String(path string) string {
	v, ok := r.Get(path)
	if !ok {
		return ""
	}
	return stringify(v)
}

// Bool treats JSON true and the string "true" as true.
func (r Record) Bool(path string) bool {
	v, ok := r.Get(path)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}

// Float returns the numeric value at path.
func (r Record) Float(path string) (float64, bool) {
	v, ok := r.Get(path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Has reports whether path resolves to a non-nil value.
func (r Record) Has(path string) bool {
	v, ok := r.Get(path)
	return ok && v != nil
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Pick copies only the named top-level keys that are present.
func (r Record) Pick(keys ...string) Record {
	out := make(Record, len(keys))
	for _, k := range keys {
		if v, ok := r[k]; ok {
			out[k] = v
		}
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	}
	return nil, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, Record, []any:
		return ""
	}
	return fmt.Sprint(v)
}

// ------------------ Dates ------------------

// DateLayout is the wire format for dates sent to the backend.
const DateLayout = "2006-01-02"

// LoanDays is how many days a new loan runs before it is due.
const LoanDays = 14

// LoanDates returns the retrieval and due dates for a loan created at now.
func LoanDates(now time.Time) (retrieval, due string) {
	return now.Format(DateLayout), now.AddDate(0, 0, LoanDays).Format(DateLayout)
}

// ParseDate accepts "2006-01-02" or a full RFC 3339 timestamp.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if len(s) >= len(DateLayout) {
		if t, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
