package library

import "testing"

func session(r Role) Session { return Session{Token: "t", Role: r, UserID: "1"} }

func TestMatrix(t *testing.T) {
	available := Record{"disponibilidade": Available}
	lent := Record{"disponibilidade": Unavailable}
	open := Record{"codigoEmprestimo": 1}
	returned := Record{"codigoEmprestimo": 1, "dataDeEntrega": "2026-01-01"}
	admin := Record{"perfil": "ADMIN"}
	patron := Record{"perfil": "USUARIO"}

	tests := []struct {
		name   string
		role   Role
		entity *Entity
		action Action
		target Record
		want   bool
	}{
		{"patron opens book", RolePatron, Books, ActionOpen, available, true},
		{"patron cannot edit book", RolePatron, Books, ActionEdit, available, false},
		{"patron lends available book", RolePatron, Books, ActionLend, available, true},
		{"nobody lends lent book", RoleAdmin, Books, ActionLend, lent, false},
		{"librarian deletes genre", RoleLibrarian, Genres, ActionDelete, Record{}, true},
		{"patron creates loan", RolePatron, Loans, ActionCreate, nil, true},
		{"patron cannot open loan", RolePatron, Loans, ActionOpen, open, false},
		{"librarian edits open loan", RoleLibrarian, Loans, ActionEdit, open, true},
		{"returned loan is read-only", RoleAdmin, Loans, ActionEdit, returned, false},
		{"librarian edits patron", RoleLibrarian, Users, ActionEdit, patron, true},
		{"librarian cannot edit admin", RoleLibrarian, Users, ActionEdit, admin, false},
		{"librarian cannot delete admin", RoleLibrarian, Users, ActionDelete, admin, false},
		{"admin deletes admin", RoleAdmin, Users, ActionDelete, admin, true},
		{"patron cannot list users", RolePatron, Users, ActionOpen, patron, false},
		{"registration is public", "", Registration, ActionCreate, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := session(tc.role)
			if tc.role == "" {
				s = Session{}
			}
			if got := Can(s, tc.entity, tc.action, tc.target); got != tc.want {
				t.Fatalf("Can = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAnonymousCanNothing(t *testing.T) {
	for _, e := range Sections {
		if Can(Session{}, e, ActionOpen, Record{}) {
			t.Fatalf("anonymous opened %s", e.Name)
		}
	}
}

func TestMenus(t *testing.T) {
	names := func(r Role) []string {
		var out []string
		for _, e := range Menus(session(r)) {
			out = append(out, e.Name)
		}
		return out
	}
	if got := names(RolePatron); len(got) != 3 || got[2] != "emprestimos" {
		t.Fatalf("patron menus: %v", got)
	}
	if got := names(RoleLibrarian); len(got) != 4 || got[3] != "usuarios" {
		t.Fatalf("librarian menus: %v", got)
	}
	if ResolveMenu(session(RolePatron), "usuarios") != DefaultMenu {
		t.Fatal("hidden menu should fall back")
	}
	if ResolveMenu(session(RoleAdmin), "") != DefaultMenu {
		t.Fatal("empty menu should fall back")
	}
}
