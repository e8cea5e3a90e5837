package library

// Action is a UI affordance gated by role.
type Action int

const (
	ActionOpen Action = iota
	ActionCreate
	ActionEdit
	ActionDelete
	ActionLend
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "abrir"
	case ActionCreate:
		return "criar"
	case ActionEdit:
		return "editar"
	case ActionDelete:
		return "excluir"
	case ActionLend:
		return "emprestar"
	}
	return "desconhecida"
}

// Can evaluates the role × entity matrix. target is the record the action
// applies to and may be nil for collection-level actions such as create.
// This only decides what is offered; the backend enforces the real rules.
func Can(s Session, e *Entity, a Action, target Record) bool {
	if e.Public {
		return a == ActionCreate
	}
	if !s.Authenticated() {
		return false
	}
	role := s.Role
	switch e {
	case Books:
		switch a {
		case ActionOpen:
			return true
		case ActionLend:
			return target != nil && target.String("disponibilidade") == Available
		default:
			return role.Staff()
		}
	case Genres:
		if a == ActionOpen {
			return true
		}
		if a == ActionLend {
			return false
		}
		return role.Staff()
	case Loans:
		switch a {
		case ActionCreate:
			return true
		case ActionOpen, ActionDelete:
			return role.Staff()
		case ActionEdit:
			return role.Staff() && (target == nil || !target.Has("dataDeEntrega") || target.String("dataDeEntrega") == "")
		}
		return false
	case Users:
		switch a {
		case ActionOpen, ActionCreate:
			return role.Staff()
		case ActionEdit, ActionDelete:
			if role == RoleAdmin {
				return true
			}
			return role == RoleLibrarian && target != nil && target.String("perfil") == string(RolePatron)
		}
		return false
	}
	return false
}

// Menus returns the sections visible to the session, in navigation order.
func Menus(s Session) []*Entity {
	out := make([]*Entity, 0, len(Sections))
	for _, e := range Sections {
		if e == Users && !s.Role.Staff() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// DefaultMenu is shown when nothing was persisted or the persisted section is hidden.
const DefaultMenu = "livros"

// ResolveMenu keeps a persisted section only when the role may see it.
func ResolveMenu(s Session, selected string) string {
	for _, e := range Menus(s) {
		if e.Name == selected {
			return selected
		}
	}
	return DefaultMenu
}
