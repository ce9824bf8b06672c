package authz

// Matcher decides whether a user's role grants a requested permission. It is
// a pure function over the immutable table: same inputs, same answer,
// regardless of concurrency.
type Matcher struct {
	table *Table
}

// NewMatcher constructs a Matcher over the given table.
func NewMatcher(table *Table) *Matcher {
	return &Matcher{table: table}
}

// Evaluate returns true when any of the user's role grants satisfies the
// requested permission. Every unmatched path denies.
func (m *Matcher) Evaluate(user *User, perm Permission) bool {
	if user == nil || !user.IsActive {
		return false
	}
	grants := m.table.grantsFor(user.Role)
	if len(grants) == 0 {
		return false
	}
	for _, g := range grants {
		if g.Resource == ResourceAll && g.Action == ActionManage {
			// Superuser wildcard.
			return true
		}
		if g.Resource != ResourceAll && g.Resource != perm.Resource {
			continue
		}
		// "manage" subsumes every action; anything else must match exactly.
		if g.Action != ActionManage && g.Action != perm.Action {
			continue
		}
		if scopeSatisfies(g.Scope, perm.Scope) {
			return true
		}
	}
	return false
}

// scopeSatisfies resolves a granted scope against a requested one. An unset
// request accepts any grant. A granted "all" covers any request, a granted
// "own" covers only "own"; otherwise scopes must be equal.
func scopeSatisfies(granted, requested Scope) bool {
	if requested == ScopeAny {
		return true
	}
	switch granted {
	case ScopeAll:
		return true
	case ScopeOwn:
		return requested == ScopeOwn
	default:
		return granted == requested
	}
}
