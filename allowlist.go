package tokenauth

import (
	"slices"
	"strings"
)

// DefaultAllowedUsers are the identities allowed to obtain and use tokens when
// no allowlist is configured.
var DefaultAllowedUsers = []string{"local-admin", "test-user"}

// Allowlist is an immutable set of subject identities. The zero value permits
// nobody. Membership is exact and case-sensitive.
type Allowlist struct {
	members map[string]struct{}
}

// NewAllowlist builds an allowlist from ids. Surrounding whitespace is trimmed
// and blank entries are ignored.
func NewAllowlist(ids ...string) Allowlist {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return Allowlist{members: set}
}

// Contains reports whether id is a member.
func (a Allowlist) Contains(id string) bool {
	if id == "" {
		return false
	}
	_, ok := a.members[id]
	return ok
}

// Len returns the number of members.
func (a Allowlist) Len() int {
	return len(a.members)
}

// Members returns the sorted member ids.
func (a Allowlist) Members() []string {
	out := make([]string, 0, len(a.members))
	for id := range a.members {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Without returns a copy of the allowlist with ids removed.
func (a Allowlist) Without(ids ...string) Allowlist {
	set := make(map[string]struct{}, len(a.members))
	for id := range a.members {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		delete(set, id)
	}
	return Allowlist{members: set}
}
