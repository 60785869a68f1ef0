package rank

import "strings"

// Separator splits a Riot ID into game name and tag line.
const Separator = "#"

// Identity is a parsed Riot ID.
type Identity struct {
	Name string
	Tag  string
}

func (id Identity) String() string { return id.Name + Separator + id.Tag }

// ParseIdentity splits token on its first separator. Both halves are
// trimmed; case is preserved. It reports false when the token is blank or
// has no separator. "#tag" parses to an empty name.
func ParseIdentity(token string) (Identity, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, false
	}
	name, tag, ok := strings.Cut(token, Separator)
	if !ok {
		return Identity{}, false
	}
	return Identity{Name: strings.TrimSpace(name), Tag: strings.TrimSpace(tag)}, true
}
