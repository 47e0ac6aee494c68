package setup

import "github.com/roach88/govkit/internal/ir"

// Placeholders stand for addresses a permission template cannot know before
// preparation. Bind substitutes them.
var (
	DAOPlaceholder    = ir.LabelAddress("govkit/placeholder/dao")
	PluginPlaceholder = ir.LabelAddress("govkit/placeholder/plugin")
)

// Bind returns a copy of perms with the placeholders replaced.
func Bind(perms []ir.MultiTargetPermission, dao, plugin ir.Address) []ir.MultiTargetPermission {
	if perms == nil {
		return nil
	}
	sub := func(a ir.Address) ir.Address {
		switch a {
		case DAOPlaceholder:
			return dao
		case PluginPlaceholder:
			return plugin
		}
		return a
	}
	out := make([]ir.MultiTargetPermission, len(perms))
	for i, p := range perms {
		p.Where = sub(p.Where)
		p.Who = sub(p.Who)
		p.Condition = sub(p.Condition)
		out[i] = p
	}
	return out
}
