package router

import (
	"html"
	"slices"
	"strings"
)

// HelpText renders the command list, or one command's details when args
// names a command. The result is Telegram HTML.
func (r *Router) HelpText(args []string) string {
	if len(args) > 0 {
		if c, ok := r.Lookup(args[0]); ok {
			return helpCommandHTML(c)
		}
		return "❓ <b>Unknown command</b>\nType <code>/help</code> for the command list."
	}

	cmds := r.Commands()
	// owner-only at the bottom, alphabetical within groups
	slices.SortStableFunc(cmds, func(a, b Command) int {
		switch {
		case a.Access == b.Access:
			return 0
		case a.Access == AccessOwnerOnly:
			return 1
		default:
			return -1
		}
	})

	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;cmd&gt;</code> for details.",
		"",
	}
	for _, c := range cmds {
		prefix := "• "
		if c.Access == AccessOwnerOnly {
			prefix = "• 🔒 "
		}
		line := prefix + "<code>/" + html.EscapeString(c.Name) + "</code>"
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", "Tip: type <code>@botname</code> and a name for roster suggestions.")
	return strings.Join(lines, "\n")
}

func helpCommandHTML(c Command) string {
	lines := []string{"📚 <b>Help</b> <code>/" + html.EscapeString(c.Name) + "</code>"}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 <i>Owner only</i>")
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
	}
	if len(c.Aliases) > 0 {
		aliases := slices.Clone(c.Aliases)
		slices.Sort(aliases)
		lines = append(lines, "", "<b>Aliases</b>")
		for _, a := range aliases {
			lines = append(lines, "• <code>/"+html.EscapeString(normalizeName(a))+"</code>")
		}
	}
	return strings.Join(lines, "\n")
}
