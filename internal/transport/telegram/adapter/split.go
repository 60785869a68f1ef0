package adapter

import (
	"slices"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// telegramTextLimit stays under Telegram's 4096 limit to leave room for entities.
const telegramTextLimit = 4000

// splitTelegramText cuts s into chunks of at most limit runes. A cut moves
// back to the last newline when that keeps at least a third of the chunk,
// and in HTML mode never lands inside a tag.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rest := []rune(s)
	if len(rest) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, tele.ModeHTML)

	var out []string
	for {
		for len(rest) > 0 && rest[0] == '\n' {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return out
		}
		if len(rest) <= limit {
			return append(out, string(rest))
		}
		cut := cutPoint(rest[:limit], html)
		out = append(out, strings.TrimRight(string(rest[:cut]), "\n"))
		rest = rest[cut:]
	}
}

func cutPoint(window []rune, html bool) int {
	cut := len(window)
	if nl := lastRune(window, '\n'); nl >= len(window)/3 {
		cut = nl + 1
	}
	if html {
		open := lastRune(window[:cut], '<')
		if open > 0 && open > lastRune(window[:cut], '>') {
			cut = open
		}
	}
	return cut
}

func lastRune(rs []rune, r rune) int {
	for i, v := range slices.Backward(rs) {
		if v == r {
			return i
		}
	}
	return -1
}
