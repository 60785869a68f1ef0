package tgui

import (
	"strings"
	"unicode/utf8"
)

// H is text already escaped for Telegram's HTML parse mode.
type H string

func (h H) String() string { return string(h) }

// Telegram's HTML mode only requires these three entities.
var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Esc escapes plain text.
func Esc(s string) H { return H(escaper.Replace(s)) }

func tag(name, s string) H { return H("<" + name + ">" + escaper.Replace(s) + "</" + name + ">") }

func B(s string) H    { return tag("b", s) }
func I(s string) H    { return tag("i", s) }
func Code(s string) H { return tag("code", s) }

// JoinH joins the non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	var b strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(string(p))
	}
	return H(b.String())
}

// TruncRunes keeps the first n runes of s and marks the cut with "…".
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}
