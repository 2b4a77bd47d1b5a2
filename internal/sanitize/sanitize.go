// Package sanitize escapes user-controlled text for the outbound markup
// dialect. It is the single escaping point: message builders compose raw
// fragments and call Text exactly once, right before delivery. Escaping is
// idempotent, so a fragment that already went through Text renders the same
// if it accidentally goes through again.
package sanitize

import "strings"

type Dialect int

const (
	HTML Dialect = iota
	MarkdownV2
)

// Characters Telegram's MarkdownV2 parser treats as syntax.
const markdownReserved = "_*[]()~`>#+-=|{}.!"

var htmlEntities = []string{"&amp;", "&lt;", "&gt;", "&quot;", "&#39;"}

func Text(s string, dialect Dialect) string {
	switch dialect {
	case MarkdownV2:
		return escapeMarkdown(s)
	default:
		return escapeHTML(s)
	}
}

func isMarkdownReserved(c byte) bool {
	return strings.IndexByte(markdownReserved, c) >= 0
}

// escapeMarkdown backslash-escapes every reserved character. A reserved
// character that is already preceded by a backslash is left alone, which is
// what makes the function idempotent.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && isMarkdownReserved(s[i+1]) {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if isMarkdownReserved(c) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeHTML replaces the five characters Telegram's HTML parser cares
// about. An ampersand that already starts one of our entities is kept, so
// escaping never compounds.
func escapeHTML(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			if ent := entityAt(s, i); ent != "" {
				b.WriteString(ent)
				i += len(ent) - 1
				continue
			}
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func entityAt(s string, i int) string {
	for _, ent := range htmlEntities {
		if strings.HasPrefix(s[i:], ent) {
			return ent
		}
	}
	return ""
}
